package execution

import (
	"github.com/HITGYA/Mit-6.830/storage"
)

// Executor is the interface that all physical execution nodes must implement. Executors form a
// tree and pull tuples from their children one at a time.
type Executor interface {
	// Init initializes the executor with a specific execution context.
	// This binds the executor to a transaction.
	Init(ctx *ExecutorContext) error

	// Next retrieves the next tuple from the executor.
	Next() bool

	// Current returns the tuple most recently read by Next().
	Current() *storage.Tuple

	// Error returns the last error encountered by the executor, if any.
	Error() error

	// Rewind restarts the executor from its first tuple.
	Rewind() error

	// TupleDesc describes the tuples the executor produces. It is available before Init.
	TupleDesc() *storage.TupleDesc

	// Close cleans up any resources held by the executor.
	Close() error
}

// Drain runs e to completion and returns every tuple it produced.
func Drain(ctx *ExecutorContext, e Executor) ([]*storage.Tuple, error) {
	if err := e.Init(ctx); err != nil {
		return nil, err
	}
	defer e.Close()
	var result []*storage.Tuple
	for e.Next() {
		result = append(result, e.Current())
	}
	return result, e.Error()
}
