package execution

import (
	"github.com/HITGYA/Mit-6.830/storage"
)

// DeleteExecutor removes every tuple its child produces, locating each one by its RecordID. It
// produces a single tuple holding the number of rows deleted.
type DeleteExecutor struct {
	child Executor

	executed bool
	emitted  bool
	cnt      int
	ctx      *ExecutorContext
	err      error
}

func NewDeleteExecutor(child Executor) *DeleteExecutor {
	return &DeleteExecutor{child: child}
}

func (e *DeleteExecutor) TupleDesc() *storage.TupleDesc {
	return countDesc
}

func (e *DeleteExecutor) Init(ctx *ExecutorContext) error {
	e.executed = false
	e.emitted = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *DeleteExecutor) Next() bool {
	if !e.executed {
		e.executed = true
		for e.child.Next() {
			if err := e.ctx.BufferPool().DeleteTuple(e.ctx.TransactionID(), e.child.Current()); err != nil {
				e.err = err
				return false
			}
			e.cnt++
		}
		if err := e.child.Error(); err != nil {
			e.err = err
			return false
		}
	}
	if e.err != nil || e.emitted {
		return false
	}
	e.emitted = true
	return true
}

func (e *DeleteExecutor) Current() *storage.Tuple {
	return countTuple(e.cnt)
}

func (e *DeleteExecutor) Error() error {
	return e.err
}

func (e *DeleteExecutor) Rewind() error {
	e.emitted = false
	return nil
}

func (e *DeleteExecutor) Close() error {
	return e.child.Close()
}
