package execution

import (
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// TupleListExecutor produces a fixed list of tuples. It is the leaf used to feed literal rows into
// Insert.
type TupleListExecutor struct {
	desc   *storage.TupleDesc
	tuples []*storage.Tuple
	idx    int
}

// NewTupleListExecutor checks that every tuple matches desc.
func NewTupleListExecutor(desc *storage.TupleDesc, tuples []*storage.Tuple) (*TupleListExecutor, error) {
	for i, t := range tuples {
		if !desc.Equals(t.TupleDesc()) {
			return nil, common.NewError(common.SchemaMismatchError, "tuple %d has schema [%s], want [%s]", i, t.TupleDesc(), desc)
		}
	}
	return &TupleListExecutor{desc: desc, tuples: tuples, idx: -1}, nil
}

func (e *TupleListExecutor) TupleDesc() *storage.TupleDesc {
	return e.desc
}

func (e *TupleListExecutor) Init(*ExecutorContext) error {
	e.idx = -1
	return nil
}

func (e *TupleListExecutor) Next() bool {
	if e.idx < len(e.tuples) {
		e.idx++
	}
	return e.idx < len(e.tuples)
}

func (e *TupleListExecutor) Current() *storage.Tuple {
	if e.idx < 0 || e.idx >= len(e.tuples) {
		return nil
	}
	return e.tuples[e.idx]
}

func (e *TupleListExecutor) Error() error {
	return nil
}

func (e *TupleListExecutor) Rewind() error {
	e.idx = -1
	return nil
}

func (e *TupleListExecutor) Close() error {
	return nil
}
