package execution

import (
	"fmt"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// Predicate compares one field of a tuple against a constant.
type Predicate struct {
	Field   int
	Op      common.CompareOp
	Operand common.Value
}

func NewPredicate(field int, op common.CompareOp, operand common.Value) Predicate {
	return Predicate{Field: field, Op: op, Operand: operand}
}

// Filter reports whether t satisfies the predicate. A missing field or a type mismatch never does.
func (p Predicate) Filter(t *storage.Tuple) bool {
	v, err := t.Field(p.Field)
	if err != nil || v.Type() != p.Operand.Type() {
		return false
	}
	return v.Satisfies(p.Op, p.Operand)
}

func (p Predicate) String() string {
	return fmt.Sprintf("f%d %s %s", p.Field, p.Op, p.Operand)
}

// FilterExecutor filters tuples from its child executor based on a predicate.
type FilterExecutor struct {
	pred  Predicate
	child Executor
}

// NewFilter creates a new FilterExecutor executor.
func NewFilter(pred Predicate, child Executor) *FilterExecutor {
	return &FilterExecutor{
		pred:  pred,
		child: child,
	}
}

func (e *FilterExecutor) Predicate() Predicate {
	return e.pred
}

func (e *FilterExecutor) TupleDesc() *storage.TupleDesc {
	return e.child.TupleDesc()
}

// Init initializes the child.
func (e *FilterExecutor) Init(ctx *ExecutorContext) error {
	return e.child.Init(ctx)
}

func (e *FilterExecutor) Next() bool {
	for e.child.Next() {
		if e.pred.Filter(e.child.Current()) {
			return true
		}
	}
	return false
}

func (e *FilterExecutor) Current() *storage.Tuple {
	return e.child.Current()
}

func (e *FilterExecutor) Error() error {
	return e.child.Error()
}

func (e *FilterExecutor) Rewind() error {
	return e.child.Rewind()
}

func (e *FilterExecutor) Close() error {
	return e.child.Close()
}
