package execution

import (
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// AggregateExecutor computes one aggregate over its child, optionally grouped by one field. The
// child is consumed on the first call to Next.
type AggregateExecutor struct {
	child      Executor
	aggField   int
	groupField int
	op         AggOp
	newAgg     func() (Aggregator, error)
	desc       *storage.TupleDesc

	// Runtime state
	tuples       []*storage.Tuple
	currentIndex int
	err          error
}

// NewAggregateExecutor picks an IntegerAggregator or StringAggregator from the type of aggField.
// groupField may be NoGrouping.
func NewAggregateExecutor(child Executor, aggField, groupField int, op AggOp) (*AggregateExecutor, error) {
	childDesc := child.TupleDesc()
	aggType, err := childDesc.FieldType(aggField)
	if err != nil {
		return nil, err
	}
	newAgg := func() (Aggregator, error) {
		if aggType == common.StringType {
			return NewStringAggregator(childDesc, groupField, aggField, op)
		}
		return NewIntegerAggregator(childDesc, groupField, aggField, op)
	}
	// Build one up front to validate the arguments and learn the output schema.
	agg, err := newAgg()
	if err != nil {
		return nil, err
	}
	return &AggregateExecutor{
		child:        child,
		aggField:     aggField,
		groupField:   groupField,
		op:           op,
		newAgg:       newAgg,
		desc:         agg.TupleDesc(),
		currentIndex: -1,
	}, nil
}

func (e *AggregateExecutor) TupleDesc() *storage.TupleDesc {
	return e.desc
}

func (e *AggregateExecutor) Init(ctx *ExecutorContext) error {
	e.tuples = nil
	e.currentIndex = -1
	e.err = nil
	return e.child.Init(ctx)
}

func (e *AggregateExecutor) build() bool {
	agg, err := e.newAgg()
	if err != nil {
		e.err = err
		return false
	}
	for e.child.Next() {
		if err := agg.Merge(e.child.Current()); err != nil {
			e.err = err
			return false
		}
	}
	if err := e.child.Error(); err != nil {
		e.err = err
		return false
	}
	e.tuples = agg.Results()
	return true
}

func (e *AggregateExecutor) Next() bool {
	if e.tuples == nil {
		if e.err != nil || !e.build() {
			return false
		}
	}
	if e.currentIndex < len(e.tuples) {
		e.currentIndex++
	}
	return e.currentIndex < len(e.tuples)
}

func (e *AggregateExecutor) Current() *storage.Tuple {
	if e.currentIndex < 0 || e.currentIndex >= len(e.tuples) {
		return nil
	}
	return e.tuples[e.currentIndex]
}

func (e *AggregateExecutor) Error() error {
	return e.err
}

// Rewind replays the computed groups without reading the child again.
func (e *AggregateExecutor) Rewind() error {
	e.currentIndex = -1
	return nil
}

func (e *AggregateExecutor) Close() error {
	return e.child.Close()
}
