package execution

import (
	"fmt"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// NoGrouping is the group-by field index meaning "aggregate over all tuples".
const NoGrouping = -1

type AggOp int

const (
	AggCount AggOp = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (op AggOp) String() string {
	switch op {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "unknown"
}

// Aggregator folds tuples into per-group aggregate state and returns one result tuple per group.
type Aggregator interface {
	// Merge adds t to the aggregate of its group.
	Merge(t *storage.Tuple) error
	// Results returns (group, aggregate) tuples, or a single (aggregate) tuple without grouping.
	Results() []*storage.Tuple
	TupleDesc() *storage.TupleDesc
}

// aggState is the running state of one group.
type aggState struct {
	group common.Value
	count int64
	sum   int64
	min   int32
	max   int32
}

// groupedAggregator tracks groups by value in first-seen order.
type groupedAggregator struct {
	groupField int
	aggField   int
	op         AggOp
	desc       *storage.TupleDesc

	groups map[common.Value]*aggState
	order  []*aggState
}

func newGroupedAggregator(child *storage.TupleDesc, groupField, aggField int, op AggOp) (*groupedAggregator, error) {
	aggName, err := child.FieldName(aggField)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s(%s)", op, aggName)

	var desc *storage.TupleDesc
	if groupField == NoGrouping {
		desc = storage.NewTupleDesc([]common.Type{common.IntType}, []string{name})
	} else {
		groupType, err := child.FieldType(groupField)
		if err != nil {
			return nil, err
		}
		groupName, _ := child.FieldName(groupField)
		desc = storage.NewTupleDesc([]common.Type{groupType, common.IntType}, []string{groupName, name})
	}
	return &groupedAggregator{
		groupField: groupField,
		aggField:   aggField,
		op:         op,
		desc:       desc,
		groups:     make(map[common.Value]*aggState),
	}, nil
}

func (a *groupedAggregator) TupleDesc() *storage.TupleDesc {
	return a.desc
}

func (a *groupedAggregator) stateFor(t *storage.Tuple) (*aggState, error) {
	var key common.Value
	if a.groupField != NoGrouping {
		v, err := t.Field(a.groupField)
		if err != nil {
			return nil, err
		}
		key = v
	}
	s, ok := a.groups[key]
	if !ok {
		s = &aggState{group: key}
		a.groups[key] = s
		a.order = append(a.order, s)
	}
	return s, nil
}

func (a *groupedAggregator) value(s *aggState) int32 {
	switch a.op {
	case AggCount:
		return int32(s.count)
	case AggSum:
		return int32(s.sum)
	case AggAvg:
		return int32(s.sum / s.count)
	case AggMin:
		return s.min
	case AggMax:
		return s.max
	}
	panic("unknown aggregate")
}

func (a *groupedAggregator) Results() []*storage.Tuple {
	result := make([]*storage.Tuple, 0, len(a.order))
	for _, s := range a.order {
		agg := common.NewIntValue(a.value(s))
		var t *storage.Tuple
		var err error
		if a.groupField == NoGrouping {
			t, err = storage.FromValues(a.desc, agg)
		} else {
			t, err = storage.FromValues(a.desc, s.group, agg)
		}
		common.Assert(err == nil, "aggregate result: %v", err)
		result = append(result, t)
	}
	return result
}

// IntegerAggregator computes any AggOp over an int field.
type IntegerAggregator struct {
	*groupedAggregator
}

func NewIntegerAggregator(child *storage.TupleDesc, groupField, aggField int, op AggOp) (*IntegerAggregator, error) {
	if ft, err := child.FieldType(aggField); err != nil {
		return nil, err
	} else if ft != common.IntType {
		return nil, common.NewError(common.SchemaMismatchError, "integer aggregate over %s field %d", ft, aggField)
	}
	g, err := newGroupedAggregator(child, groupField, aggField, op)
	if err != nil {
		return nil, err
	}
	return &IntegerAggregator{g}, nil
}

func (a *IntegerAggregator) Merge(t *storage.Tuple) error {
	v, err := t.Field(a.aggField)
	if err != nil {
		return err
	}
	s, err := a.stateFor(t)
	if err != nil {
		return err
	}
	x := v.IntValue()
	if s.count == 0 || x < s.min {
		s.min = x
	}
	if s.count == 0 || x > s.max {
		s.max = x
	}
	s.count++
	s.sum += int64(x)
	return nil
}

// StringAggregator counts string values. COUNT is the only operator it supports.
type StringAggregator struct {
	*groupedAggregator
}

func NewStringAggregator(child *storage.TupleDesc, groupField, aggField int, op AggOp) (*StringAggregator, error) {
	if op != AggCount {
		return nil, common.NewError(common.SchemaMismatchError, "%s is not supported on string fields", op)
	}
	g, err := newGroupedAggregator(child, groupField, aggField, op)
	if err != nil {
		return nil, err
	}
	return &StringAggregator{g}, nil
}

func (a *StringAggregator) Merge(t *storage.Tuple) error {
	if _, err := t.Field(a.aggField); err != nil {
		return err
	}
	s, err := a.stateFor(t)
	if err != nil {
		return err
	}
	s.count++
	return nil
}
