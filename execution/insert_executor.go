package execution

import (
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// countDesc is the schema of the single tuple Insert and Delete produce.
var countDesc = storage.NewTupleDesc([]common.Type{common.IntType}, []string{"count"})

func countTuple(n int) *storage.Tuple {
	t, err := storage.FromValues(countDesc, common.NewIntValue(int32(n)))
	common.Assert(err == nil, "count tuple: %v", err)
	return t
}

// InsertExecutor reads every tuple from its child and inserts it into a table through the buffer
// pool. It produces a single tuple holding the number of rows inserted.
type InsertExecutor struct {
	tableID common.ObjectID
	child   Executor

	// Runtime state
	executed bool
	emitted  bool
	cnt      int
	ctx      *ExecutorContext
	err      error
}

func NewInsertExecutor(tableID common.ObjectID, child Executor) *InsertExecutor {
	return &InsertExecutor{
		tableID: tableID,
		child:   child,
	}
}

func (e *InsertExecutor) TupleDesc() *storage.TupleDesc {
	return countDesc
}

// Init fails with SchemaMismatchError if the child's tuples cannot be stored in the table.
func (e *InsertExecutor) Init(ctx *ExecutorContext) error {
	desc, err := ctx.Catalog().TupleDescOf(e.tableID)
	if err != nil {
		return err
	}
	if !desc.Equals(e.child.TupleDesc()) {
		return common.NewError(common.SchemaMismatchError, "cannot insert [%s] into table %d [%s]", e.child.TupleDesc(), e.tableID, desc)
	}
	e.executed = false
	e.emitted = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *InsertExecutor) Next() bool {
	if !e.executed {
		e.executed = true
		for e.child.Next() {
			if err := e.ctx.BufferPool().InsertTuple(e.ctx.TransactionID(), e.tableID, e.child.Current()); err != nil {
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

func (e *InsertExecutor) Current() *storage.Tuple {
	return countTuple(e.cnt)
}

func (e *InsertExecutor) Error() error {
	return e.err
}

// Rewind makes the count available again. The inserts are not repeated.
func (e *InsertExecutor) Rewind() error {
	e.emitted = false
	return nil
}

func (e *InsertExecutor) Close() error {
	return e.child.Close()
}
