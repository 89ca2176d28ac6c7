package execution

import (
	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// SeqScanExecutor implements a sequential scan over a table. Output field names are qualified with
// the scan's alias ("alias.field").
type SeqScanExecutor struct {
	tableID common.ObjectID
	alias   string
	desc    *storage.TupleDesc

	// Runtime state
	iterator *storage.HeapFileIterator
	current  *storage.Tuple
	err      error
}

// NewSeqScanExecutor creates a scan of tableID. An empty alias defaults to the table name.
func NewSeqScanExecutor(cat *catalog.Catalog, tableID common.ObjectID, alias string) (*SeqScanExecutor, error) {
	table, err := cat.TableByID(tableID)
	if err != nil {
		return nil, err
	}
	if alias == "" {
		alias = table.Name
	}
	return &SeqScanExecutor{
		tableID: tableID,
		alias:   alias,
		desc:    table.TupleDesc().Qualify(alias),
	}, nil
}

func (e *SeqScanExecutor) Alias() string {
	return e.alias
}

func (e *SeqScanExecutor) TableID() common.ObjectID {
	return e.tableID
}

func (e *SeqScanExecutor) TupleDesc() *storage.TupleDesc {
	return e.desc
}

func (e *SeqScanExecutor) Init(ctx *ExecutorContext) error {
	file, err := ctx.Catalog().FileOf(e.tableID)
	if err != nil {
		return err
	}
	e.iterator = file.Iterator(ctx.BufferPool(), ctx.TransactionID())
	e.current = nil
	e.err = nil
	return nil
}

func (e *SeqScanExecutor) Next() bool {
	common.Assert(e.iterator != nil, "SeqScanExecutor.Init() must be called before calling Next()")
	if !e.iterator.Next() {
		e.current = nil
		return false
	}
	// Page tuples are shared, so the qualified view is a fresh tuple carrying the same RecordID.
	stored := e.iterator.Current()
	t, err := storage.FromValues(e.desc, stored.Fields()...)
	if err != nil {
		e.err = err
		e.current = nil
		return false
	}
	t.SetRecordID(stored.RecordID())
	e.current = t
	return true
}

func (e *SeqScanExecutor) Current() *storage.Tuple {
	return e.current
}

func (e *SeqScanExecutor) Error() error {
	if e.err != nil {
		return e.err
	}
	if e.iterator != nil {
		return e.iterator.Error()
	}
	return nil
}

func (e *SeqScanExecutor) Rewind() error {
	e.current = nil
	e.err = nil
	return e.iterator.Rewind()
}

func (e *SeqScanExecutor) Close() error {
	if e.iterator != nil {
		return e.iterator.Close()
	}
	return nil
}
