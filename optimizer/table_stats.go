package optimizer

import (
	"math"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

const (
	// IOCostPerPage is the default cost of reading one page.
	IOCostPerPage = 1000
	// NumHistBins is the number of buckets in every per-field histogram.
	NumHistBins = 100
)

// TableStats holds per-field histograms and size information for one table, built by scanning it
// through the buffer pool.
type TableStats struct {
	tableID       common.ObjectID
	ioCostPerPage int
	desc          *storage.TupleDesc
	numPages      int
	total         int

	intHists    map[int]*IntHistogram
	stringHists map[int]*StringHistogram
}

// NewTableStats scans tableID twice on behalf of tid: once for the range of every int field and
// once to fill the histograms. The caller owns tid and must end it.
func NewTableStats(cat *catalog.Catalog, bp *storage.BufferPool, tid common.TransactionID, tableID common.ObjectID, ioCostPerPage int) (*TableStats, error) {
	file, err := cat.FileOf(tableID)
	if err != nil {
		return nil, err
	}
	desc := file.TupleDesc()
	s := &TableStats{
		tableID:       tableID,
		ioCostPerPage: ioCostPerPage,
		desc:          desc,
		intHists:      make(map[int]*IntHistogram),
		stringHists:   make(map[int]*StringHistogram),
	}

	mins := make(map[int]int)
	maxs := make(map[int]int)
	for i, t := range desc.Types() {
		switch t {
		case common.IntType:
			mins[i], maxs[i] = math.MaxInt32, math.MinInt32
		case common.StringType:
			s.stringHists[i] = NewStringHistogram(NumHistBins)
		}
	}

	it := file.Iterator(bp, tid)
	defer it.Close()
	for it.Next() {
		s.total++
		for i, v := range it.Current().Fields() {
			switch v.Type() {
			case common.IntType:
				x := int(v.IntValue())
				mins[i] = min(mins[i], x)
				maxs[i] = max(maxs[i], x)
			case common.StringType:
				s.stringHists[i].AddValue(v.StringValue())
			}
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	for i := range mins {
		if s.total == 0 {
			mins[i], maxs[i] = 0, 0
		}
		s.intHists[i] = NewIntHistogram(NumHistBins, mins[i], maxs[i])
	}
	if len(s.intHists) > 0 && s.total > 0 {
		if err := it.Rewind(); err != nil {
			return nil, err
		}
		for it.Next() {
			for i, v := range it.Current().Fields() {
				if h, ok := s.intHists[i]; ok {
					h.AddValue(int(v.IntValue()))
				}
			}
		}
		if err := it.Error(); err != nil {
			return nil, err
		}
	}

	if s.numPages, err = file.NumPages(); err != nil {
		return nil, err
	}
	return s, nil
}

// ComputeStatistics builds TableStats for every table in the catalog concurrently and returns them
// keyed by table name.
func ComputeStatistics(cat *catalog.Catalog, bp *storage.BufferPool, tid common.TransactionID) (map[string]*TableStats, error) {
	stats := xsync.NewMapOf[string, *TableStats]()
	var g errgroup.Group
	for _, oid := range cat.TableIDs() {
		g.Go(func() error {
			name, err := cat.TableName(oid)
			if err != nil {
				return err
			}
			s, err := NewTableStats(cat, bp, tid, oid, IOCostPerPage)
			if err != nil {
				return err
			}
			stats.Store(name, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]*TableStats, stats.Size())
	stats.Range(func(name string, s *TableStats) bool {
		result[name] = s
		return true
	})
	return result, nil
}

// EstimateScanCost is the cost of reading every page of the table once.
func (s *TableStats) EstimateScanCost() float64 {
	return float64(s.numPages * s.ioCostPerPage)
}

// EstimateTableCardinality is the number of tuples expected to survive a predicate of the given
// selectivity.
func (s *TableStats) EstimateTableCardinality(selectivity float64) int {
	return int(float64(s.total) * selectivity)
}

func (s *TableStats) TotalTuples() int {
	return s.total
}

// AvgSelectivity returns the expected selectivity of an equality predicate on field.
func (s *TableStats) AvgSelectivity(field int) (float64, error) {
	if h, ok := s.intHists[field]; ok {
		return h.AvgSelectivity(), nil
	}
	if h, ok := s.stringHists[field]; ok {
		return h.AvgSelectivity(), nil
	}
	return 0, common.NewError(common.NoSuchObjectError, "table %d has no field %d", s.tableID, field)
}

// EstimateSelectivity estimates the fraction of tuples whose field satisfies "field op constant".
func (s *TableStats) EstimateSelectivity(field int, op common.CompareOp, constant common.Value) (float64, error) {
	ft, err := s.desc.FieldType(field)
	if err != nil {
		return 0, err
	}
	if ft != constant.Type() {
		return 0, common.NewError(common.SchemaMismatchError, "field %d is %s, constant is %s", field, ft, constant.Type())
	}
	if ft == common.IntType {
		return s.intHists[field].EstimateSelectivity(op, int(constant.IntValue())), nil
	}
	return s.stringHists[field].EstimateSelectivity(op, constant.StringValue()), nil
}
