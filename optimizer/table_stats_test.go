package optimizer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/logging"
	"github.com/HITGYA/Mit-6.830/storage"
	"github.com/HITGYA/Mit-6.830/transaction"
)

func setupStats(t *testing.T, rows int) (*catalog.Catalog, *storage.BufferPool, *catalog.Table) {
	dir := t.TempDir()
	cat, err := catalog.NewCatalog(catalog.NewDiskCatalogManager(dir), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	table, err := cat.AddTable("items", []catalog.Column{
		{Name: "id", Type: common.IntType},
		{Name: "label", Type: common.StringType},
		{Name: "bucket", Type: common.IntType},
	}, "id")
	require.NoError(t, err)
	_, err = cat.AddTable("empty", []catalog.Column{{Name: "x", Type: common.IntType}}, "")
	require.NoError(t, err)

	bp := storage.NewBufferPool(64, cat, transaction.NewLockManager(), logging.NewPageLog(logging.NoopLogManager{}))
	const tid = common.TransactionID(1)
	desc := table.TupleDesc()
	for i := 0; i < rows; i++ {
		tup, err := storage.FromValues(desc,
			common.NewIntValue(int32(i)),
			common.NewStringValue(fmt.Sprintf("label-%03d", i)),
			common.NewIntValue(int32(i%10)))
		require.NoError(t, err)
		require.NoError(t, bp.InsertTuple(tid, table.Oid, tup))
	}
	require.NoError(t, bp.TransactionComplete(tid, true))
	return cat, bp, table
}

func TestTableStats(t *testing.T) {
	cat, bp, table := setupStats(t, 200)

	s, err := NewTableStats(cat, bp, 2, table.Oid, IOCostPerPage)
	require.NoError(t, err)
	defer bp.TransactionComplete(2, true)

	assert.Equal(t, 200, s.TotalTuples())
	file, err := cat.FileOf(table.Oid)
	require.NoError(t, err)
	numPages, err := file.NumPages()
	require.NoError(t, err)
	assert.Greater(t, numPages, 1)
	assert.Equal(t, float64(numPages*IOCostPerPage), s.EstimateScanCost())
	assert.Equal(t, 50, s.EstimateTableCardinality(0.25))

	sel, err := s.EstimateSelectivity(0, common.LessThan, common.NewIntValue(100))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sel, 0.02)

	sel, err = s.EstimateSelectivity(2, common.Equals, common.NewIntValue(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, sel, 0.01)

	sel, err = s.EstimateSelectivity(1, common.GreaterThanOrEqual, common.NewStringValue("a"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sel, 1e-9)

	_, err = s.EstimateSelectivity(1, common.Equals, common.NewIntValue(1))
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
	_, err = s.EstimateSelectivity(7, common.Equals, common.NewIntValue(1))
	assert.ErrorIs(t, err, common.ErrNoSuchObject)

	avg, err := s.AvgSelectivity(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, avg, 0.01)
	_, err = s.AvgSelectivity(9)
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
}

func TestComputeStatistics(t *testing.T) {
	cat, bp, _ := setupStats(t, 30)

	stats, err := ComputeStatistics(cat, bp, 3)
	require.NoError(t, err)
	defer bp.TransactionComplete(3, true)

	require.Len(t, stats, 2)
	assert.Equal(t, 30, stats["items"].TotalTuples())
	assert.Equal(t, 0, stats["empty"].TotalTuples())
	assert.Equal(t, 0.0, stats["empty"].EstimateScanCost())

	sel, err := stats["empty"].EstimateSelectivity(0, common.Equals, common.NewIntValue(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, sel)
}
