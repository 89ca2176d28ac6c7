package recovery

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/logging"
	"github.com/HITGYA/Mit-6.830/transaction"
)

type countingFlusher struct {
	calls atomic.Int32
	err   error

	// dirtiers are the transactions that own dirty pages; skipped collects those left unflushed
	dirtiers []common.TransactionID
	skipped  []common.TransactionID
}

func (f *countingFlusher) FlushCommittedPages(running func(common.TransactionID) bool) error {
	f.calls.Add(1)
	for _, tid := range f.dirtiers {
		if running(tid) {
			f.skipped = append(f.skipped, tid)
		}
	}
	return f.err
}

type fixedActive []transaction.ActiveTransaction

func (a fixedActive) IsActive(tid common.TransactionID) bool {
	for _, txn := range a {
		if txn.ID == tid {
			return true
		}
	}
	return false
}

func (a fixedActive) ActiveTransactions() []transaction.ActiveTransaction {
	return a
}

func checkpointRecords(t *testing.T, mem *logging.MemoryLogManager) []Checkpoint {
	var out []Checkpoint
	for _, r := range mem.Records() {
		if r.RecordType() != logging.LogCheckpoint {
			continue
		}
		cp, err := ParseCheckpoint(r)
		require.NoError(t, err)
		out = append(out, cp)
	}
	return out
}

func TestCheckpoint_FlushesThenLogs(t *testing.T) {
	flusher := &countingFlusher{}
	mem := logging.NewMemoryLogManager()
	active := fixedActive{{ID: 4}, {ID: 9}}
	c := NewCheckpointer(flusher, mem, active, time.Hour, nil)

	cp, err := c.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, int32(1), flusher.calls.Load())
	assert.Equal(t, 1, mem.Forces())
	assert.Equal(t, []common.TransactionID{4, 9}, cp.Active)
	assert.Equal(t, cp.ID, c.Last().ID)

	logged := checkpointRecords(t, mem)
	require.Len(t, logged, 1)
	assert.Equal(t, cp.ID, logged[0].ID)
	assert.Equal(t, cp.Active, logged[0].Active)

	next, err := c.Checkpoint()
	require.NoError(t, err)
	assert.NotEqual(t, cp.ID, next.ID)
	assert.Greater(t, next.LSN, cp.LSN)
}

func TestCheckpoint_LeavesRunningTransactionsPages(t *testing.T) {
	flusher := &countingFlusher{dirtiers: []common.TransactionID{3, 4, 7, 9}}
	c := NewCheckpointer(flusher, logging.NewMemoryLogManager(), fixedActive{{ID: 4}, {ID: 9}}, time.Hour, nil)
	_, err := c.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, []common.TransactionID{4, 9}, flusher.skipped)

	// Without an active set nothing counts as running.
	flusher = &countingFlusher{dirtiers: []common.TransactionID{3, 4}}
	c = NewCheckpointer(flusher, logging.NewMemoryLogManager(), nil, time.Hour, nil)
	_, err = c.Checkpoint()
	require.NoError(t, err)
	assert.Empty(t, flusher.skipped)
}

func TestCheckpoint_FlushFailureLogsNothing(t *testing.T) {
	flusher := &countingFlusher{err: errors.New("disk gone")}
	mem := logging.NewMemoryLogManager()
	c := NewCheckpointer(flusher, mem, nil, time.Hour, nil)

	_, err := c.Checkpoint()
	assert.EqualError(t, err, "disk gone")
	assert.Empty(t, mem.Records())
	assert.Equal(t, Checkpoint{}, c.Last())
}

func TestCheckpointer_RunsPeriodicallyAndOnStop(t *testing.T) {
	flusher := &countingFlusher{}
	mem := logging.NewMemoryLogManager()
	c := NewCheckpointer(flusher, mem, nil, 5*time.Millisecond, nil)
	c.Start()
	c.Start()

	require.Eventually(t, func() bool {
		return flusher.calls.Load() >= 2
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Stop())
	calls := flusher.calls.Load()
	assert.Len(t, checkpointRecords(t, mem), int(calls))

	// The loop is gone and a second Stop does not checkpoint again.
	require.NoError(t, c.Stop())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, flusher.calls.Load())
}

func TestCheckpointer_StopWithoutStart(t *testing.T) {
	flusher := &countingFlusher{}
	mem := logging.NewMemoryLogManager()
	c := NewCheckpointer(flusher, mem, nil, time.Hour, nil)

	require.NoError(t, c.Stop())
	assert.Equal(t, int32(1), flusher.calls.Load())
	assert.Len(t, checkpointRecords(t, mem), 1)
}

func TestParseCheckpoint_RejectsOtherRecords(t *testing.T) {
	_, err := ParseCheckpoint(logging.NewCommitRecord(1))
	assert.Error(t, err)
}
