package transaction

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/logging"
)

type completion struct {
	tid    common.TransactionID
	commit bool
}

type fakeCompleter struct {
	mu       sync.Mutex
	flushErr error
	flushed  []common.TransactionID
	done     []completion

	// when set, records whether the transaction still counted as active while it was completed
	isActive       func(common.TransactionID) bool
	activeDuringIt []bool
}

func (f *fakeCompleter) FlushPages(tid common.TransactionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.flushed = append(f.flushed, tid)
	return nil
}

func (f *fakeCompleter) TransactionComplete(tid common.TransactionID, commit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, completion{tid, commit})
	if f.isActive != nil {
		f.activeDuringIt = append(f.activeDuringIt, f.isActive(tid))
	}
	return nil
}

func recordTypes(mem *logging.MemoryLogManager) []logging.LogRecordType {
	var types []logging.LogRecordType
	for _, r := range mem.Records() {
		types = append(types, r.RecordType())
	}
	return types
}

func TestTransactionManager_CommitLifecycle(t *testing.T) {
	mem := logging.NewMemoryLogManager()
	fc := &fakeCompleter{}
	tm := NewTransactionManager(mem, fc, nil)

	tid, err := tm.Begin()
	require.NoError(t, err)
	assert.NotEqual(t, common.InvalidTransactionID, tid)
	require.Len(t, tm.ActiveTransactions(), 1)
	assert.Equal(t, tid, tm.ActiveTransactions()[0].ID)

	require.NoError(t, tm.Commit(tid))
	assert.Empty(t, tm.ActiveTransactions())
	assert.Equal(t, []common.TransactionID{tid}, fc.flushed)
	assert.Equal(t, []completion{{tid, true}}, fc.done)
	assert.Equal(t, []logging.LogRecordType{logging.LogBeginTransaction, logging.LogCommit}, recordTypes(mem))
	assert.Equal(t, 1, mem.Forces())

	// A finished transaction cannot be ended twice.
	assert.ErrorIs(t, tm.Commit(tid), common.ErrNoSuchObject)
	assert.ErrorIs(t, tm.Abort(tid), common.ErrNoSuchObject)
}

func TestTransactionManager_Abort(t *testing.T) {
	mem := logging.NewMemoryLogManager()
	fc := &fakeCompleter{}
	tm := NewTransactionManager(mem, fc, nil)
	fc.isActive = tm.IsActive

	tid, err := tm.Begin()
	require.NoError(t, err)
	assert.True(t, tm.IsActive(tid))
	require.NoError(t, tm.Abort(tid))

	assert.Empty(t, fc.flushed)
	assert.Equal(t, []completion{{tid, false}}, fc.done)
	// The rollback runs while tid still counts as active, so a checkpoint cannot write its pages.
	assert.Equal(t, []bool{true}, fc.activeDuringIt)
	assert.False(t, tm.IsActive(tid))
	assert.Equal(t, []logging.LogRecordType{logging.LogBeginTransaction, logging.LogAbort}, recordTypes(mem))
}

func TestTransactionManager_FailedFlushAborts(t *testing.T) {
	mem := logging.NewMemoryLogManager()
	boom := errors.New("disk gone")
	fc := &fakeCompleter{flushErr: boom}
	tm := NewTransactionManager(mem, fc, nil)

	tid, err := tm.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, tm.Commit(tid), boom)
	assert.Equal(t, []completion{{tid, false}}, fc.done)
	assert.Empty(t, tm.ActiveTransactions())
	assert.Equal(t, []logging.LogRecordType{logging.LogBeginTransaction, logging.LogAbort}, recordTypes(mem))
}

func TestTransactionManager_UniqueIDs(t *testing.T) {
	tm := NewTransactionManager(logging.NoopLogManager{}, &fakeCompleter{}, nil)

	const n = 100
	ids := make(chan common.TransactionID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tid, err := tm.Begin()
			assert.NoError(t, err)
			ids <- tid
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[common.TransactionID]bool)
	for tid := range ids {
		assert.False(t, seen[tid], "duplicate tid %d", tid)
		seen[tid] = true
	}
	active := tm.ActiveTransactions()
	require.Len(t, active, n)
	for i := 1; i < n; i++ {
		assert.Less(t, active[i-1].ID, active[i].ID)
	}
}
