package transaction

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/metrics"
)

var (
	pageA = common.PageID{Oid: 1, PageNum: 0}
	pageB = common.PageID{Oid: 1, PageNum: 1}
)

func isWaiting(lm *LockManager, tid common.TransactionID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.waiting[tid]
	return ok
}

func waitUntilBlocked(t *testing.T, lm *LockManager, tid common.TransactionID) {
	require.Eventually(t, func() bool { return isWaiting(lm, tid) }, 2*time.Second, time.Millisecond,
		"txn %d never blocked", tid)
}

func TestLockManager_SharedLocksCoexist(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(2, pageA, common.ReadOnly))

	assert.True(t, lm.HoldsLock(1, pageA))
	assert.True(t, lm.HoldsLock(2, pageA))
	l, ok := lm.LockOn(pageA)
	require.True(t, ok)
	assert.Equal(t, common.ReadOnly, l.Perm)
	assert.Equal(t, 2, l.HoldCount)
}

func TestLockManager_ReacquireIsIdempotent(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadWrite))
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(1, pageA, common.ReadWrite))

	locks := lm.LocksOf(1)
	require.Len(t, locks, 1)
	assert.Equal(t, common.ReadWrite, locks[0].Perm)
	assert.Equal(t, 1, locks[0].HoldCount)
}

func TestLockManager_ExclusiveBlocksUntilRelease(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadWrite))

	var g errgroup.Group
	g.Go(func() error {
		return lm.Acquire(2, pageA, common.ReadOnly)
	})
	waitUntilBlocked(t, lm, 2)
	assert.False(t, lm.HoldsLock(2, pageA))

	lm.ReleaseAll(1)
	require.NoError(t, g.Wait())
	assert.True(t, lm.HoldsLock(2, pageA))
	assert.False(t, lm.HoldsLock(1, pageA))
}

func TestLockManager_ExclusiveWaitsForEveryReader(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(2, pageA, common.ReadOnly))

	var g errgroup.Group
	g.Go(func() error {
		return lm.Acquire(3, pageA, common.ReadWrite)
	})
	waitUntilBlocked(t, lm, 3)

	// One reader leaving is not enough.
	lm.ReleaseAll(1)
	assert.Never(t, func() bool { return lm.HoldsLock(3, pageA) }, 50*time.Millisecond, time.Millisecond)
	assert.True(t, lm.HoldsLock(2, pageA))

	lm.ReleaseAll(2)
	require.NoError(t, g.Wait())
	l, ok := lm.LockOn(pageA)
	require.True(t, ok)
	assert.Equal(t, common.ReadWrite, l.Perm)
	assert.Equal(t, 1, l.HoldCount)
	assert.True(t, lm.HoldsLock(3, pageA))
}

func TestLockManager_SoleHolderUpgradesInPlace(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(1, pageA, common.ReadWrite))

	l, ok := lm.LockOn(pageA)
	require.True(t, ok)
	assert.Equal(t, common.ReadWrite, l.Perm)
	assert.Equal(t, 1, l.HoldCount)
}

func TestLockManager_UpgradeWaitsForOtherReaders(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(2, pageA, common.ReadOnly))

	var g errgroup.Group
	g.Go(func() error {
		return lm.Acquire(1, pageA, common.ReadWrite)
	})
	waitUntilBlocked(t, lm, 1)

	lm.Release(2, pageA)
	require.NoError(t, g.Wait())
	l, _ := lm.LockOn(pageA)
	assert.Equal(t, common.ReadWrite, l.Perm)
}

func TestLockManager_DeadlockRejectsClosingRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	lm := NewLockManager(WithMetrics(m))

	require.NoError(t, lm.Acquire(1, pageA, common.ReadWrite))
	require.NoError(t, lm.Acquire(2, pageB, common.ReadWrite))

	var g errgroup.Group
	g.Go(func() error {
		return lm.Acquire(1, pageB, common.ReadWrite)
	})
	waitUntilBlocked(t, lm, 1)

	err := lm.Acquire(2, pageA, common.ReadWrite)
	require.Error(t, err)
	assert.True(t, common.IsDeadlock(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deadlocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockWaits))

	// The victim keeps what it already had until it ends.
	assert.True(t, lm.HoldsLock(2, pageB))

	lm.ReleaseAll(2)
	require.NoError(t, g.Wait())
	assert.Equal(t, []common.PageID{pageA, pageB}, lm.PagesOf(1))
}

func TestLockManager_ConcurrentUpgradeDeadlock(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.Acquire(1, pageA, common.ReadOnly))
	require.NoError(t, lm.Acquire(2, pageA, common.ReadOnly))

	var g errgroup.Group
	g.Go(func() error {
		return lm.Acquire(1, pageA, common.ReadWrite)
	})
	waitUntilBlocked(t, lm, 1)

	err := lm.Acquire(2, pageA, common.ReadWrite)
	assert.ErrorIs(t, err, common.ErrDeadlock)

	lm.ReleaseAll(2)
	require.NoError(t, g.Wait())
	l, _ := lm.LockOn(pageA)
	assert.Equal(t, common.ReadWrite, l.Perm)
	assert.Equal(t, 1, l.HoldCount)
}

func TestLockManager_ReleaseNotHeldIsNoop(t *testing.T) {
	lm := NewLockManager()
	lm.Release(1, pageA)
	require.NoError(t, lm.Acquire(2, pageA, common.ReadOnly))
	lm.Release(1, pageA)
	assert.True(t, lm.HoldsLock(2, pageA))
	lm.ReleaseAll(3)
	assert.Empty(t, lm.LocksOf(3))
}

func TestLockManager_ReleaseAllClearsEverything(t *testing.T) {
	lm := NewLockManager()
	for i := int32(0); i < 5; i++ {
		require.NoError(t, lm.Acquire(1, common.PageID{Oid: 2, PageNum: i}, common.ReadWrite))
	}
	assert.Len(t, lm.LocksOf(1), 5)

	lm.ReleaseAll(1)
	assert.Empty(t, lm.LocksOf(1))
	for i := int32(0); i < 5; i++ {
		_, ok := lm.LockOn(common.PageID{Oid: 2, PageNum: i})
		assert.False(t, ok)
	}
}

func TestWaitForGraph_Cycles(t *testing.T) {
	g := newWaitForGraph()
	g.addEdge(1, 2)
	g.addEdge(2, 3)
	assert.False(t, g.hasCycle())
	g.addEdge(3, 1)
	assert.True(t, g.hasCycle())

	g.removeOutgoing(3)
	assert.False(t, g.hasCycle())
	g.addEdge(3, 1)
	g.removeVertex(2)
	assert.False(t, g.hasCycle())
}
