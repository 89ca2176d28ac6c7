package transaction

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/metrics"
)

// PageLock is a point-in-time view of a lock on one page: its mode and how many transactions
// share it.
type PageLock struct {
	PageID    common.PageID
	Perm      common.Permission
	HoldCount int
}

func (l PageLock) String() string {
	return fmt.Sprintf("%s[%s x%d]", l.PageID, l.Perm, l.HoldCount)
}

// pageLock is the shared control block for one page. Every holder of the page points at it.
type pageLock struct {
	pid     common.PageID
	perm    common.Permission
	holders map[common.TransactionID]struct{}
}

func (l *pageLock) snapshot() PageLock {
	return PageLock{PageID: l.pid, Perm: l.perm, HoldCount: len(l.holders)}
}

// LockManager implements strict two-phase page locking with shared and exclusive modes.
//
// A shared lock is granted while no one holds the page exclusively. An exclusive lock is granted
// on a free page, or in place when the requester is the only shared holder. Anything else blocks,
// after adding wait-for edges from the requester to every other holder. If those edges close a cycle
// the request fails with DeadlockError instead of blocking. The holder is never aborted by the
// manager.
//
// All state (lock table, per-transaction index, wait-for graph) is guarded by one mutex; blocked
// requesters sleep on a condition variable that is broadcast on every release.
type LockManager struct {
	mu   sync.Mutex
	cond *sync.Cond

	locks    map[common.PageID]*pageLock
	txnLocks map[common.TransactionID]map[common.PageID]*pageLock
	// waiting records the page each blocked transaction is waiting for.
	waiting map[common.TransactionID]common.PageID
	graph   *waitForGraph

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// LockManagerOption configures a LockManager.
type LockManagerOption func(*LockManager)

// WithLogger sets the logger used for lock waits and deadlocks.
func WithLogger(logger *zap.Logger) LockManagerOption {
	return func(lm *LockManager) {
		lm.logger = logger
	}
}

// WithMetrics sets the collectors that count waits and deadlocks.
func WithMetrics(m *metrics.Metrics) LockManagerOption {
	return func(lm *LockManager) {
		lm.metrics = m
	}
}

// NewLockManager initializes an empty LockManager.
func NewLockManager(opts ...LockManagerOption) *LockManager {
	lm := &LockManager{
		locks:    make(map[common.PageID]*pageLock),
		txnLocks: make(map[common.TransactionID]map[common.PageID]*pageLock),
		waiting:  make(map[common.TransactionID]common.PageID),
		graph:    newWaitForGraph(),
		logger:   zap.NewNop(),
	}
	lm.cond = sync.NewCond(&lm.mu)
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// Acquire obtains a lock on pid in mode perm for tid, blocking until it is granted. It returns
// GoDBError(DeadlockError) without blocking if waiting would deadlock; in that case only the
// wait-for edges added by this call are undone and every lock tid already holds is kept.
func (lm *LockManager) Acquire(tid common.TransactionID, pid common.PageID, perm common.Permission) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	waited := false
	for {
		granted, blockers := lm.tryGrant(tid, pid, perm)
		if granted {
			return nil
		}

		for _, holder := range blockers {
			lm.graph.addEdge(tid, holder)
		}
		if lm.graph.hasCycle() {
			lm.graph.removeOutgoing(tid)
			lm.metrics.Deadlocked()
			lm.logger.Info("deadlock detected, rejecting lock request",
				zap.Uint64("tid", uint64(tid)),
				zap.Stringer("page", pid),
				zap.Stringer("perm", perm),
				zap.Any("holders", blockers))
			return common.NewError(common.DeadlockError, "txn %d requesting %s on %s would deadlock with %v", tid, perm, pid, blockers)
		}

		if !waited {
			waited = true
			lm.metrics.LockWaited()
			lm.logger.Debug("lock request blocked",
				zap.Uint64("tid", uint64(tid)),
				zap.Stringer("page", pid),
				zap.Stringer("perm", perm))
		}
		lm.waiting[tid] = pid
		lm.cond.Wait()
		delete(lm.waiting, tid)
		// Re-derive edges from the current holders on the next attempt.
		lm.graph.removeOutgoing(tid)
	}
}

// tryGrant grants the request if it is compatible with the current holders. Otherwise it returns
// the transactions standing in the way.
func (lm *LockManager) tryGrant(tid common.TransactionID, pid common.PageID, perm common.Permission) (bool, []common.TransactionID) {
	l, ok := lm.locks[pid]
	if !ok {
		l = &pageLock{pid: pid, perm: perm, holders: map[common.TransactionID]struct{}{tid: {}}}
		lm.locks[pid] = l
		lm.track(tid, l)
		return true, nil
	}

	if _, holds := l.holders[tid]; holds {
		if perm == common.ReadOnly || l.perm == common.ReadWrite {
			return true, nil
		}
		if len(l.holders) == 1 {
			l.perm = common.ReadWrite
			return true, nil
		}
		return false, l.holdersExcept(tid)
	}

	if perm == common.ReadOnly && l.perm == common.ReadOnly {
		l.holders[tid] = struct{}{}
		lm.track(tid, l)
		return true, nil
	}
	return false, l.holdersExcept(tid)
}

func (l *pageLock) holdersExcept(tid common.TransactionID) []common.TransactionID {
	others := make([]common.TransactionID, 0, len(l.holders))
	for h := range l.holders {
		if h != tid {
			others = append(others, h)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	return others
}

func (lm *LockManager) track(tid common.TransactionID, l *pageLock) {
	held, ok := lm.txnLocks[tid]
	if !ok {
		held = make(map[common.PageID]*pageLock)
		lm.txnLocks[tid] = held
	}
	held[l.pid] = l
}

// Release drops tid's hold on pid and wakes all blocked requesters. Releasing a lock that is not
// held is a no-op.
func (lm *LockManager) Release(tid common.TransactionID, pid common.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.releaseLocked(tid, pid) {
		lm.cond.Broadcast()
	}
}

func (lm *LockManager) releaseLocked(tid common.TransactionID, pid common.PageID) bool {
	l, ok := lm.locks[pid]
	if !ok {
		return false
	}
	if _, holds := l.holders[tid]; !holds {
		return false
	}
	delete(l.holders, tid)
	if len(l.holders) == 0 {
		delete(lm.locks, pid)
	}
	if held, ok := lm.txnLocks[tid]; ok {
		delete(held, pid)
		if len(held) == 0 {
			delete(lm.txnLocks, tid)
		}
	}
	// Waiters on this page no longer wait for tid.
	for waiter, waitPid := range lm.waiting {
		if waitPid == pid {
			if out, ok := lm.graph.edges[waiter]; ok {
				delete(out, tid)
			}
		}
	}
	return true
}

// ReleaseAll drops every lock held by tid and removes it from the wait-for graph. It is called
// once a transaction has committed or aborted.
func (lm *LockManager) ReleaseAll(tid common.TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for pid := range lm.txnLocks[tid] {
		lm.releaseLocked(tid, pid)
	}
	lm.graph.removeVertex(tid)
	lm.cond.Broadcast()
}

// HoldsLock reports whether tid currently holds any lock on pid.
func (lm *LockManager) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.txnLocks[tid][pid]
	return ok
}

// LocksOf returns a snapshot of every lock tid holds, ordered by page.
func (lm *LockManager) LocksOf(tid common.TransactionID) []PageLock {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	held := lm.txnLocks[tid]
	result := make([]PageLock, 0, len(held))
	for _, l := range held {
		result = append(result, l.snapshot())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PageID.Less(result[j].PageID) })
	return result
}

// PagesOf returns the pages tid holds locks on, ordered by page.
func (lm *LockManager) PagesOf(tid common.TransactionID) []common.PageID {
	locks := lm.LocksOf(tid)
	pids := make([]common.PageID, len(locks))
	for i, l := range locks {
		pids[i] = l.PageID
	}
	return pids
}

// LockOn returns the current state of the lock on pid, if any.
func (lm *LockManager) LockOn(pid common.PageID) (PageLock, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.locks[pid]
	if !ok {
		return PageLock{}, false
	}
	return l.snapshot(), true
}
