package storage

import (
	"sync"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/metrics"
	"github.com/HITGYA/Mit-6.830/transaction"
)

// Catalog resolves a table id to its schema and backing file. The buffer pool only reads from it.
type Catalog interface {
	TupleDescOf(oid common.ObjectID) (*TupleDesc, error)
	FileOf(oid common.ObjectID) (*HeapFile, error)
}

// LogFile is the write-ahead log as seen by the buffer pool. LogWrite records the before and after
// images of a page about to be written; Force makes every record written so far durable.
type LogFile interface {
	LogWrite(tid common.TransactionID, pid common.PageID, before, after []byte) error
	Force() error
}

// BufferPool caches pages in memory and is the only way operators reach them. Every access takes a
// page lock through the LockManager first; pages stay cached until evicted or discarded.
//
// Eviction is no-steal: only clean pages are ever evicted, so a dirty page reaches disk only
// through FlushPage, after its images have been logged and the log forced. When every resident page
// is dirty, requests that need a free frame fail with BufferPoolFullError.
type BufferPool struct {
	numPages    int
	cache       *LRUCache[common.PageID, Page]
	catalog     Catalog
	lockManager *transaction.LockManager
	log         LogFile

	// mu makes evict-then-insert, flush and rollback atomic with respect to each other. It is never
	// held while waiting for a page lock.
	mu sync.Mutex

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// BufferPoolOption configures a BufferPool.
type BufferPoolOption func(*BufferPool)

// WithLogger sets the logger used for eviction, flush and rollback events.
func WithLogger(logger *zap.Logger) BufferPoolOption {
	return func(bp *BufferPool) {
		bp.logger = logger
	}
}

// WithMetrics sets the collectors that count hits, misses, evictions and flushes.
func WithMetrics(m *metrics.Metrics) BufferPoolOption {
	return func(bp *BufferPool) {
		bp.metrics = m
	}
}

// NewBufferPool creates a pool holding at most numPages pages.
func NewBufferPool(numPages int, catalog Catalog, lockManager *transaction.LockManager, log LogFile, opts ...BufferPoolOption) *BufferPool {
	common.Assert(numPages > 0, "buffer pool needs at least one page, got %d", numPages)
	bp := &BufferPool{
		numPages:    numPages,
		cache:       NewLRUCache[common.PageID, Page](numPages),
		catalog:     catalog,
		lockManager: lockManager,
		log:         log,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// NumPages returns the capacity of the pool.
func (bp *BufferPool) NumPages() int {
	return bp.numPages
}

// NumResident returns how many pages are cached right now.
func (bp *BufferPool) NumResident() int {
	return bp.cache.Len()
}

func (bp *BufferPool) LockManager() *transaction.LockManager {
	return bp.lockManager
}

// GetPage returns page pid on behalf of tid, locking it in mode perm first. The call blocks while
// the lock is held by others and fails with DeadlockError if waiting would deadlock. On a miss the
// page is read from its heap file, evicting a clean page first if the pool is full.
func (bp *BufferPool) GetPage(tid common.TransactionID, pid common.PageID, perm common.Permission) (Page, error) {
	if err := bp.lockManager.Acquire(tid, pid, perm); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if p, ok := bp.cache.Get(pid); ok {
		bp.metrics.PageHit()
		return p, nil
	}
	bp.metrics.PageMiss()

	if err := bp.makeRoomLocked(); err != nil {
		return nil, err
	}
	p, err := bp.loadPage(pid)
	if err != nil {
		return nil, err
	}
	bp.cache.Put(pid, p)
	bp.metrics.SetResident(bp.cache.Len())
	return p, nil
}

// ReleasePage drops tid's lock on pid before the transaction ends. This breaks two-phase locking
// and is only safe for pages tid has neither read nor modified in a way it depends on.
func (bp *BufferPool) ReleasePage(tid common.TransactionID, pid common.PageID) {
	bp.lockManager.Release(tid, pid)
}

// HoldsLock reports whether tid holds a lock on pid.
func (bp *BufferPool) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	return bp.lockManager.HoldsLock(tid, pid)
}

func (bp *BufferPool) loadPage(pid common.PageID) (Page, error) {
	file, err := bp.catalog.FileOf(pid.Oid)
	if err != nil {
		return nil, err
	}
	return file.ReadPage(pid)
}

// InsertTuple adds t to table oid on behalf of tid. The pages the heap file modified are marked
// dirty by tid and (re)placed in the cache.
func (bp *BufferPool) InsertTuple(tid common.TransactionID, oid common.ObjectID, t *Tuple) error {
	file, err := bp.catalog.FileOf(oid)
	if err != nil {
		return err
	}
	pages, err := file.InsertTuple(bp, tid, t)
	if err != nil {
		return err
	}
	return bp.markDirty(tid, pages)
}

// DeleteTuple removes t, located through its RecordID, on behalf of tid.
func (bp *BufferPool) DeleteTuple(tid common.TransactionID, t *Tuple) error {
	rid := t.RecordID()
	if rid.IsNil() {
		return common.NewError(common.TupleNotFoundError, "tuple has no record id")
	}
	file, err := bp.catalog.FileOf(rid.Oid)
	if err != nil {
		return err
	}
	pages, err := file.DeleteTuple(bp, tid, t)
	if err != nil {
		return err
	}
	return bp.markDirty(tid, pages)
}

func (bp *BufferPool) markDirty(tid common.TransactionID, pages []Page) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, tid)
		if !bp.cache.Contains(p.ID()) {
			if err := bp.makeRoomLocked(); err != nil {
				return err
			}
		}
		bp.cache.Put(p.ID(), p)
	}
	bp.metrics.SetResident(bp.cache.Len())
	return nil
}

// TransactionComplete ends tid. On commit every page tid dirtied is flushed; on abort every page
// tid dirtied is discarded and reloaded from disk. All of tid's locks are released either way.
func (bp *BufferPool) TransactionComplete(tid common.TransactionID, commit bool) error {
	var err error
	if commit {
		err = bp.FlushPages(tid)
	} else {
		err = bp.rollback(tid)
	}
	bp.lockManager.ReleaseAll(tid)
	bp.metrics.TransactionDone(commit)
	if err != nil {
		bp.logger.Error("transaction completion failed",
			zap.Uint64("tid", uint64(tid)), zap.Bool("commit", commit), zap.Error(err))
	}
	return err
}

func (bp *BufferPool) rollback(tid common.TransactionID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var firstErr error
	for _, pid := range bp.cache.Keys() {
		p, ok := bp.cache.Peek(pid)
		if !ok || p.Dirtier() != tid {
			continue
		}
		bp.cache.Remove(pid)
		bp.metrics.RolledBack()
		fresh, err := bp.loadPage(pid)
		if err != nil {
			// Leaving the page uncached is equivalent: the next access re-reads it.
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		bp.cache.Put(pid, fresh)
		bp.logger.Debug("rolled back page", zap.Uint64("tid", uint64(tid)), zap.Stringer("page", pid))
	}
	bp.metrics.SetResident(bp.cache.Len())
	return firstErr
}

// FlushPage writes pid to disk if it is cached and dirty. The before and after images are logged
// and the log forced before the page is written.
func (bp *BufferPool) FlushPage(pid common.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushPageLocked(pid)
}

func (bp *BufferPool) flushPageLocked(pid common.PageID) error {
	p, ok := bp.cache.Peek(pid)
	if !ok || !p.IsDirty() {
		return nil
	}
	file, err := bp.catalog.FileOf(pid.Oid)
	if err != nil {
		return err
	}

	tid := p.Dirtier()
	if err := bp.log.LogWrite(tid, pid, p.BeforeImageData(), p.PageData()); err != nil {
		return err
	}
	if err := bp.log.Force(); err != nil {
		return err
	}
	p.MarkDirty(false, common.InvalidTransactionID)
	if err := file.WritePage(p); err != nil {
		return err
	}
	p.SetBeforeImage()
	bp.metrics.Flushed()
	bp.logger.Debug("flushed page", zap.Uint64("tid", uint64(tid)), zap.Stringer("page", pid))
	return nil
}

// FlushPages flushes every page tid holds a lock on.
func (bp *BufferPool) FlushPages(tid common.TransactionID) error {
	pids := bp.lockManager.PagesOf(tid)
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, pid := range pids {
		if err := bp.flushPageLocked(pid); err != nil {
			return err
		}
	}
	return nil
}

// FlushAllPages flushes every dirty cached page in page order. It writes uncommitted data and is
// only safe when no transaction is running.
func (bp *BufferPool) FlushAllPages() error {
	return bp.flushDirty(func(common.TransactionID) bool { return false })
}

// FlushCommittedPages flushes, in page order, every dirty cached page whose dirtier is not running.
// Pages of running transactions stay in the pool so that an abort can still discard them.
func (bp *BufferPool) FlushCommittedPages(running func(tid common.TransactionID) bool) error {
	return bp.flushDirty(running)
}

func (bp *BufferPool) flushDirty(skip func(tid common.TransactionID) bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	dirty := btree.NewBTreeG[common.PageID](func(a, b common.PageID) bool { return a.Less(b) })
	for _, pid := range bp.cache.Keys() {
		if p, ok := bp.cache.Peek(pid); ok && p.IsDirty() && !skip(p.Dirtier()) {
			dirty.Set(pid)
		}
	}

	var err error
	dirty.Scan(func(pid common.PageID) bool {
		err = bp.flushPageLocked(pid)
		return err == nil
	})
	if err == nil && dirty.Len() > 0 {
		bp.logger.Info("flushed dirty pages", zap.Int("pages", dirty.Len()))
	}
	return err
}

// DiscardPage drops pid from the cache without writing it. Discarding an uncached page is a no-op.
func (bp *BufferPool) DiscardPage(pid common.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.cache.Remove(pid)
	bp.metrics.SetResident(bp.cache.Len())
}

// makeRoomLocked evicts until a page can be added.
func (bp *BufferPool) makeRoomLocked() error {
	for bp.cache.Len() >= bp.numPages {
		if err := bp.evictPageLocked(); err != nil {
			return err
		}
	}
	return nil
}

// evictPageLocked removes the least recently used clean page. The scan visits each resident page at
// most once.
func (bp *BufferPool) evictPageLocked() error {
	for _, pid := range bp.cache.Keys() {
		p, ok := bp.cache.Peek(pid)
		if !ok || p.IsDirty() {
			continue
		}
		bp.cache.Remove(pid)
		bp.metrics.Evicted()
		bp.logger.Debug("evicted page", zap.Stringer("page", pid))
		return nil
	}
	bp.logger.Warn("buffer pool full of dirty pages", zap.Int("capacity", bp.numPages))
	return common.NewError(common.BufferPoolFullError, "all %d resident pages are dirty", bp.cache.Len())
}
