package storage

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/HITGYA/Mit-6.830/common"
)

// HeapFile is the backing store of one table: a DBFile of HeapPages where page i occupies bytes
// [i*PageSize, (i+1)*PageSize). There is no file header.
//
// HeapFile does no caching. Tuple-level operations and iteration go through the BufferPool so
// that they take part in locking; the pool is passed in by the caller.
type HeapFile struct {
	oid  common.ObjectID
	desc *TupleDesc
	file DBFile
	// appendMu serializes page appends so that concurrent inserters never claim the same page number.
	appendMu sync.Mutex
}

// NewHeapFile opens (creating if needed) the file at path as table oid with schema desc.
func NewHeapFile(oid common.ObjectID, path string, desc *TupleDesc) (*HeapFile, error) {
	file, err := OpenDiskDBFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open heap file")
	}
	return NewHeapFileOn(oid, file, desc), nil
}

// NewHeapFileOn stores table oid in an already open DBFile.
func NewHeapFileOn(oid common.ObjectID, file DBFile, desc *TupleDesc) *HeapFile {
	return &HeapFile{oid: oid, desc: desc, file: file}
}

// ID returns the table this file stores.
func (f *HeapFile) ID() common.ObjectID {
	return f.oid
}

func (f *HeapFile) TupleDesc() *TupleDesc {
	return f.desc
}

// NumPages returns ceil(file size / page size).
func (f *HeapFile) NumPages() (int, error) {
	return f.file.NumPages()
}

// ReadPage reads and parses page pid straight from disk. A short final page is zero filled.
func (f *HeapFile) ReadPage(pid common.PageID) (*HeapPage, error) {
	common.Assert(pid.Oid == f.oid, "%s does not belong to table %d", pid, f.oid)
	data := make([]byte, common.PageSize())
	if err := f.file.ReadPage(int(pid.PageNum), data); err != nil {
		return nil, err
	}
	return NewHeapPage(pid, data, f.desc)
}

// WritePage writes the page's current image at its offset.
func (f *HeapFile) WritePage(p Page) error {
	pid := p.ID()
	common.Assert(pid.Oid == f.oid, "%s does not belong to table %d", pid, f.oid)
	return f.file.WritePage(int(pid.PageNum), p.PageData())
}

// appendEmptyPage adds an empty page at the end of the file and returns its id.
func (f *HeapFile) appendEmptyPage() (common.PageID, error) {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()
	pageNum, err := f.file.AllocatePage(1)
	if err != nil {
		return common.PageID{}, err
	}
	return common.PageID{Oid: f.oid, PageNum: int32(pageNum)}, nil
}

// InsertTuple places t on the first page with a free slot, appending a page when every existing
// page is full. Pages are write-locked through bp; a full page whose lock was taken only for this
// probe is released right away. It returns the page that was modified.
func (f *HeapFile) InsertTuple(bp *BufferPool, tid common.TransactionID, t *Tuple) ([]Page, error) {
	if !f.desc.Equals(t.TupleDesc()) {
		return nil, common.NewError(common.SchemaMismatchError, "tuple schema [%s] does not match table %d schema [%s]", t.TupleDesc(), f.oid, f.desc)
	}
	if NumSlotsFor(f.desc) == 0 {
		return nil, common.NewError(common.PageFullError, "tuples of %d bytes do not fit on a page", f.desc.Size())
	}

	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}
	for i := 0; i < numPages; i++ {
		pid := common.PageID{Oid: f.oid, PageNum: int32(i)}
		p, err := f.tryInsert(bp, tid, pid, t)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return []Page{p}, nil
		}
	}

	for {
		pid, err := f.appendEmptyPage()
		if err != nil {
			return nil, err
		}
		// Someone else may have filled the fresh page before we locked it.
		p, err := f.tryInsert(bp, tid, pid, t)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return []Page{p}, nil
		}
	}
}

// tryInsert returns (nil, nil) when pid is full.
func (f *HeapFile) tryInsert(bp *BufferPool, tid common.TransactionID, pid common.PageID, t *Tuple) (Page, error) {
	heldBefore := bp.HoldsLock(tid, pid)
	p, err := bp.GetPage(tid, pid, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := p.(*HeapPage)
	if hp.NumEmptySlots() == 0 {
		if !heldBefore {
			bp.ReleasePage(tid, pid)
		}
		return nil, nil
	}
	if err := hp.InsertTuple(t); err != nil {
		return nil, err
	}
	return hp, nil
}

// DeleteTuple removes t from the page its RecordID names and returns that page.
func (f *HeapFile) DeleteTuple(bp *BufferPool, tid common.TransactionID, t *Tuple) ([]Page, error) {
	rid := t.RecordID()
	if rid.IsNil() || rid.Oid != f.oid {
		return nil, common.NewError(common.TupleNotFoundError, "tuple %s is not in table %d", rid, f.oid)
	}
	p, err := bp.GetPage(tid, rid.PageID, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := p.(*HeapPage).DeleteTuple(t); err != nil {
		return nil, err
	}
	return []Page{p}, nil
}

// Iterator returns a scan over every tuple of the file on behalf of tid.
func (f *HeapFile) Iterator(bp *BufferPool, tid common.TransactionID) *HeapFileIterator {
	return &HeapFileIterator{file: f, bufferPool: bp, tid: tid}
}

// Sync flushes writes to stable storage.
func (f *HeapFile) Sync() error {
	return f.file.Sync()
}

func (f *HeapFile) Close() error {
	return f.file.Close()
}

// HeapFileIterator walks the tuples of a HeapFile page by page, read-locking each page through
// the buffer pool. Pages without tuples are passed over. The page count is re-read whenever the
// iterator runs off the last known page, so pages appended during the scan are visited.
type HeapFileIterator struct {
	file       *HeapFile
	bufferPool *BufferPool
	tid        common.TransactionID

	nextPage int
	tuples   []*Tuple
	idx      int
	current  *Tuple
	err      error
}

// Next advances to the next tuple. It returns false at the end of the file or on error.
func (it *HeapFileIterator) Next() bool {
	for it.err == nil {
		if it.idx < len(it.tuples) {
			it.current = it.tuples[it.idx]
			it.idx++
			return true
		}
		numPages, err := it.file.NumPages()
		if err != nil {
			it.err = err
			break
		}
		if it.nextPage >= numPages {
			break
		}
		pid := common.PageID{Oid: it.file.oid, PageNum: int32(it.nextPage)}
		p, err := it.bufferPool.GetPage(it.tid, pid, common.ReadOnly)
		if err != nil {
			it.err = err
			break
		}
		it.tuples = p.(*HeapPage).Tuples()
		it.idx = 0
		it.nextPage++
	}
	it.current = nil
	return false
}

// Current returns the tuple produced by the last successful Next.
func (it *HeapFileIterator) Current() *Tuple {
	return it.current
}

// Error returns the error that stopped the scan, if any.
func (it *HeapFileIterator) Error() error {
	return it.err
}

// Rewind restarts the scan from page 0.
func (it *HeapFileIterator) Rewind() error {
	it.nextPage = 0
	it.tuples = nil
	it.idx = 0
	it.current = nil
	it.err = nil
	return nil
}

func (it *HeapFileIterator) Close() error {
	it.tuples = nil
	it.current = nil
	return nil
}
