package storage

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HITGYA/Mit-6.830/common"
)

// DiskDBFile implements DBFile on top of an OS file. Page i occupies bytes
// [i*PageSize, (i+1)*PageSize); there is no file header.
type DiskDBFile struct {
	path string
	file *os.File
	// numPages caches the file size in pages so reads do not stat the file. A trailing partial page
	// counts as a page and reads back zero filled.
	numPages atomic.Int32
	// allocMu serializes file growth.
	allocMu sync.Mutex
}

var _ DBFile = (*DiskDBFile)(nil)

// OpenDiskDBFile opens, creating if needed, the file at path.
func OpenDiskDBFile(path string) (*DiskDBFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	dbFile := &DiskDBFile{path: path, file: f}
	dbFile.numPages.Store(int32(common.CeilDiv(int(stat.Size()), common.PageSize())))
	return dbFile, nil
}

// AllocatePage grows the file by numPages pages.
func (f *DiskDBFile) AllocatePage(numPages int) (int, error) {
	common.Assert(numPages > 0, "cannot allocate %d pages", numPages)
	f.allocMu.Lock()
	defer f.allocMu.Unlock()

	current := f.numPages.Load()
	total := current + int32(numPages)
	// Truncate extends the file with zeros, which is the image of an empty heap page.
	if err := f.file.Truncate(int64(total) * int64(common.PageSize())); err != nil {
		return 0, errors.Wrapf(common.NewError(common.IOError, "%s", err), "allocate %d pages in %s", numPages, f.path)
	}
	f.numPages.Store(total)
	return int(current), nil
}

func (f *DiskDBFile) ReadPage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize(), "frame is %d bytes, want %d", len(frame), common.PageSize())
	if pageNum < 0 || int32(pageNum) >= f.numPages.Load() {
		return common.NewError(common.NoSuchObjectError, "read out of bounds: page %d of %s does not exist (file has %d pages)",
			pageNum, f.path, f.numPages.Load())
	}

	n, err := f.file.ReadAt(frame, int64(pageNum)*int64(common.PageSize()))
	if err != nil && err != io.EOF {
		return errors.Wrapf(common.NewError(common.IOError, "%s", err), "read page %d of %s", pageNum, f.path)
	}
	clear(frame[n:])
	return nil
}

func (f *DiskDBFile) WritePage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize(), "frame is %d bytes, want %d", len(frame), common.PageSize())
	if pageNum < 0 || int32(pageNum) >= f.numPages.Load() {
		return common.NewError(common.NoSuchObjectError, "write out of bounds: page %d of %s does not exist", pageNum, f.path)
	}
	if _, err := f.file.WriteAt(frame, int64(pageNum)*int64(common.PageSize())); err != nil {
		return errors.Wrapf(common.NewError(common.IOError, "%s", err), "write page %d of %s", pageNum, f.path)
	}
	return nil
}

func (f *DiskDBFile) Sync() error {
	return errors.Wrapf(f.file.Sync(), "sync %s", f.path)
}

func (f *DiskDBFile) Close() error {
	return errors.Wrapf(f.file.Close(), "close %s", f.path)
}

func (f *DiskDBFile) NumPages() (int, error) {
	return int(f.numPages.Load()), nil
}

// Path returns the file's location on disk.
func (f *DiskDBFile) Path() string {
	return f.path
}
