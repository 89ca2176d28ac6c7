package storage

// DBFile abstracts the physical file that stores a table as a sequence of fixed-size pages.
//
// Implementations must be safe for concurrent use: ReadPage and WritePage may run in parallel on
// different pages, and AllocatePage is atomic with respect to other allocations.
type DBFile interface {
	// AllocatePage extends the file by numPages zero-filled pages and returns the number of the first.
	AllocatePage(numPages int) (int, error)
	// ReadPage reads page pageNum into frame, which must be exactly common.PageSize() bytes.
	ReadPage(pageNum int, frame []byte) error
	// WritePage writes frame to page pageNum. pageNum must be below NumPages(); use AllocatePage to
	// extend the file.
	WritePage(pageNum int, frame []byte) error
	// Sync forces buffered writes to stable storage.
	Sync() error
	// Close releases the file handle.
	Close() error
	// NumPages returns the number of pages in the file.
	NumPages() (int, error)
}
