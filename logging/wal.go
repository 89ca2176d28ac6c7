package logging

import (
	"github.com/HITGYA/Mit-6.830/common"
)

type LogRecordType uint16

const (
	InvalidLogRecord LogRecordType = iota // So we can catch uninitialized values
	LogBeginTransaction
	LogCommit
	LogAbort
	// LogUpdate carries the full before and after images of a page written by the buffer pool.
	LogUpdate
	LogCheckpoint
)

func (t LogRecordType) String() string {
	switch t {
	case InvalidLogRecord:
		return "INVALID"
	case LogBeginTransaction:
		return "BEGIN TRANSACTION"
	case LogCommit:
		return "COMMIT"
	case LogAbort:
		return "ABORT"
	case LogUpdate:
		return "UPDATE"
	case LogCheckpoint:
		return "CHECKPOINT"
	}
	return "UNKNOWN"
}

// LogManager is the interface for the system's write-ahead log. It handles the append-only storage of
// log records and their durability.
type LogManager interface {
	// Append writes a log record to the log buffer and returns the LSN assigned to it.
	// This does not guarantee the record is on disk yet; use WaitUntilFlushed for that.
	Append(record LogRecord) (common.LSN, error)

	// WaitUntilFlushed blocks until the record with the given LSN (and all prior records) is on
	// stable storage.
	WaitUntilFlushed(lsn common.LSN) error

	// Iterator returns a scanner over the log starting at startLSN.
	Iterator(startLSN common.LSN) (LogIterator, error)

	// FlushedUntil returns the LSN up to which (exclusive) the log is known to be on disk.
	FlushedUntil() common.LSN

	// Close flushes pending records and releases file handles.
	Close() error
}

// LogIterator traverses log records sequentially.
type LogIterator interface {
	// Next advances the iterator to the next record.
	// It returns true if a record is available, or false if we hit EOF or an error.
	Next() bool

	// CurrentRecord returns the LogRecord at the current cursor.
	CurrentRecord() LogRecord

	// CurrentLSN returns the LSN of the current record.
	CurrentLSN() common.LSN

	// Error returns the first unexpected error that was encountered by the iterator.
	Error() error

	// Close releases resources associated with the iterator (e.g., file handles).
	Close() error
}
