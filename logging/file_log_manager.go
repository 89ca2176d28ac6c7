package logging

import (
	"bufio"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HITGYA/Mit-6.830/common"
)

const logBufferSize = 1 << 16 // 64KB

// FileLogManager is a LogManager backed by an append-only file. Records are buffered in memory and
// reach the disk (with fsync) on WaitUntilFlushed, so several appends share one sync. An LSN is the
// byte offset of a record in the file.
type FileLogManager struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	nextLSN common.LSN
	closed  bool

	flushedLSN atomic.Int64
}

// NewFileLogManager opens (creating if needed) the log at logPath and continues after its last record.
func NewFileLogManager(logPath string) (*FileLogManager, error) {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", logPath)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat log %s", logPath)
	}

	lm := &FileLogManager{
		path:    logPath,
		file:    f,
		writer:  bufio.NewWriterSize(f, logBufferSize),
		nextLSN: common.LSN(stat.Size()),
	}
	lm.flushedLSN.Store(stat.Size())
	return lm, nil
}

func (lm *FileLogManager) errClosed() error {
	return common.NewError(common.LogClosedError, "log %s is closed", lm.path)
}

func (lm *FileLogManager) Append(record LogRecord) (common.LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return 0, lm.errClosed()
	}
	lsn := lm.nextLSN
	if _, err := lm.writer.Write(record.Bytes()); err != nil {
		return 0, errors.Wrapf(err, "append to log %s", lm.path)
	}
	lm.nextLSN += common.LSN(record.Size())
	return lsn, nil
}

func (lm *FileLogManager) WaitUntilFlushed(lsn common.LSN) error {
	if int64(lsn) < lm.flushedLSN.Load() {
		return nil
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return lm.errClosed()
	}
	return lm.flushLocked()
}

func (lm *FileLogManager) flushLocked() error {
	if int64(lm.nextLSN) == lm.flushedLSN.Load() {
		return nil
	}
	if err := lm.writer.Flush(); err != nil {
		return errors.Wrapf(err, "flush log %s", lm.path)
	}
	if err := lm.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync log %s", lm.path)
	}
	lm.flushedLSN.Store(int64(lm.nextLSN))
	return nil
}

// Iterator flushes buffered records so the scan sees them, then reads the file from startLSN.
func (lm *FileLogManager) Iterator(startLSN common.LSN) (LogIterator, error) {
	lm.mu.Lock()
	if !lm.closed {
		if err := lm.flushLocked(); err != nil {
			lm.mu.Unlock()
			return nil, err
		}
	}
	lm.mu.Unlock()
	return NewLogFileIterator(lm.path, startLSN)
}

func (lm *FileLogManager) FlushedUntil() common.LSN {
	return common.LSN(lm.flushedLSN.Load())
}

func (lm *FileLogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return nil
	}
	err := lm.flushLocked()
	lm.closed = true
	if cerr := lm.file.Close(); err == nil && cerr != nil {
		err = errors.Wrapf(cerr, "close log %s", lm.path)
	}
	return err
}
