package logging

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/HITGYA/Mit-6.830/common"
)

// readFrame reads one length-prefixed record from r. It returns io.EOF when r ends exactly on a
// record boundary or at a zero length prefix, which is what an unwritten tail looks like.
func readFrame(r *bufio.Reader) ([]byte, error) {
	prefix, err := r.Peek(4)
	switch {
	case err == io.EOF && len(prefix) == 0:
		return nil, io.EOF
	case err == io.EOF:
		return nil, io.ErrUnexpectedEOF
	case err != nil:
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix)
	if n == 0 {
		return nil, io.EOF
	}
	if n > MaxLogRecordSize {
		return nil, errors.Errorf("record length %d exceeds %d", n, MaxLogRecordSize)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// LogFileIterator reads records back from a log file written by FileLogManager. A truncated or
// corrupt record stops the scan with an error; a clean end of file does not.
type LogFileIterator struct {
	file *os.File
	r    *bufio.Reader

	lsn  common.LSN // LSN of cur
	next common.LSN
	cur  LogRecord
	err  error
}

// NewLogFileIterator opens path and positions the iterator at startLSN.
func NewLogFileIterator(path string, startLSN common.LSN) (*LogFileIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}
	if _, err := f.Seek(int64(startLSN), io.SeekStart); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "seek log %s to %d", path, startLSN)
	}
	return &LogFileIterator{file: f, r: bufio.NewReader(f), next: startLSN}, nil
}

func (it *LogFileIterator) Next() bool {
	it.cur = LogRecord{}
	if it.err != nil {
		return false
	}
	frame, err := readFrame(it.r)
	if err == io.EOF {
		return false
	}
	if err == nil {
		it.cur, err = AsVerifiedLogRecord(frame)
	}
	if err != nil {
		it.cur = LogRecord{}
		it.err = errors.Wrapf(err, "log record at %d", it.next)
		return false
	}
	it.lsn = it.next
	it.next += common.LSN(it.cur.Size())
	return true
}

func (it *LogFileIterator) CurrentRecord() LogRecord {
	return it.cur
}

func (it *LogFileIterator) CurrentLSN() common.LSN {
	return it.lsn
}

func (it *LogFileIterator) Error() error {
	return it.err
}

func (it *LogFileIterator) Close() error {
	return it.file.Close()
}
