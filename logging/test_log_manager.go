package logging

import (
	"bufio"
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/HITGYA/Mit-6.830/common"
)

// NoopLogManager is a no-op implementation of LogManager for tests that do not inspect the log.
type NoopLogManager struct{}

func (n NoopLogManager) Append(record LogRecord) (common.LSN, error) {
	return 0, nil
}

func (n NoopLogManager) WaitUntilFlushed(lsn common.LSN) error {
	return nil
}

func (n NoopLogManager) Iterator(startLSN common.LSN) (LogIterator, error) {
	return &MemoryLogIterator{mgr: NewMemoryLogManager()}, nil
}

func (n NoopLogManager) FlushedUntil() common.LSN {
	return 0
}

func (n NoopLogManager) Close() error {
	return nil
}

// MemoryLogManager keeps the log in a single byte slice. Every WaitUntilFlushed makes the whole buffer
// "durable", and the number of such calls is recorded so tests can check when the log was forced.
type MemoryLogManager struct {
	mu           sync.Mutex
	buffer       []byte
	flushedUntil atomic.Int64
	forces       atomic.Int64
	appendError  error
}

func NewMemoryLogManager() *MemoryLogManager {
	return &MemoryLogManager{
		buffer: make([]byte, 0, 4096),
	}
}

func (m *MemoryLogManager) Append(record LogRecord) (common.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendError != nil {
		return 0, m.appendError
	}
	lsn := len(m.buffer)
	m.buffer = append(m.buffer, record.data...)
	return common.LSN(lsn), nil
}

func (m *MemoryLogManager) WaitUntilFlushed(lsn common.LSN) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forces.Add(1)
	m.flushedUntil.Store(int64(len(m.buffer)))
	return nil
}

// Iterator returns a scanner to walk the log from a specific starting point.
func (m *MemoryLogManager) Iterator(startLSN common.LSN) (LogIterator, error) {
	return &MemoryLogIterator{
		mgr:        m,
		currOffset: int(startLSN),
	}, nil
}

func (m *MemoryLogManager) FlushedUntil() common.LSN {
	return common.LSN(m.flushedUntil.Load())
}

func (m *MemoryLogManager) Close() error {
	return nil
}

// Forces returns how many times WaitUntilFlushed has been called.
func (m *MemoryLogManager) Forces() int {
	return int(m.forces.Load())
}

// SetAppendError makes every later Append fail with err. Passing nil clears it.
func (m *MemoryLogManager) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendError = err
}

// Records returns a copy of every record appended so far, in order.
func (m *MemoryLogManager) Records() []LogRecord {
	m.mu.Lock()
	snapshot := bytes.NewReader(append([]byte(nil), m.buffer...))
	m.mu.Unlock()

	r := bufio.NewReader(snapshot)
	var records []LogRecord
	for {
		frame, err := readFrame(r)
		if err != nil {
			return records
		}
		rec, err := AsVerifiedLogRecord(frame)
		if err != nil {
			return records
		}
		records = append(records, rec)
	}
}

type MemoryLogIterator struct {
	mgr        *MemoryLogManager
	currOffset int
	current    LogRecord
	err        error
}

func (i *MemoryLogIterator) Next() bool {
	if !i.current.IsNil() {
		i.currOffset += i.current.Size()
	}
	i.mgr.mu.Lock()
	defer i.mgr.mu.Unlock()
	if i.currOffset >= len(i.mgr.buffer) {
		i.current = LogRecord{}
		return false
	}
	i.current, i.err = AsVerifiedLogRecord(i.mgr.buffer[i.currOffset:])
	return i.err == nil
}

func (i *MemoryLogIterator) CurrentRecord() LogRecord {
	return i.current
}

func (i *MemoryLogIterator) CurrentLSN() common.LSN {
	return common.LSN(i.currOffset)
}

func (i *MemoryLogIterator) Error() error {
	return i.err
}

func (i *MemoryLogIterator) Close() error {
	return nil
}
