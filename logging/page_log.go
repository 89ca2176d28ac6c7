package logging

import (
	"sync"

	"github.com/HITGYA/Mit-6.830/common"
)

// PageLog adapts a LogManager to the buffer pool's view of the log: one update record per page
// write, and a Force that makes everything appended so far durable.
type PageLog struct {
	lm LogManager

	mu       sync.Mutex
	lastLSN  common.LSN
	appended bool
}

func NewPageLog(lm LogManager) *PageLog {
	return &PageLog{lm: lm}
}

// LogWrite appends an update record holding both images of pid.
func (l *PageLog) LogWrite(tid common.TransactionID, pid common.PageID, before, after []byte) error {
	lsn, err := l.lm.Append(NewUpdateRecord(tid, pid, before, after))
	if err != nil {
		return err
	}
	l.noteAppend(lsn)
	return nil
}

func (l *PageLog) noteAppend(lsn common.LSN) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.appended || lsn > l.lastLSN {
		l.lastLSN = lsn
	}
	l.appended = true
}

// Force blocks until every record appended through l is on stable storage.
func (l *PageLog) Force() error {
	l.mu.Lock()
	lsn, appended := l.lastLSN, l.appended
	l.mu.Unlock()
	if !appended {
		return nil
	}
	return l.lm.WaitUntilFlushed(lsn)
}
