package transaction

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/logging"
)

// TransactionCompleter is the part of the buffer pool the transaction manager drives: flushing a
// transaction's pages and ending it.
type TransactionCompleter interface {
	FlushPages(tid common.TransactionID) error
	TransactionComplete(tid common.TransactionID, commit bool) error
}

// ActiveTransaction is a snapshot of a running transaction and its starting point in the log.
type ActiveTransaction struct {
	ID       common.TransactionID
	StartLSN common.LSN
}

// TransactionManager hands out transaction ids and brackets each transaction with begin and
// commit/abort records in the log. Page handling at the end of a transaction is delegated to the
// buffer pool.
type TransactionManager struct {
	// activeTxns maps running transactions to the LSN of their begin record
	activeTxns *xsync.MapOf[common.TransactionID, common.LSN]

	logManager logging.LogManager
	completer  TransactionCompleter
	logger     *zap.Logger

	nextTxnID atomic.Uint64
}

// NewTransactionManager initializes the transaction manager. A nil logger disables logging.
func NewTransactionManager(logManager logging.LogManager, completer TransactionCompleter, logger *zap.Logger) *TransactionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tm := &TransactionManager{
		activeTxns: xsync.NewMapOf[common.TransactionID, common.LSN](),
		logManager: logManager,
		completer:  completer,
		logger:     logger,
	}
	tm.nextTxnID.Store(uint64(common.InvalidTransactionID))
	return tm
}

// Begin starts a new transaction and returns its id.
func (tm *TransactionManager) Begin() (common.TransactionID, error) {
	tid := common.TransactionID(tm.nextTxnID.Add(1))

	lsn, err := tm.logManager.Append(logging.NewBeginTransactionRecord(tid))
	if err != nil {
		return common.InvalidTransactionID, err
	}
	tm.activeTxns.Store(tid, lsn)
	return tid, nil
}

func (tm *TransactionManager) checkActive(tid common.TransactionID) error {
	if _, ok := tm.activeTxns.Load(tid); !ok {
		return common.NewError(common.NoSuchObjectError, "transaction %d is not active", tid)
	}
	return nil
}

// Commit flushes every page tid locked, makes the commit record durable, and only then releases
// tid's locks. If the pages cannot be flushed the transaction is aborted instead and the flush error
// is returned.
func (tm *TransactionManager) Commit(tid common.TransactionID) error {
	if err := tm.checkActive(tid); err != nil {
		return err
	}

	if err := tm.completer.FlushPages(tid); err != nil {
		tm.logger.Warn("commit flush failed, aborting",
			zap.Uint64("tid", uint64(tid)), zap.Error(err))
		if abortErr := tm.Abort(tid); abortErr != nil {
			tm.logger.Error("abort after failed commit", zap.Uint64("tid", uint64(tid)), zap.Error(abortErr))
		}
		return err
	}

	lsn, err := tm.logManager.Append(logging.NewCommitRecord(tid))
	if err != nil {
		return err
	}
	if err := tm.logManager.WaitUntilFlushed(lsn); err != nil {
		return err
	}

	tm.activeTxns.Delete(tid)
	return tm.completer.TransactionComplete(tid, true)
}

// Abort discards every change tid made, releases its locks and logs the abort.
func (tm *TransactionManager) Abort(tid common.TransactionID) error {
	if err := tm.checkActive(tid); err != nil {
		return err
	}
	// tid stays active until its pages are rolled back, so a checkpoint never writes them.
	completeErr := tm.completer.TransactionComplete(tid, false)
	tm.activeTxns.Delete(tid)
	if _, err := tm.logManager.Append(logging.NewAbortRecord(tid)); err != nil {
		return err
	}
	return completeErr
}

// IsActive reports whether tid has begun and not yet finished.
func (tm *TransactionManager) IsActive(tid common.TransactionID) bool {
	_, ok := tm.activeTxns.Load(tid)
	return ok
}

// ActiveTransactions returns a snapshot of running transactions ordered by id.
func (tm *TransactionManager) ActiveTransactions() []ActiveTransaction {
	var active []ActiveTransaction
	tm.activeTxns.Range(func(tid common.TransactionID, lsn common.LSN) bool {
		active = append(active, ActiveTransaction{ID: tid, StartLSN: lsn})
		return true
	})
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}
