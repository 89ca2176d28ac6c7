package godb

import (
	"context"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/config"
	"github.com/HITGYA/Mit-6.830/logging"
	"github.com/HITGYA/Mit-6.830/metrics"
	"github.com/HITGYA/Mit-6.830/recovery"
	"github.com/HITGYA/Mit-6.830/storage"
	"github.com/HITGYA/Mit-6.830/transaction"
)

// LogFileName is the name of the write-ahead log inside the log directory.
const LogFileName = "godb.log"

// GoDB is the top-level container for the database system. Every component reaches the others
// through it instead of through package-level singletons.
type GoDB struct {
	Config             config.Config
	Catalog            *catalog.Catalog
	BufferPool         *storage.BufferPool
	LockManager        *transaction.LockManager
	LogManager         logging.LogManager
	PageLog            *logging.PageLog
	TransactionManager *transaction.TransactionManager
	Checkpointer       *recovery.Checkpointer
	Metrics            *metrics.Metrics

	logger *zap.Logger
}

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger handed to every component. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers the engine's collectors with reg. Without it no metrics are recorded.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// Open creates the storage and log directories if needed, opens the catalog and the log, loads
// cfg.SchemaFile if one is set, and starts the checkpointer.
func Open(cfg config.Config, opts ...Option) (*GoDB, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "create storage dir")
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "create log dir")
	}

	var m *metrics.Metrics
	if o.registry != nil {
		m = metrics.New(o.registry)
	}

	cat, err := catalog.NewCatalog(catalog.NewDiskCatalogManager(cfg.StorageDir), cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	if cfg.SchemaFile != "" {
		tables, err := cat.LoadSchema(cfg.SchemaFile)
		if err != nil {
			_ = cat.Close()
			return nil, err
		}
		o.logger.Info("loaded schema", zap.String("file", cfg.SchemaFile), zap.Int("tables", len(tables)))
	}

	logManager, err := logging.NewFileLogManager(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	pageLog := logging.NewPageLog(logManager)

	lockManager := transaction.NewLockManager(
		transaction.WithLogger(o.logger.Named("locks")),
		transaction.WithMetrics(m))
	bufferPool := storage.NewBufferPool(cfg.BufferPoolPages, cat, lockManager, pageLog,
		storage.WithLogger(o.logger.Named("buffer_pool")),
		storage.WithMetrics(m))
	transactionManager := transaction.NewTransactionManager(logManager, bufferPool, o.logger.Named("transactions"))
	checkpointer := recovery.NewCheckpointer(bufferPool, logManager, transactionManager,
		cfg.CheckpointInterval, o.logger.Named("checkpoint"))
	checkpointer.Start()

	return &GoDB{
		Config:             cfg,
		Catalog:            cat,
		BufferPool:         bufferPool,
		LockManager:        lockManager,
		LogManager:         logManager,
		PageLog:            pageLog,
		TransactionManager: transactionManager,
		Checkpointer:       checkpointer,
		Metrics:            m,
		logger:             o.logger,
	}, nil
}

// Close stops the checkpointer, which flushes the pages of finished transactions one last time, then
// closes the log and every heap file. Writes of transactions still running at Close are lost.
func (db *GoDB) Close() error {
	var firstErr error
	if err := db.Checkpointer.Stop(); err != nil {
		firstErr = err
	}
	if err := db.LogManager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.Catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// RunTransaction runs fn inside a new transaction and commits it. If fn fails the transaction is
// aborted. A transaction chosen as a deadlock victim is aborted and retried, up to maxRetries times.
func (db *GoDB) RunTransaction(ctx context.Context, maxRetries int, fn func(tid common.TransactionID) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tid, err := db.TransactionManager.Begin()
		if err != nil {
			return err
		}
		err = fn(tid)
		if err == nil {
			return db.TransactionManager.Commit(tid)
		}
		if abortErr := db.TransactionManager.Abort(tid); abortErr != nil {
			db.logger.Warn("abort failed", zap.Uint64("tid", uint64(tid)), zap.Error(abortErr))
		}
		if !common.IsDeadlock(err) || attempt >= maxRetries {
			return err
		}
		db.logger.Debug("retrying deadlocked transaction", zap.Uint64("tid", uint64(tid)), zap.Int("attempt", attempt+1))
	}
}
