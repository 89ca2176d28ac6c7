// Command godb opens a database, runs a concurrent insert and scan workload against it and reports
// per-group totals. With metrics enabled the engine's counters are served on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	godb "github.com/HITGYA/Mit-6.830"
	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/config"
	"github.com/HITGYA/Mit-6.830/execution"
	"github.com/HITGYA/Mit-6.830/storage"
)

const workloadTable = "events"

var workloadColumns = []catalog.Column{
	{Name: "id", Type: common.IntType},
	{Name: "grp", Type: common.IntType},
	{Name: "amount", Type: common.IntType},
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		workers    = flag.Int("workers", 4, "concurrent workload goroutines")
		txns       = flag.Int("txns", 100, "transactions per worker")
		tps        = flag.Float64("rate", 200, "transactions per second across all workers, 0 for unlimited")
		retries    = flag.Int("retries", 10, "retries for a transaction aborted by deadlock")
		serve      = flag.Bool("serve", false, "keep serving /metrics after the workload until interrupted")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, workload{workers: *workers, txns: *txns, tps: *tps, retries: *retries}, *serve); err != nil {
		logger.Error("godb failed", zap.Error(err))
		os.Exit(1)
	}
}

type workload struct {
	workers int
	txns    int
	tps     float64
	retries int
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, w workload, serve bool) error {
	var opts []godb.Option
	opts = append(opts, godb.WithLogger(logger))

	var server *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, godb.WithRegistry(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer server.Close()
	}

	db, err := godb.Open(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close failed", zap.Error(err))
		}
	}()

	table, err := db.Catalog.GetTableMetadata(workloadTable)
	if err != nil {
		if table, err = db.Catalog.AddTable(workloadTable, workloadColumns, "id"); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := runWorkload(ctx, db, table, w, logger); err != nil {
		return err
	}
	logger.Info("workload finished",
		zap.Int("workers", w.workers),
		zap.Int("transactions", w.workers*w.txns),
		zap.Duration("elapsed", time.Since(start)))

	if err := report(ctx, db, table, logger); err != nil {
		return err
	}

	if serve && server != nil {
		<-ctx.Done()
	}
	return nil
}

func runWorkload(ctx context.Context, db *godb.GoDB, table *catalog.Table, w workload, logger *zap.Logger) error {
	limit := rate.Inf
	if w.tps > 0 {
		limit = rate.Limit(w.tps)
	}
	limiter := rate.NewLimiter(limit, w.workers)

	g, ctx := errgroup.WithContext(ctx)
	for worker := 0; worker < w.workers; worker++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(worker) + 1))
			for i := 0; i < w.txns; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				id := int32(worker*w.txns + i)
				var err error
				// One transaction in five reads the table; the rest append a row.
				if rng.Intn(5) == 0 {
					err = db.RunTransaction(ctx, w.retries, func(tid common.TransactionID) error {
						_, err := countRows(db, table, tid)
						return err
					})
				} else {
					row, rowErr := storage.FromValues(table.TupleDesc(),
						common.NewIntValue(id), common.NewIntValue(int32(rng.Intn(8))), common.NewIntValue(int32(rng.Intn(1000))))
					if rowErr != nil {
						return rowErr
					}
					err = db.RunTransaction(ctx, w.retries, func(tid common.TransactionID) error {
						return insertRow(db, table, tid, row)
					})
				}
				if err != nil {
					logger.Warn("transaction gave up", zap.Int("worker", worker), zap.Int32("id", id), zap.Error(err))
					if !common.IsDeadlock(err) {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func insertRow(db *godb.GoDB, table *catalog.Table, tid common.TransactionID, row *storage.Tuple) error {
	// Each attempt gets its own copy so a retried insert starts from a tuple with no record id.
	fresh, err := storage.FromValues(table.TupleDesc(), row.Fields()...)
	if err != nil {
		return err
	}
	list, err := execution.NewTupleListExecutor(table.TupleDesc(), []*storage.Tuple{fresh})
	if err != nil {
		return err
	}
	_, err = execution.Drain(execution.NewExecutorContext(tid, db.BufferPool, db.Catalog),
		execution.NewInsertExecutor(table.Oid, list))
	return err
}

func countRows(db *godb.GoDB, table *catalog.Table, tid common.TransactionID) (int32, error) {
	scan, err := execution.NewSeqScanExecutor(db.Catalog, table.Oid, "")
	if err != nil {
		return 0, err
	}
	agg, err := execution.NewAggregateExecutor(scan, 0, execution.NoGrouping, execution.AggCount)
	if err != nil {
		return 0, err
	}
	out, err := execution.Drain(execution.NewExecutorContext(tid, db.BufferPool, db.Catalog), agg)
	if err != nil || len(out) == 0 {
		return 0, err
	}
	return out[0].Fields()[0].IntValue(), nil
}

// report logs the row count and amount total of every group.
func report(ctx context.Context, db *godb.GoDB, table *catalog.Table, logger *zap.Logger) error {
	return db.RunTransaction(ctx, 3, func(tid common.TransactionID) error {
		scan, err := execution.NewSeqScanExecutor(db.Catalog, table.Oid, "e")
		if err != nil {
			return err
		}
		sums, err := execution.NewAggregateExecutor(scan, 2, 1, execution.AggSum)
		if err != nil {
			return err
		}
		out, err := execution.Drain(execution.NewExecutorContext(tid, db.BufferPool, db.Catalog), sums)
		if err != nil {
			return err
		}
		for _, tup := range out {
			logger.Info("group total",
				zap.Int32("grp", tup.Fields()[0].IntValue()),
				zap.Int32("amount", tup.Fields()[1].IntValue()))
		}
		total, err := countRows(db, table, tid)
		if err != nil {
			return err
		}
		logger.Info("table size", zap.String("table", table.Name), zap.Int32("rows", total))
		return nil
	})
}
