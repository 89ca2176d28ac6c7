package recovery

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/logging"
	"github.com/HITGYA/Mit-6.830/transaction"
)

// PageFlusher writes to disk every dirty cached page whose dirtier is not running.
type PageFlusher interface {
	FlushCommittedPages(running func(tid common.TransactionID) bool) error
}

// ActiveSet reports the transactions running at checkpoint time.
type ActiveSet interface {
	IsActive(tid common.TransactionID) bool
	ActiveTransactions() []transaction.ActiveTransaction
}

// Checkpoint describes one completed checkpoint. It is also the payload of the checkpoint log
// record, encoded as JSON.
type Checkpoint struct {
	ID     uuid.UUID              `json:"id"`
	Time   time.Time              `json:"time"`
	Active []common.TransactionID `json:"active,omitempty"`
	LSN    common.LSN             `json:"-"`
}

// Checkpointer periodically flushes dirty pages from the BufferPool and appends a checkpoint record
// to the log. Pages dirtied by a running transaction are left in the pool, so a checkpoint never
// steals: aborting after a checkpoint still discards everything the transaction wrote.
type Checkpointer struct {
	pages    PageFlusher
	log      logging.LogManager
	active   ActiveSet
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last Checkpoint

	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
	done      sync.WaitGroup
	stopErr   error
}

// NewCheckpointer creates a checkpointer. active may be nil, in which case no transaction counts as
// running and every dirty page is flushed.
func NewCheckpointer(pages PageFlusher, log logging.LogManager, active ActiveSet, interval time.Duration, logger *zap.Logger) *Checkpointer {
	common.Assert(interval > 0, "checkpoint interval must be positive, got %s", interval)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{
		pages:    pages,
		log:      log,
		active:   active,
		interval: interval,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start launches the background loop. Calling it more than once has no effect.
func (c *Checkpointer) Start() {
	c.startOnce.Do(func() {
		c.done.Add(1)
		go c.loop()
	})
}

// Stop shuts the loop down and runs one final checkpoint. It returns the final checkpoint's error.
// Stop may be called without Start, and more than once.
func (c *Checkpointer) Stop() error {
	c.stopOnce.Do(func() {
		close(c.shutdown)
		c.done.Wait()
		_, c.stopErr = c.Checkpoint()
	})
	return c.stopErr
}

func (c *Checkpointer) loop() {
	defer c.done.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A failed checkpoint is retried on the next tick.
			if _, err := c.Checkpoint(); err != nil {
				c.logger.Warn("checkpoint failed", zap.Error(err))
			}
		case <-c.shutdown:
			return
		}
	}
}

// Checkpoint flushes the dirty pages of finished transactions, then appends a checkpoint record and waits for it to be durable.
func (c *Checkpointer) Checkpoint() (Checkpoint, error) {
	start := time.Now()
	if err := c.pages.FlushCommittedPages(c.running); err != nil {
		return Checkpoint{}, err
	}

	cp := Checkpoint{ID: uuid.New(), Time: start.UTC()}
	if c.active != nil {
		for _, txn := range c.active.ActiveTransactions() {
			cp.Active = append(cp.Active, txn.ID)
		}
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, err
	}
	lsn, err := c.log.Append(logging.NewCheckpointRecord(payload))
	if err != nil {
		return Checkpoint{}, err
	}
	if err := c.log.WaitUntilFlushed(lsn); err != nil {
		return Checkpoint{}, err
	}
	cp.LSN = lsn

	c.mu.Lock()
	c.last = cp
	c.mu.Unlock()
	c.logger.Info("checkpoint complete",
		zap.Stringer("id", cp.ID),
		zap.Int64("lsn", int64(lsn)),
		zap.Int("active", len(cp.Active)),
		zap.Duration("elapsed", time.Since(start)))
	return cp, nil
}

func (c *Checkpointer) running(tid common.TransactionID) bool {
	return c.active != nil && c.active.IsActive(tid)
}

// Last returns the most recent successful checkpoint, or a zero Checkpoint if none has run.
func (c *Checkpointer) Last() Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ParseCheckpoint decodes the payload of a checkpoint log record.
func ParseCheckpoint(record logging.LogRecord) (Checkpoint, error) {
	if record.RecordType() != logging.LogCheckpoint {
		return Checkpoint{}, common.NewError(common.CorruptPageError, "record type %v is not a checkpoint", record.RecordType())
	}
	var cp Checkpoint
	if err := json.Unmarshal(record.CheckpointData(), &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}
