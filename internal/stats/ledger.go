package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/aoai-nexus/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ledgerQueueSize     = 1024
	ledgerBatchSize     = 100
	ledgerFlushInterval = time.Second
)

// Ledger persists every statistics event to SQLite. Events are queued and written in
// batches by one background goroutine; a full queue drops the event and counts it.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan models.UsageRecord
	done   chan struct{}
	drops  atomic.Int64
}

// NewLedger starts the background writer. Call Close to flush and stop it.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		db:     db,
		logger: logger,
		now:    time.Now,
		queue:  make(chan models.UsageRecord, ledgerQueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Ledger) RecordRequest(model string) {
	l.enqueue(models.UsageRecord{Model: model, Kind: models.KindRequest})
}

func (l *Ledger) RecordError(model string) {
	l.enqueue(models.UsageRecord{Model: model, Kind: models.KindError})
}

func (l *Ledger) RecordUsage(model string, usage Usage) {
	l.enqueue(models.UsageRecord{
		Model:            model,
		Kind:             models.KindUsage,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	})
}

func (l *Ledger) enqueue(rec models.UsageRecord) {
	rec.ID = uuid.NewString()
	rec.Timestamp = l.now().UnixMilli()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drops.Add(1)
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.drops.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full or closed.
func (l *Ledger) Dropped() int64 {
	return l.drops.Load()
}

func (l *Ledger) run() {
	defer close(l.done)
	ticker := time.NewTicker(ledgerFlushInterval)
	defer ticker.Stop()

	batch := make([]models.UsageRecord, 0, ledgerBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.db.CreateInBatches(batch, ledgerBatchSize).Error; err != nil {
			l.logger.Error("usage ledger write failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-l.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= ledgerBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting events, flushes what is queued, and waits for the writer or ctx.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary aggregates the persisted events per model.
func (l *Ledger) Summary(ctx context.Context) ([]models.ModelSummary, error) {
	var out []models.ModelSummary
	err := l.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select(`model,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS requests,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS errors,
			SUM(prompt_tokens) AS prompt_tokens,
			SUM(completion_tokens) AS completion_tokens,
			SUM(total_tokens) AS total_tokens`,
			models.KindRequest, models.KindError).
		Group("model").
		Order("model").
		Scan(&out).Error
	return out, err
}
