package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"QuoteLedger/internal/core"
	"QuoteLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains the persist channel and batch-writes to Postgres. The
// channel uses blocking sends from the processor, so a stalled worker
// stalls the processor rather than losing an applied event.
type Worker struct {
	writer       *Writer
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

type pendingBatch struct {
	buckets   map[string]BucketRow // Last write per bucket wins
	audits    []AuditRow
	processed []ProcessedEventRow
	lastBlock int64
}

func newPendingBatch(capacity int) *pendingBatch {
	return &pendingBatch{
		buckets:   make(map[string]BucketRow, capacity),
		audits:    make([]AuditRow, 0, capacity),
		processed: make([]ProcessedEventRow, 0, capacity),
	}
}

func (p *pendingBatch) add(out core.Output, logger zerolog.Logger) {
	for _, b := range out.Buckets {
		row := BucketRowFromState(b)
		p.buckets[row.ScopeKind+":"+row.BucketID] = row
	}
	for _, a := range out.Audits {
		row, err := AuditRowFromRecord(a, out.BlockNumber, out.Timestamp)
		if err != nil {
			logger.Error().Err(err).Str("ref", out.Ref).Msg("dropping unmarshalable audit record")
			continue
		}
		p.audits = append(p.audits, row)
	}
	p.processed = append(p.processed, ProcessedEventRow{
		EventKind:   out.Kind.String(),
		Ref:         out.Ref,
		BlockNumber: int64(out.BlockNumber),
		LogIndex:    int64(out.LogIndex),
		Timestamp:   out.Timestamp,
	})
	p.lastBlock = int64(out.BlockNumber)
}

func (p *pendingBatch) empty() bool {
	return len(p.processed) == 0
}

// Run starts the worker loop, flushing when the batch fills or the timeout
// expires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	batch := newPendingBatch(w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if !batch.empty() {
				if err := w.flush(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if !batch.empty() {
					if err := w.flush(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch.add(out, w.logger)

			if len(batch.processed) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					return err
				}
				batch = newPendingBatch(w.batchSize)
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if !batch.empty() {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					return err
				}
				batch = newPendingBatch(w.batchSize)
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch; it keeps retrying until the write lands or shutdown forces one
// final attempt.
func (w *Worker) flushWithRetry(ctx context.Context, batch *pendingBatch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch.processed)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			if attempt > 0 {
				w.logger.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
	}
}

// flush writes one batch in a single transaction.
func (w *Worker) flush(ctx context.Context, batch *pendingBatch) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	bucketRows := make([]BucketRow, 0, len(batch.buckets))
	for _, row := range batch.buckets {
		bucketRows = append(bucketRows, row)
	}

	if err := w.writer.UpsertBuckets(ctx, tx, bucketRows); err != nil {
		w.countError("write_buckets")
		return err
	}
	if err := w.writer.WriteAudits(ctx, tx, batch.audits); err != nil {
		w.countError("write_audits")
		return err
	}
	if err := w.writer.WriteProcessedEvents(ctx, tx, batch.processed); err != nil {
		w.countError("write_processed")
		return err
	}

	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistRowsWritten.WithLabelValues("buckets").Add(float64(len(bucketRows)))
		w.metrics.PersistRowsWritten.WithLabelValues("audits").Add(float64(len(batch.audits)))
		w.metrics.PersistRowsWritten.WithLabelValues("processed_events").Add(float64(len(batch.processed)))
		w.metrics.PersistLastBlock.Set(float64(batch.lastBlock))
	}

	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
