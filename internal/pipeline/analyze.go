package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/resilience"
)

// AnalyzeOptions configures the classification scheduler.
type AnalyzeOptions struct {
	// BatchSize is the number of entries per batch and the upper bound on
	// concurrent classifier calls within a batch.
	BatchSize int
	// Parallel runs each batch through a bounded worker pool; when false,
	// entries are classified one at a time.
	Parallel bool
	// Timeout bounds each individual classification call.
	Timeout time.Duration
	// MaxRetries is the attempt count per entry before the sentinel
	// failure state is written.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt.
	InitialBackoff time.Duration
	// CheckpointEvery persists the whole table after this many entries
	// have been processed. 0 disables periodic checkpoints.
	CheckpointEvery int
	// CheckpointPath is where periodic whole-table checkpoints are
	// written. Empty disables checkpointing.
	CheckpointPath string
	// RetryFailed clears sentinel-failed entries before scheduling, so
	// they are reprocessed. Sentinel entries are never retried otherwise.
	RetryFailed bool
}

// AnalyzeStats reports scheduler progress counts.
type AnalyzeStats struct {
	AlreadyAnalyzed int `json:"already_analyzed"`
	NewlyAnalyzed   int `json:"newly_analyzed"`
	Failed          int `json:"failed"`
}

// AnalyzeBatch classifies every unanalyzed entry in the table, mutating
// entries in place. Entries that already carry a stance — including the
// sentinel failure state — are skipped, which makes the call idempotent:
// a fully analyzed table produces zero classifier calls.
//
// Within a batch entries are independent and keyed by lookup id, so workers
// update disjoint entries and no locking is needed for the entries
// themselves; the periodic whole-table checkpoint is written only at batch
// boundaries, after all workers have returned. The table is re-sorted
// deterministically before returning.
func AnalyzeBatch(ctx context.Context, table []*model.LookupEntry, classifier Classifier, opts AnalyzeOptions) (*AnalyzeStats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	s := &scheduler{
		opts:       opts,
		classifier: classifier,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("analyze: classifier circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}

	stats := &AnalyzeStats{}
	for _, e := range table {
		if opts.RetryFailed && e.Failed() {
			e.ClearAnalysis()
			continue
		}
		if e.Analyzed() {
			stats.AlreadyAnalyzed++
		}
	}

	// Batches are carved from a snapshot of the current table order so a
	// mid-run checkpoint sort cannot disturb the partition.
	order := slices.Clone(table)

	for start := 0; start < len(order); start += opts.BatchSize {
		batch := order[start:min(start+opts.BatchSize, len(order))]

		pending := make([]*model.LookupEntry, 0, len(batch))
		for _, e := range batch {
			if !e.Analyzed() {
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			continue
		}

		if opts.Parallel {
			if err := s.runParallel(ctx, pending, stats); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				// Pool-level failure: the batch already paid most of its
				// wall-clock cost, so retry the remainder sequentially
				// instead of aborting the run.
				zap.L().Warn("analyze: parallel batch failed, retrying sequentially",
					zap.Int("batch_start", start),
					zap.Error(err),
				)
				if err := s.runSequential(ctx, pending, stats); err != nil {
					return stats, err
				}
			}
		} else {
			if err := s.runSequential(ctx, pending, stats); err != nil {
				return stats, err
			}
		}

		if err := s.maybeCheckpoint(table); err != nil {
			return stats, err
		}

		zap.L().Info("analyze: batch complete",
			zap.Int("batch_start", start),
			zap.Int("already_analyzed", stats.AlreadyAnalyzed),
			zap.Int("newly_analyzed", stats.NewlyAnalyzed),
			zap.Int("failed", stats.Failed),
		)
	}

	model.SortLookupTable(table)
	return stats, nil
}

type scheduler struct {
	opts       AnalyzeOptions
	classifier Classifier
	breaker    *resilience.CircuitBreaker

	mu                  sync.Mutex
	sinceLastCheckpoint int
}

// runParallel classifies the pending entries of one batch through a bounded
// worker pool. A worker returns an error only for context cancellation or an
// open circuit; ordinary classification failures degrade to the sentinel
// state inside classifyEntry and never abort the pool.
func (s *scheduler) runParallel(ctx context.Context, pending []*model.LookupEntry, stats *AnalyzeStats) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.opts.BatchSize, len(pending)))

	for _, e := range pending {
		g.Go(func() error {
			return s.classifyEntry(gctx, e, stats)
		})
	}
	return g.Wait()
}

// runSequential classifies pending entries one at a time, waiting out an
// open circuit rather than failing entries. The circuit can also open in the
// middle of an entry's retry cycle; that entry is held and retried once the
// circuit allows requests again, so it never silently stays unanalyzed.
func (s *scheduler) runSequential(ctx context.Context, pending []*model.LookupEntry, stats *AnalyzeStats) error {
	for _, e := range pending {
		if e.Analyzed() {
			continue
		}
		for {
			if err := s.waitForCircuit(ctx); err != nil {
				return err
			}
			err := s.classifyEntry(ctx, e, stats)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return err
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				zap.L().Warn("analyze: circuit opened mid-entry, holding for retry",
					zap.String("lookup_id", e.LookupID),
				)
				continue
			}
			return err
		}
	}
	return nil
}

// classifyEntry runs the full retry cycle for one entry and records the
// outcome on the entry: the flattened result on success, the sentinel
// failure state on retry exhaustion.
func (s *scheduler) classifyEntry(ctx context.Context, e *model.LookupEntry, stats *AnalyzeStats) error {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    s.opts.MaxRetries,
		InitialBackoff: s.opts.InitialBackoff,
		// Retry every failure, timeouts included; exhaustion is handled
		// below, not by the retry helper.
		ShouldRetry: func(error) bool { return true },
		OnRetry:     resilience.LogRetries("classify", zap.String("lookup_id", e.LookupID)),
	}

	result, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*model.ClassificationResult, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*model.ClassificationResult, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
			return s.classifier.Classify(callCtx, e.TruncatedText, e.LookupID)
		})
	})

	if err != nil {
		if ctx.Err() != nil {
			// External cancellation: leave the entry unanalyzed so a
			// resumed run picks it up.
			return ctx.Err()
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// Propagate so the pool aborts and the batch falls back to
			// sequential processing.
			return err
		}
		e.SetFailure(failureReason(err, s.opts.MaxRetries))
		s.record(stats, false)
		zap.L().Warn("analyze: entry failed",
			zap.String("lookup_id", e.LookupID),
			zap.Error(err),
		)
		return nil
	}

	e.SetResult(result)
	s.record(stats, true)
	return nil
}

func (s *scheduler) record(stats *AnalyzeStats, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		stats.NewlyAnalyzed++
	} else {
		stats.Failed++
	}
	s.sinceLastCheckpoint++
}

// maybeCheckpoint persists the whole table once enough entries have been
// processed since the last write. Runs only between batches, after the
// worker join, so no worker is mutating entries during the write.
func (s *scheduler) maybeCheckpoint(table []*model.LookupEntry) error {
	if s.opts.CheckpointPath == "" || s.opts.CheckpointEvery <= 0 {
		return nil
	}

	s.mu.Lock()
	due := s.sinceLastCheckpoint >= s.opts.CheckpointEvery
	if due {
		s.sinceLastCheckpoint = 0
	}
	s.mu.Unlock()
	if !due {
		return nil
	}

	snapshot := slices.Clone(table)
	model.SortLookupTable(snapshot)
	if err := dataset.SaveLookupTable(s.opts.CheckpointPath, snapshot); err != nil {
		return err
	}
	zap.L().Info("analyze: checkpoint written", zap.String("path", s.opts.CheckpointPath))
	return nil
}

// waitForCircuit blocks until the classifier circuit allows requests again.
func (s *scheduler) waitForCircuit(ctx context.Context) error {
	for s.breaker.State() == resilience.CircuitOpen {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

func failureReason(err error, attempts int) string {
	if IsClassifyTimeout(err) {
		return fmt.Sprintf("classification timed out after %d attempts", attempts)
	}
	return fmt.Sprintf("classification failed after %d attempts: %v", attempts, err)
}
