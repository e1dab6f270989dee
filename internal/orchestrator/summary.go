package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Progress returns a snapshot of the active or most recent run; ok is false before the first Run.
// A run in progress reports an empty StopReason.
func (o *Orchestrator) Progress() (crawler.Summary, bool) {
	r := o.current.Load()
	if r == nil {
		return crawler.Summary{}, false
	}
	if final := r.final.Load(); final != nil {
		return *final, true
	}
	return r.snapshot(), true
}

func (r *run) snapshot() crawler.Summary {
	ledger := r.ledger.Stats()
	s := crawler.Summary{
		RunID:          r.id,
		QuotaRequested: r.cfg.Quota,
		Emitted:        ledger.Emitted,
		UniqueIDs:      ledger.Processed,
		QuotaReached:   r.ledger.QuotaReached(),
		Duration:       r.clock.Now().Sub(r.start),
	}
	r.counters.Fill(&s)
	s.IdentitiesRetired = int(r.rotated.Load())
	if ps, ok := r.identities.(poolStats); ok {
		s.IdentitiesRetired = ps.Stats().Retired
	}
	return s
}

// finish computes the final summary and publishes it to Progress.
func (r *run) finish(ctx context.Context, runErr error) crawler.Summary {
	s := r.snapshot()
	s.StopReason = r.stopReason(ctx, runErr)
	r.final.Store(&s)
	return s
}

func (r *run) stopReason(ctx context.Context, runErr error) crawler.StopReason {
	switch {
	case errors.Is(runErr, crawler.ErrPoolExhausted):
		return crawler.StopPoolExhausted
	case errors.Is(runErr, crawler.ErrInvalidConfiguration):
		return crawler.StopInvalidConfig
	case r.ledger.QuotaReached():
		return crawler.StopQuotaReached
	case ctx.Err() != nil:
		return crawler.StopCanceled
	case r.frontier.CeilingReached():
		return crawler.StopPageCeiling
	default:
		return crawler.StopFrontierEmpty
	}
}

func (o *Orchestrator) logSummary(s crawler.Summary) {
	o.logger.Info("crawl run finished",
		zap.String("run_id", s.RunID),
		zap.String("stop_reason", string(s.StopReason)),
		zap.Int("quota_requested", s.QuotaRequested),
		zap.Int("emitted", s.Emitted),
		zap.Bool("quota_reached", s.QuotaReached),
		zap.Int("pages_visited", s.PagesVisited),
		zap.Int("details_fetched", s.DetailsFetched),
		zap.Int("unique_ids", s.UniqueIDs),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("challenges", s.Challenges),
		zap.Int("retries", s.Retries),
		zap.Int("failed_tasks", s.FailedTasks),
		zap.Int("empty_pages", s.EmptyPages),
		zap.Int("identities_retired", s.IdentitiesRetired),
		zap.Duration("duration", s.Duration),
	)
}
