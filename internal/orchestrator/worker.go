package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/extract"
	"github.com/JakeFAU/realtime-job-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-job-crawler/internal/retry"
)

// work pulls tasks until the frontier drains or closes. Only fatal errors are returned.
func (r *run) work(ctx context.Context, n int) error {
	logger := r.logger.With(zap.String("run_id", r.id), zap.Int("worker", n))
	for {
		task, err := r.frontier.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, frontier.ErrDrained) || errors.Is(err, frontier.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d: %w", n, err)
		}
		metrics.IncActiveWorkers()
		err = r.process(ctx, logger, task)
		metrics.DecActiveWorkers()
		r.frontier.Done()
		if err != nil {
			r.frontier.Close()
			return err
		}
	}
}

// process runs one fetch attempt. Follow-ups and retries are enqueued before it returns.
func (r *run) process(ctx context.Context, logger *zap.Logger, task crawler.FetchTask) error {
	logger = logger.With(
		zap.String("url", task.URL),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempt),
	)
	requeued := false
	if task.Kind == crawler.TaskKindDetail {
		defer func() {
			if !requeued {
				r.details.Add(-1)
			}
		}()
	}

	r.pauser.Pause(ctx, retry.Jitter(r.cfg.RequestDelay, r.cfg.RequestDelayJitter))
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Warn("rate limiter refused request", zap.Error(err))
		}
		return nil
	}

	ident, err := r.identities.Acquire(ctx)
	if err != nil {
		if errors.Is(err, crawler.ErrPoolExhausted) {
			logger.Error("no identity left to fetch with", zap.Error(err))
			return fmt.Errorf("fetch %s: %w", task.URL, err)
		}
		return nil
	}

	fetchedAt := r.clock.Now()
	page, fetchErr := r.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:      task.URL,
		Identity: ident,
		Headers:  requestHeaders(task),
	})
	if fetchErr != nil && ctx.Err() != nil {
		r.identities.Release(ident, crawler.OutcomeSuccess)
		return nil
	}

	class, cause := r.assess(page, fetchErr)
	metrics.ObserveFetch(task.URL, string(task.Kind), outcomeLabel(class), page.ContentLength(), page.Duration)
	if class != crawler.FailureNone {
		requeued = r.fail(ctx, logger, task, ident, class, cause)
		return nil
	}
	r.identities.Release(ident, crawler.OutcomeSuccess)

	logger.Debug("page fetched",
		zap.String("identity", ident.ID),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", page.ContentLength()),
		zap.Duration("duration", page.Duration),
	)

	doc, err := extract.Parse(page.Body)
	if err != nil {
		logger.Warn("unparseable page", zap.Error(err))
		r.counters.AddFailed()
		return nil
	}
	tc := crawler.TaskContext{
		Task: task,
		Provenance: crawler.Provenance{
			Keyword:    r.cfg.Keyword,
			Location:   r.cfg.Location,
			DateFilter: string(r.cfg.DateFilter),
			FetchedAt:  fetchedAt,
			SourceURL:  task.URL,
		},
	}
	if task.IsList() {
		r.handleList(ctx, logger, doc, tc)
	} else {
		r.handleDetail(ctx, logger, doc, tc)
	}
	return nil
}

// assess maps a fetch result to a failure class; challenge detection runs before status checks.
func (r *run) assess(page crawler.Page, fetchErr error) (crawler.FailureClass, error) {
	if fetchErr != nil {
		return retry.Classify(fetchErr, nil), fetchErr
	}
	if verdict := r.detector.Detect(page); !verdict.OK() {
		r.counters.AddChallenge()
		metrics.ObserveChallenge(string(verdict.Verdict))
		return crawler.FailureChallenge, verdict.Err()
	}
	class := retry.Classify(nil, &page)
	if class == crawler.FailureNone {
		return class, nil
	}
	return class, fmt.Errorf("status %d: %w", page.StatusCode, class.Sentinel())
}

// fail hands a failed attempt to the retry controller. Rotation retires the
// identity before the retry is scheduled. It reports whether a retry was enqueued.
func (r *run) fail(
	ctx context.Context,
	logger *zap.Logger,
	task crawler.FetchTask,
	ident *crawler.Identity,
	class crawler.FailureClass,
	cause error,
) bool {
	decision := r.retries.Decide(task, class)
	if decision.Rotate {
		r.identities.Retire(ident)
		r.rotated.Add(1)
	} else {
		r.identities.Release(ident, crawler.OutcomeFailure)
	}
	metrics.ObserveRetry(string(class), string(decision.State))

	fields := []zap.Field{
		zap.String("class", string(class)),
		zap.String("identity", ident.ID),
		zap.Bool("rotated", decision.Rotate),
		zap.Error(cause),
	}
	if !decision.Retry() {
		r.counters.AddFailed()
		logger.Warn("task failed", fields...)
		if task.Kind == crawler.TaskKindDetail && task.Seed != nil {
			r.emit(ctx, logger, *task.Seed)
		}
		return false
	}

	logger.Info("task retrying", append(fields, zap.Duration("backoff", decision.Delay))...)
	r.pauser.Pause(ctx, decision.Delay)
	if err := r.frontier.Enqueue(decision.Next); err != nil {
		logger.Debug("retry not scheduled", zap.Error(err))
		return false
	}
	r.counters.AddRetry()
	return true
}

func (r *run) handleList(ctx context.Context, logger *zap.Logger, doc *goquery.Document, tc crawler.TaskContext) {
	r.counters.AddPage()
	res := r.pipeline.Extract(doc, tc)
	metrics.ObserveStrategy(res.Strategy)
	if res.Empty() {
		r.counters.AddEmptyPage()
		logger.Info("listing page yielded nothing", zap.Error(crawler.ErrExtractionEmpty), zap.Int("rejected", res.Rejected))
	} else {
		logger.Info("listing page extracted",
			zap.String("strategy", res.Strategy),
			zap.Int("candidates", len(res.Candidates)),
			zap.Int("rejected", res.Rejected),
		)
	}
	for _, c := range res.Candidates {
		r.handleCandidate(ctx, logger, c)
	}

	next := r.resolver.Resolve(doc, tc.Task, len(res.Candidates))
	if next.Next == nil {
		logger.Info("pagination stopped", zap.String("reason", string(next.Stop)))
		return
	}
	if r.ledger.QuotaReached() {
		return
	}
	if err := r.frontier.Enqueue(*next.Next); err != nil {
		logger.Debug("next page not scheduled", zap.Error(err))
		return
	}
	logger.Debug("next page scheduled",
		zap.String("next", next.Next.URL),
		zap.Int("offset", next.Next.PageOffset),
		zap.Bool("explicit", next.Explicit),
	)
}

func (r *run) handleCandidate(ctx context.Context, logger *zap.Logger, c crawler.CandidateRecord) {
	if r.ledger.HasEmitted(c.ExternalID) {
		r.duplicate()
		return
	}
	if !extract.NeedsDetail(c, r.cfg.FetchDetails) {
		if !r.ledger.Claim(c.ExternalID) {
			r.duplicate()
			return
		}
		r.emit(ctx, logger, c)
		return
	}
	// Unclaimed candidates stay eligible if a later page lists them again.
	if !r.reserveDetail() {
		logger.Debug("detail skipped, quota covered by queued details", zap.String("external_id", c.ExternalID))
		return
	}
	if !r.ledger.Claim(c.ExternalID) {
		r.details.Add(-1)
		r.duplicate()
		return
	}
	seed := c
	err := r.frontier.Enqueue(crawler.FetchTask{
		URL:  c.SourceURL,
		Kind: crawler.TaskKindDetail,
		Seed: &seed,
	})
	if err != nil {
		r.details.Add(-1)
		r.ledger.Release(c.ExternalID)
		logger.Debug("detail not scheduled", zap.String("external_id", c.ExternalID), zap.Error(err))
	}
}

// reserveDetail counts a detail follow-up against the quota still open.
func (r *run) reserveDetail() bool {
	n := int(r.details.Add(1))
	if r.cfg.Unbounded() || r.ledger.Reserved()+n <= r.cfg.Quota {
		return true
	}
	r.details.Add(-1)
	return false
}

func (r *run) duplicate() {
	r.counters.AddDuplicate()
	metrics.ObserveRecord(frontier.EmitDuplicate.String())
}

func (r *run) handleDetail(ctx context.Context, logger *zap.Logger, doc *goquery.Document, tc crawler.TaskContext) {
	r.counters.AddDetail()
	detail := r.pipeline.ExtractDetail(doc, tc)
	if tc.Task.Seed == nil {
		r.emit(ctx, logger, detail)
		return
	}
	r.emit(ctx, logger, extract.Merge(*tc.Task.Seed, detail))
}

// emit promotes a record through the validity check and the ledger, then appends it to the sink.
func (r *run) emit(ctx context.Context, logger *zap.Logger, c crawler.CandidateRecord) {
	if err := r.pipeline.Valid(c); err != nil {
		metrics.ObserveRecord("invalid")
		logger.Debug("record rejected", zap.String("external_id", c.ExternalID), zap.Error(err))
		return
	}
	result := r.ledger.TryEmit(c.ExternalID)
	metrics.ObserveRecord(result.String())
	switch result {
	case frontier.EmitDuplicate:
		r.counters.AddDuplicate()
		return
	case frontier.EmitQuotaReached:
		r.frontier.Close()
		return
	}

	record := crawler.EmittedRecord{CandidateRecord: c, RunID: r.id, EmittedAt: r.clock.Now()}
	if err := r.sink.Append(ctx, record); err != nil {
		r.ledger.Rollback(c.ExternalID)
		logger.Error("sink append failed", zap.String("external_id", c.ExternalID), zap.Error(err))
		return
	}
	r.ledger.Commit(c.ExternalID)
	logger.Debug("record emitted",
		zap.String("external_id", c.ExternalID),
		zap.String("title", c.Title),
		zap.String("strategy", c.Strategy),
	)
	if r.ledger.QuotaReached() {
		logger.Info("quota reached", zap.Int("emitted", r.ledger.Emitted()))
		r.frontier.Close()
	}
}

// requestHeaders sets a Referer for detail pages so they look like clicks from the listing.
func requestHeaders(task crawler.FetchTask) http.Header {
	h := http.Header{}
	if task.Seed != nil && task.Seed.Provenance.SourceURL != "" {
		h.Set("Referer", task.Seed.Provenance.SourceURL)
	}
	return h
}

func outcomeLabel(class crawler.FailureClass) string {
	if class == crawler.FailureNone {
		return "ok"
	}
	return strings.ToLower(string(class))
}
