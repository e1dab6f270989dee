// Package orchestrator runs a crawl: it drives the worker pool over the frontier
// and turns fetched pages into emitted records until the quota, the page ceiling
// or the work runs out.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-job-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/detector"
	"github.com/JakeFAU/realtime-job-crawler/internal/extract"
	"github.com/JakeFAU/realtime-job-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-job-crawler/internal/identity"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-job-crawler/internal/pagination"
	"github.com/JakeFAU/realtime-job-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-job-crawler/internal/retry"
	"github.com/JakeFAU/realtime-job-crawler/internal/search"
)

// Deps are the collaborators of a run. Fetcher and Sink are required; the rest
// default to production implementations built from the run configuration.
type Deps struct {
	Fetcher    crawler.Fetcher
	Sink       crawler.Sink
	Identities crawler.IdentityPool
	Limiter    crawler.RateLimiter
	Pauser     crawler.Pauser
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
	Hasher     crawler.Hasher
	Logger     *zap.Logger
}

type poolStats interface {
	Stats() identity.Stats
}

// Orchestrator executes a single crawl run.
type Orchestrator struct {
	cfg        crawler.RunConfig
	fetcher    crawler.Fetcher
	sink       crawler.Sink
	identities crawler.IdentityPool
	limiter    crawler.RateLimiter
	pauser     crawler.Pauser
	clock      crawler.Clock
	ids        crawler.IDGenerator
	detector   *detector.Detector
	pipeline   *extract.Pipeline
	resolver   *pagination.Resolver
	retries    *retry.Controller
	logger     *zap.Logger
	current    atomic.Pointer[run]
}

// New validates cfg and wires the run. Configuration problems wrap crawler.ErrInvalidConfiguration.
func New(cfg crawler.RunConfig, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if deps.Fetcher == nil {
		return nil, crawler.ConfigError("fetcher is required")
	}
	if deps.Sink == nil {
		return nil, crawler.ConfigError("sink is required")
	}
	metrics.Init()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = system.New()
	}
	pauser := deps.Pauser
	if pauser == nil {
		pauser = system.New()
	}
	ids := deps.IDs
	if ids == nil {
		ids = uuid.New()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
			Observe:           metrics.ObserveRateLimitDelay,
		})
	}
	identities := deps.Identities
	if identities == nil {
		pool, err := identity.NewPool(identity.Config{
			Size:           cfg.Identity.PoolSize,
			MaxUses:        cfg.Identity.MaxUses,
			MaxErrorScore:  cfg.Identity.MaxErrorScore,
			ReplenishLimit: cfg.Identity.ReplenishLimit,
			Factory:        identity.NewFactory(identity.DefaultProfiles(), cfg.Identity.Proxies),
			Clock:          clk,
			Logger:         logger,
			OnRetire: func(*crawler.Identity, string) {
				metrics.ObserveIdentityRetired()
			},
		})
		if err != nil {
			return nil, fmt.Errorf("identity pool: %w", err)
		}
		identities = pool
	}

	return &Orchestrator{
		cfg:        cfg,
		fetcher:    deps.Fetcher,
		sink:       deps.Sink,
		identities: identities,
		limiter:    limiter,
		pauser:     pauser,
		clock:      clk,
		ids:        ids,
		detector:   detector.New(cfg.Detector),
		pipeline: extract.New(extract.Config{
			Settings: cfg.Extraction,
			Hasher:   deps.Hasher,
			Logger:   logger,
		}),
		resolver: pagination.New(cfg.Search),
		retries: retry.New(retry.Config{
			MaxRetries: cfg.MaxRetries,
			Scale:      cfg.BackoffScale,
		}),
		logger: logger,
	}, nil
}

// run is the state of one Run call.
type run struct {
	*Orchestrator
	id       string
	start    time.Time
	frontier *frontier.Frontier
	ledger   *frontier.Ledger
	counters crawler.Counters
	rotated  atomic.Int64
	// details counts DETAIL tasks queued or in flight.
	details atomic.Int64
	final   atomic.Pointer[crawler.Summary]
}

// Run crawls until the frontier drains, the quota is met or ctx is canceled.
// The summary is always returned and logged; the error is non-nil only for fatal conditions.
func (o *Orchestrator) Run(ctx context.Context) (crawler.Summary, error) {
	start := o.clock.Now()
	runID, err := o.ids.NewID()
	if err != nil {
		return crawler.Summary{QuotaRequested: o.cfg.Quota}, fmt.Errorf("run id: %w", err)
	}
	r := &run{
		Orchestrator: o,
		id:           runID,
		start:        start,
		frontier:     frontier.New(o.cfg.PageCeiling),
		ledger:       frontier.NewLedger(o.cfg.Quota),
	}

	o.current.Store(r)

	seeds, err := search.Seeds(o.cfg)
	if err != nil {
		summary := r.finish(ctx, err)
		o.logSummary(summary)
		return summary, err
	}
	for _, seed := range seeds {
		if err := r.frontier.Enqueue(seed); err != nil {
			return r.finish(ctx, err), fmt.Errorf("enqueue seed: %w", err)
		}
	}
	o.logger.Info("crawl run started",
		zap.String("run_id", runID),
		zap.String("keyword", o.cfg.Keyword),
		zap.String("location", o.cfg.Location),
		zap.String("date_filter", string(o.cfg.DateFilter)),
		zap.Int("quota", o.cfg.Quota),
		zap.Int("page_ceiling", o.cfg.PageCeiling),
		zap.Int("seeds", len(seeds)),
		zap.Int("workers", o.cfg.Concurrency),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, r.frontier.Close)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	for i := range o.cfg.Concurrency {
		g.Go(func() error {
			return r.work(gctx, i)
		})
	}
	runErr := g.Wait()

	summary := r.finish(ctx, runErr)
	o.logSummary(summary)
	return summary, runErr
}
