// Package identity manages the request identities presented to the target site.
package identity

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/realtime-job-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Factory creates the seq-th identity of a pool.
type Factory func(seq int) (*crawler.Identity, error)

// NewFactory rotates through profiles and proxies; each identity gets its own cookie jar.
func NewFactory(profiles []crawler.HeaderProfile, proxies []string) Factory {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	return func(seq int) (*crawler.Identity, error) {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		id := &crawler.Identity{
			ID:        fmt.Sprintf("identity-%03d", seq),
			Profile:   profiles[seq%len(profiles)],
			CookieJar: jar,
			State:     crawler.IdentityActive,
		}
		if len(proxies) > 0 {
			id.ProxyURL = proxies[seq%len(proxies)]
		}
		return id, nil
	}
}

// Config sizes the pool.
type Config struct {
	Size           int
	MaxUses        int
	MaxErrorScore  float64
	ReplenishLimit int
	Factory        Factory
	Clock          crawler.Clock
	Logger         *zap.Logger
	// OnRetire is called with the pool lock held whenever an identity is retired.
	OnRetire func(id *crawler.Identity, reason string)
}

// Stats summarizes pool activity.
type Stats struct {
	Available  int
	CheckedOut int
	Retired    int
	Created    int
}

// Pool hands out identities least-recently-used first with exclusive checkout.
type Pool struct {
	mu            sync.Mutex
	cfg           Config
	idle          []*crawler.Identity
	checkedOut    map[*crawler.Identity]struct{}
	created       int
	retired       int
	replenishLeft int
	changed       chan struct{}
	logger        *zap.Logger
}

// NewPool creates cfg.Size identities up front.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, crawler.ConfigError("identity pool size must be > 0")
	}
	if cfg.MaxUses <= 0 {
		return nil, crawler.ConfigError("identity max uses must be > 0")
	}
	if cfg.MaxErrorScore <= 0 {
		return nil, crawler.ConfigError("identity max error score must be > 0")
	}
	if cfg.Factory == nil {
		cfg.Factory = NewFactory(nil, nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:           cfg,
		checkedOut:    make(map[*crawler.Identity]struct{}),
		replenishLeft: cfg.ReplenishLimit,
		changed:       make(chan struct{}),
		logger:        logger,
	}
	for i := 0; i < cfg.Size; i++ {
		if err := p.createLocked(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) createLocked() error {
	id, err := p.cfg.Factory(p.created)
	if err != nil {
		return fmt.Errorf("create identity %d: %w", p.created, err)
	}
	id.State = crawler.IdentityActive
	p.created++
	p.idle = append(p.idle, id)
	return nil
}

// Acquire checks out the least recently used active identity.
// It blocks while every live identity is checked out and fails with
// crawler.ErrPoolExhausted once none is left.
func (p *Pool) Acquire(ctx context.Context) (*crawler.Identity, error) {
	for {
		p.mu.Lock()
		p.replenishLocked()
		if len(p.idle) > 0 {
			id := p.takeLRULocked()
			p.checkedOut[id] = struct{}{}
			p.mu.Unlock()
			return id, nil
		}
		if len(p.checkedOut) == 0 {
			p.mu.Unlock()
			return nil, crawler.ErrPoolExhausted
		}
		wait := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire identity: %w", ctx.Err())
		case <-wait:
		}
	}
}

func (p *Pool) replenishLocked() {
	for len(p.idle)+len(p.checkedOut) < p.cfg.Size && p.replenishLeft > 0 {
		p.replenishLeft--
		if err := p.createLocked(); err != nil {
			p.logger.Warn("identity replenishment failed", zap.Error(err))
			return
		}
		p.logger.Debug("identity replenished", zap.Int("created", p.created))
	}
}

func (p *Pool) takeLRULocked() *crawler.Identity {
	best := 0
	for i := 1; i < len(p.idle); i++ {
		if p.idle[i].LastUsed.Before(p.idle[best].LastUsed) {
			best = i
		}
	}
	id := p.idle[best]
	p.idle = append(p.idle[:best], p.idle[best+1:]...)
	return id
}

// Release checks an identity back in and retires it once a threshold is crossed.
func (p *Pool) Release(id *crawler.Identity, outcome crawler.IdentityOutcome) {
	if id == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.checkedOut[id]; !ok {
		return
	}
	delete(p.checkedOut, id)

	id.UsageCount++
	id.LastUsed = p.cfg.Clock.Now()
	if outcome == crawler.OutcomeFailure {
		id.ErrorScore++
	} else if id.ErrorScore > 0 {
		id.ErrorScore -= 0.5
		if id.ErrorScore < 0 {
			id.ErrorScore = 0
		}
	}

	switch {
	case id.UsageCount >= p.cfg.MaxUses:
		p.retireLocked(id, "max uses reached")
	case id.ErrorScore >= p.cfg.MaxErrorScore:
		p.retireLocked(id, "error score exceeded")
	default:
		p.idle = append(p.idle, id)
	}
	p.broadcastLocked()
}

// Retire forces an identity out of rotation; it is never handed out again.
func (p *Pool) Retire(id *crawler.Identity) {
	if id == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if id.State == crawler.IdentityRetired {
		return
	}
	delete(p.checkedOut, id)
	for i, idle := range p.idle {
		if idle == id {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.retireLocked(id, "rotation")
	p.broadcastLocked()
}

func (p *Pool) retireLocked(id *crawler.Identity, reason string) {
	id.State = crawler.IdentityRetired
	p.retired++
	if p.cfg.OnRetire != nil {
		p.cfg.OnRetire(id, reason)
	}
	p.logger.Info("identity retired",
		zap.String("identity", id.ID),
		zap.String("reason", reason),
		zap.Int("usage", id.UsageCount),
		zap.Float64("error_score", id.ErrorScore),
	)
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Available:  len(p.idle),
		CheckedOut: len(p.checkedOut),
		Retired:    p.retired,
		Created:    p.created,
	}
}

func (p *Pool) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
