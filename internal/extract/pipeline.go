// Package extract turns fetched listing and detail documents into candidate records.
package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/hash/sha256"
)

// Strategy names recorded on every candidate.
const (
	StrategyStructured = "structured-data"
	StrategyEmbedded   = "embedded-state"
	StrategyDOM        = "dom-heuristic"
	StrategyFreeText   = "free-text"
)

// Strategy is one extraction method in the fallback chain.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, tc crawler.TaskContext) []crawler.CandidateRecord
}

// Config wires the pipeline.
type Config struct {
	Settings crawler.ExtractionSettings
	Hasher   crawler.Hasher
	Logger   *zap.Logger
}

// Result is the output of one pipeline run.
type Result struct {
	Strategy   string
	Candidates []crawler.CandidateRecord
	// Rejected counts candidates dropped by the sanitizer or the in-document dedup.
	Rejected int
}

// Empty reports whether no strategy produced a candidate.
func (r Result) Empty() bool {
	return len(r.Candidates) == 0
}

// Pipeline tries strategies in order and keeps the first that yields a valid candidate.
type Pipeline struct {
	strategies []Strategy
	sanitizer  *Sanitizer
	ids        idResolver
	logger     *zap.Logger
}

// New builds the default pipeline: structured data, embedded state, DOM heuristics, free text.
func New(cfg Config) *Pipeline {
	s := cfg.Settings
	return NewWithStrategies(cfg,
		NewStructuredStrategy(),
		NewEmbeddedStrategy(s.MaxEmbeddedDepth),
		NewDOMStrategy(s.MinCardText, s.MaxCardText),
		NewFreeTextStrategy(s.MaxFreeTextMatches),
	)
}

// NewWithStrategies builds a pipeline with a custom strategy order.
func NewWithStrategies(cfg Config, strategies ...Strategy) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Pipeline{
		strategies: strategies,
		sanitizer:  NewSanitizer(cfg.Settings.MinTitleLength),
		ids:        idResolver{hasher: hasher},
		logger:     logger,
	}
}

// Parse loads a document from a fetched body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Extract runs the strategies in order. Later strategies are not merged in once one succeeds.
func (p *Pipeline) Extract(doc *goquery.Document, tc crawler.TaskContext) Result {
	var rejected int
	for _, strategy := range p.strategies {
		raw := strategy.Extract(doc, tc)
		if len(raw) == 0 {
			continue
		}
		accepted, dropped := p.finalize(strategy.Name(), raw, tc)
		rejected += dropped
		if len(accepted) > 0 {
			p.logger.Debug("extraction strategy matched",
				zap.String("strategy", strategy.Name()),
				zap.String("url", tc.Task.URL),
				zap.Int("candidates", len(accepted)),
				zap.Int("rejected", rejected),
			)
			return Result{Strategy: strategy.Name(), Candidates: accepted, Rejected: rejected}
		}
	}
	return Result{Rejected: rejected}
}

func (p *Pipeline) finalize(strategy string, raw []crawler.CandidateRecord, tc crawler.TaskContext) ([]crawler.CandidateRecord, int) {
	out := make([]crawler.CandidateRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	dropped := 0
	for _, c := range raw {
		c, err := p.prepare(strategy, c, tc)
		if err != nil {
			dropped++
			p.logger.Debug("candidate rejected",
				zap.String("strategy", strategy),
				zap.String("title", c.Title),
				zap.Error(err),
			)
			continue
		}
		if _, dup := seen[c.ExternalID]; dup {
			dropped++
			continue
		}
		seen[c.ExternalID] = struct{}{}
		out = append(out, c)
	}
	return out, dropped
}

// prepare sanitizes a raw candidate, stamps provenance and resolves its external id.
func (p *Pipeline) prepare(strategy string, c crawler.CandidateRecord, tc crawler.TaskContext) (crawler.CandidateRecord, error) {
	c, err := p.sanitizer.Clean(c)
	if err != nil {
		return c, err
	}
	c.Strategy = strategy
	c.SourceURL = resolveURL(tc.Task.URL, c.SourceURL)
	c.Provenance = tc.Provenance
	if c.Provenance.SourceURL == "" {
		c.Provenance.SourceURL = tc.Task.URL
	}
	id, err := p.ids.resolve(c)
	if err != nil {
		return c, err
	}
	c.ExternalID = id
	return c, nil
}

// fieldRule pairs a predicate with an extractor for one field.
type fieldRule[T any] struct {
	when    func(T) bool
	extract func(T) string
}

// firstOf evaluates rules in order and returns the first non-empty value.
func firstOf[T any](src T, rules []fieldRule[T]) string {
	for _, r := range rules {
		if r.when != nil && !r.when(src) {
			continue
		}
		if v := CollapseWhitespace(r.extract(src)); v != "" {
			return v
		}
	}
	return ""
}
