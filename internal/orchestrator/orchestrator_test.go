package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/extract"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink/memory"
)

type fetchCall struct {
	url          string
	identity     *crawler.Identity
	referer      string
	prevRetired  bool
	prevIdentity string
}

// fakeFetcher serves pages from a handler and records every request.
type fakeFetcher struct {
	mu      sync.Mutex
	handler func(u *url.URL, attempt int) crawler.Page
	calls   []fetchCall
	seen    map[string]int
}

func newFakeFetcher(handler func(u *url.URL, attempt int) crawler.Page) *fakeFetcher {
	return &fakeFetcher{handler: handler, seen: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.Page, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return crawler.Page{}, err
	}
	f.mu.Lock()
	call := fetchCall{url: req.URL, identity: req.Identity, referer: req.Headers.Get("Referer")}
	if n := len(f.calls); n > 0 {
		prev := f.calls[n-1].identity
		call.prevIdentity = prev.ID
		call.prevRetired = prev.Retired()
	}
	f.calls = append(f.calls, call)
	attempt := f.seen[req.URL]
	f.seen[req.URL]++
	f.mu.Unlock()

	page := f.handler(u, attempt)
	page.URL = req.URL
	if page.FinalURL == "" {
		page.FinalURL = req.URL
	}
	return page, nil
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func (f *fakeFetcher) Fetched(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[u] > 0
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

func ok(body string) crawler.Page {
	return crawler.Page{StatusCode: http.StatusOK, Body: []byte(body)}
}

func status(code int, body string) crawler.Page {
	return crawler.Page{StatusCode: code, Body: []byte(body)}
}

const emptyListing = `<html><body><p>No matching results were found.</p></body></html>`

func listing(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="jobs-search__results-list">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><div class="base-card" data-entity-urn="urn:li:jobPosting:%d">`+
			`<a class="base-card__full-link" href="https://jobs.test/jobs/view/nurse-%d">Registered Nurse %d</a>`+
			`<h3 class="base-search-card__title">Registered Nurse %d</h3>`+
			`<h4 class="base-search-card__subtitle">Acme Health</h4>`+
			`<span class="job-search-card__location">Austin, TX</span></div></li>`, id, id, id, id)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

// jsonLDListing renders postings only as schema.org JobPosting objects.
func jsonLDListing(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><head><script type="application/ld+json">{"@context":"https://schema.org","@graph":[`)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"@type":"JobPosting","identifier":{"@type":"PropertyValue","value":"%d"},`+
			`"title":"Welder %d","hiringOrganization":{"@type":"Organization","name":"Gulf Fabrication"},`+
			`"jobLocation":{"@type":"Place","address":{"addressLocality":"Houston","addressRegion":"TX"}},`+
			`"description":"<p>MIG and TIG welding.</p>","url":"https://jobs.test/jobs/view/welder-%d"}`, id, id, id)
	}
	b.WriteString(`]}</script></head><body><div id="app"></div></body></html>`)
	return b.String()
}

// slowFailingSink fails its first append after a delay and stores the rest.
type slowFailingSink struct {
	*memory.Sink
	delay  time.Duration
	failed atomic.Bool
}

func (s *slowFailingSink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	if s.failed.CompareAndSwap(false, true) {
		time.Sleep(s.delay)
		return errors.New("write timed out")
	}
	return s.Sink.Append(ctx, record)
}

func offsetOf(u *url.URL) string {
	return u.Query().Get("start")
}

func testConfig() crawler.RunConfig {
	cfg := crawler.DefaultRunConfig()
	cfg.Keyword = "nurse"
	cfg.Location = "Austin"
	cfg.Search.BaseURL = "https://jobs.test/search"
	cfg.RequestDelay = 0
	cfg.RequestDelayJitter = 0
	cfg.RequestsPerMinute = 0
	cfg.BackoffScale = 0
	cfg.Concurrency = 1
	cfg.FetchDetails = false
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg crawler.RunConfig, fetcher crawler.Fetcher, sink crawler.Sink) *Orchestrator {
	t.Helper()
	o, err := New(cfg, Deps{
		Fetcher: fetcher,
		Sink:    sink,
		Pauser:  noPause{},
		IDs:     fixedID("run-test"),
	})
	require.NoError(t, err)
	return o
}

func emittedIDs(s *memory.Sink) []string {
	var ids []string
	for _, r := range s.Records() {
		ids = append(ids, r.ExternalID)
	}
	return ids
}

func TestRunStopsAtQuota(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota = 5
	cfg.PageCeiling = 2
	cfg.Concurrency = 3

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch offsetOf(u) {
		case "0":
			return ok(listing(1001, 1002, 1003))
		case "25":
			return ok(listing(1026, 1027, 1028))
		default:
			return ok(listing(1051, 1052, 1053))
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Emitted)
	assert.Equal(t, 5, sink.Len())
	assert.Equal(t, 5, summary.QuotaRequested)
	assert.Equal(t, 2, summary.PagesVisited)
	assert.True(t, summary.QuotaReached)
	assert.Equal(t, crawler.StopQuotaReached, summary.StopReason)
	assert.Equal(t, "run-test", summary.RunID)

	first := fetcher.Calls()[0].url
	assert.Contains(t, first, "keywords=nurse")
	assert.Contains(t, first, "location=Austin")

	for _, r := range sink.Records() {
		assert.Equal(t, "run-test", r.RunID)
		assert.Equal(t, "nurse", r.Provenance.Keyword)
		assert.Equal(t, "Austin", r.Provenance.Location)
		assert.Equal(t, "Acme Health", r.Company)
	}
}

func TestRunStopsAtQuotaWithStructuredData(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Keyword = "welder"
	cfg.Location = "Houston"
	cfg.Quota = 5
	cfg.PageCeiling = 2

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch offsetOf(u) {
		case "0":
			return ok(jsonLDListing(301, 302, 303))
		case "25":
			return ok(jsonLDListing(326, 327, 328))
		default:
			return ok(jsonLDListing(351, 352, 353))
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Emitted)
	assert.Equal(t, 2, summary.PagesVisited)
	assert.Equal(t, crawler.StopQuotaReached, summary.StopReason)
	assert.Equal(t, []string{"301", "302", "303", "326", "327"}, emittedIDs(sink))
	for _, r := range sink.Records() {
		assert.Equal(t, extract.StrategyStructured, r.Strategy)
		assert.Equal(t, "Gulf Fabrication", r.Company)
		assert.Equal(t, "Houston, TX", r.Location)
		assert.Equal(t, "MIG and TIG welding.", r.DescriptionText)
	}
}

func TestRunStopsAtPageCeiling(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PageCeiling = 2

	next := 2000
	var mu sync.Mutex
	fetcher := newFakeFetcher(func(*url.URL, int) crawler.Page {
		mu.Lock()
		defer mu.Unlock()
		next += 3
		return ok(listing(next, next+1, next+2))
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PagesVisited)
	assert.Equal(t, 6, summary.Emitted)
	assert.False(t, summary.QuotaReached)
	assert.Equal(t, crawler.StopPageCeiling, summary.StopReason)
	assert.Len(t, fetcher.Calls(), 2)
}

func TestRunEmitsEachIDOnceAcrossDocuments(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Keyword = ""
	cfg.SeedURLs = []string{"https://jobs.test/a?start=0", "https://jobs.test/b?start=0"}

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case u.Path == "/a" && offsetOf(u) == "0":
			return ok(listing(1, 2, 3))
		case u.Path == "/b" && offsetOf(u) == "0":
			return ok(listing(2, 3, 4))
		default:
			return ok(emptyListing)
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "2", "3", "4"}, emittedIDs(sink))
	assert.Equal(t, 4, summary.Emitted)
	assert.Equal(t, 4, summary.UniqueIDs)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 2, summary.EmptyPages)
	assert.Equal(t, crawler.StopFrontierEmpty, summary.StopReason)
}

func TestRunEmptyFirstPageIsSoftStop(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SeedURLs = []string{"https://jobs.test/other?start=0"}

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		if u.Path == "/other" && offsetOf(u) == "0" {
			return ok(listing(7001, 7002))
		}
		return ok(emptyListing)
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Emitted)
	assert.Equal(t, 3, summary.PagesVisited)
	assert.Equal(t, 2, summary.EmptyPages)
	assert.False(t, fetcher.Fetched("https://jobs.test/search?keywords=nurse&location=Austin&start=25"),
		"an empty page ends its own pagination branch")
	assert.True(t, fetcher.Fetched("https://jobs.test/other?start=25"))
	assert.Equal(t, crawler.StopFrontierEmpty, summary.StopReason)
}

func TestRunRotatesIdentityBeforeRetry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.Identity.PoolSize = 2
	cfg.Identity.ReplenishLimit = 10

	fetcher := newFakeFetcher(func(*url.URL, int) crawler.Page {
		return status(http.StatusTooManyRequests, "slow down")
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	calls := fetcher.Calls()
	require.Len(t, calls, 4, "first attempt plus exactly three retries")
	seen := map[string]bool{}
	for i, c := range calls {
		assert.False(t, seen[c.identity.ID], "identity %s reused", c.identity.ID)
		seen[c.identity.ID] = true
		if i > 0 {
			assert.True(t, c.prevRetired, "identity %s retired before attempt %d", c.prevIdentity, i+1)
		}
	}
	assert.Equal(t, 3, summary.Retries)
	assert.Equal(t, 1, summary.FailedTasks)
	assert.Equal(t, 4, summary.IdentitiesRetired)
	assert.Equal(t, 0, summary.Emitted)
	assert.Equal(t, 0, summary.PagesVisited)
}

func TestRunRetriesAfterChallenge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	fetcher := newFakeFetcher(func(u *url.URL, attempt int) crawler.Page {
		if offsetOf(u) != "0" {
			return ok(emptyListing)
		}
		if attempt == 0 {
			return ok(`<html><body>We've noticed unusual traffic from your network.</body></html>`)
		}
		return ok(listing(1, 2, 3))
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Challenges)
	assert.Equal(t, 1, summary.Retries)
	assert.Equal(t, 3, summary.Emitted)
	assert.GreaterOrEqual(t, summary.IdentitiesRetired, 1)
}

func TestRunFetchesDetailsAndMerges(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FetchDetails = true

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case strings.HasPrefix(u.Path, "/jobs/view/"):
			return ok(`<html><body><h1 class="top-card-layout__title">Registered Nurse - Night Shift</h1>` +
				`<div class="show-more-less-html__markup"><p>Care for patients in the ICU.</p></div></body></html>`)
		case offsetOf(u) == "0":
			return ok(listing(1001))
		default:
			return ok(emptyListing)
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, sink.Len())
	rec := sink.Records()[0]
	assert.Equal(t, "1001", rec.ExternalID)
	assert.Contains(t, rec.DescriptionHTML, "Care for patients in the ICU.")
	assert.Equal(t, "Acme Health", rec.Company)
	assert.Equal(t, 1, summary.DetailsFetched)

	var detailCall *fetchCall
	for _, c := range fetcher.Calls() {
		if strings.Contains(c.url, "/jobs/view/") {
			detailCall = &c
		}
	}
	require.NotNil(t, detailCall)
	assert.Equal(t, "https://jobs.test/search?keywords=nurse&location=Austin&start=0", detailCall.referer)
}

func TestRunKeepsListingTitleOverBoilerplateDetailTitle(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FetchDetails = true

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case strings.HasPrefix(u.Path, "/jobs/view/"):
			return ok(`<html><body><h1>Sign in</h1>` +
				`<div class="show-more-less-html__markup"><p>Twelve-hour shifts on the cardiac floor.</p></div></body></html>`)
		case offsetOf(u) == "0":
			return ok(listing(1001))
		default:
			return ok(emptyListing)
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, sink.Len())
	rec := sink.Records()[0]
	assert.Equal(t, "Registered Nurse 1001", rec.Title)
	assert.Equal(t, "Twelve-hour shifts on the cardiac floor.", rec.DescriptionText)
	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, 1, summary.DetailsFetched)
}

func TestRunStopsQueuingDetailsOnceQuotaIsCovered(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FetchDetails = true
	cfg.Quota = 2

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case strings.HasPrefix(u.Path, "/jobs/view/"):
			return ok(`<html><body><h1 class="top-card-layout__title">Registered Nurse</h1>` +
				`<div class="show-more-less-html__markup"><p>Med-surg unit.</p></div></body></html>`)
		case offsetOf(u) == "0":
			return ok(listing(1, 2, 3, 4, 5))
		default:
			return ok(listing(26, 27, 28))
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	details := 0
	for _, c := range fetcher.Calls() {
		if strings.Contains(c.url, "/jobs/view/") {
			details++
		}
	}
	assert.Equal(t, 2, details)
	assert.Equal(t, 2, summary.DetailsFetched)
	assert.Equal(t, []string{"1", "2"}, emittedIDs(sink))
	assert.Equal(t, crawler.StopQuotaReached, summary.StopReason)
}

func TestRunEmitsSeedWhenDetailFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FetchDetails = true
	cfg.MaxRetries = 0

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case strings.HasPrefix(u.Path, "/jobs/view/"):
			return status(http.StatusInternalServerError, "oops")
		case offsetOf(u) == "0":
			return ok(listing(1001))
		default:
			return ok(emptyListing)
		}
	})
	sink := memory.New()

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, sink.Len())
	rec := sink.Records()[0]
	assert.Equal(t, "Registered Nurse 1001", rec.Title)
	assert.Empty(t, rec.DescriptionHTML)
	assert.Equal(t, 1, summary.FailedTasks)
	assert.Equal(t, 0, summary.DetailsFetched)
}

func TestRunFailsWhenPoolIsExhausted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Identity.PoolSize = 1
	cfg.Identity.ReplenishLimit = 0

	fetcher := newFakeFetcher(func(*url.URL, int) crawler.Page {
		return status(999, "")
	})

	summary, err := newTestOrchestrator(t, cfg, fetcher, memory.New()).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrPoolExhausted)
	assert.Equal(t, crawler.StopPoolExhausted, summary.StopReason)
	assert.Equal(t, 1, summary.IdentitiesRetired)
	assert.Equal(t, 0, summary.Emitted)
}

func TestRunRollsBackOnSinkFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		if offsetOf(u) == "0" {
			return ok(listing(1, 2, 3))
		}
		return ok(emptyListing)
	})
	sink := &memory.Sink{FailAfter: 2}

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Emitted)
	assert.Equal(t, 2, sink.Len())
}

func TestRunRecoversQuotaSlotAfterSlowSinkFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Keyword = ""
	cfg.Quota = 1
	cfg.Concurrency = 2
	cfg.SeedURLs = []string{"https://jobs.test/a?start=0", "https://jobs.test/b?start=0"}

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		switch {
		case u.Path == "/a" && offsetOf(u) == "0":
			return ok(listing(1))
		case u.Path == "/b" && offsetOf(u) == "0":
			return ok(listing(2))
		default:
			return ok(emptyListing)
		}
	})
	sink := &slowFailingSink{Sink: memory.New(), delay: 100 * time.Millisecond}

	summary, err := newTestOrchestrator(t, cfg, fetcher, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, 1, sink.Len())
	assert.True(t, summary.QuotaReached)
	assert.Equal(t, crawler.StopQuotaReached, summary.StopReason)
}

func TestRunHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newFakeFetcher(func(*url.URL, int) crawler.Page { return ok(listing(1)) })
	summary, err := newTestOrchestrator(t, testConfig(), fetcher, memory.New()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.StopCanceled, summary.StopReason)
	assert.Equal(t, 0, summary.Emitted)
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Quota = 0
	_, err := New(cfg, Deps{Fetcher: newFakeFetcher(nil), Sink: memory.New()})
	require.ErrorIs(t, err, crawler.ErrInvalidConfiguration)

	_, err = New(testConfig(), Deps{Fetcher: newFakeFetcher(nil)})
	require.ErrorIs(t, err, crawler.ErrInvalidConfiguration)

	cfg = testConfig()
	cfg.Concurrency = 11
	_, err = New(cfg, Deps{Fetcher: newFakeFetcher(nil), Sink: memory.New()})
	require.ErrorIs(t, err, crawler.ErrInvalidConfiguration)
}

func TestProgressReportsFinalSummary(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(func(u *url.URL, _ int) crawler.Page {
		if offsetOf(u) == "0" {
			return ok(listing(1, 2))
		}
		return ok(emptyListing)
	})
	o := newTestOrchestrator(t, testConfig(), fetcher, memory.New())

	_, running := o.Progress()
	assert.False(t, running)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	progress, ok := o.Progress()
	require.True(t, ok)
	assert.Equal(t, summary, progress)
	assert.Equal(t, crawler.StopFrontierEmpty, progress.StopReason)
}
