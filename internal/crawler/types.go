// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// TaskKind distinguishes search-result pages from single-posting pages.
type TaskKind string

// Task kinds handled by the frontier.
const (
	TaskKindList   TaskKind = "LIST"
	TaskKindDetail TaskKind = "DETAIL"
)

// TaskState is the lifecycle state of one fetch attempt.
type TaskState string

// Task states reported by the orchestrator and the retry controller.
const (
	TaskStatePending    TaskState = "PENDING"
	TaskStateInFlight   TaskState = "IN_FLIGHT"
	TaskStateSucceeded  TaskState = "SUCCEEDED"
	TaskStateRetrying   TaskState = "RETRYING"
	TaskStateFailed     TaskState = "FAILED"
	TaskStateExtracted  TaskState = "EXTRACTED"
	TaskStateChallenged TaskState = "CHALLENGED"
	TaskStateErrored    TaskState = "ERRORED"
)

// FetchTask is one unit of work pulled from the frontier.
type FetchTask struct {
	URL        string
	Kind       TaskKind
	PageOffset int
	// Seed carries the fields already known from a listing page.
	Seed    *CandidateRecord
	Attempt int
}

// NextAttempt returns a copy of the task scheduled for another attempt.
func (t FetchTask) NextAttempt() FetchTask {
	next := t
	next.Attempt++
	return next
}

// IsList reports whether the task fetches a search-results page.
func (t FetchTask) IsList() bool {
	return t.Kind == TaskKindList
}

// Provenance records where and how a record was found.
type Provenance struct {
	Keyword    string    `json:"keyword"`
	Location   string    `json:"location,omitempty"`
	DateFilter string    `json:"date_filter,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
	SourceURL  string    `json:"source_url"`
}

// CandidateRecord is an extracted posting before dedup and quota checks.
type CandidateRecord struct {
	ExternalID      string     `json:"external_id"`
	Title           string     `json:"title"`
	Company         string     `json:"company,omitempty"`
	Location        string     `json:"location,omitempty"`
	DatePosted      string     `json:"date_posted,omitempty"`
	Salary          string     `json:"salary,omitempty"`
	EmploymentType  string     `json:"employment_type,omitempty"`
	DescriptionText string     `json:"description_text,omitempty"`
	DescriptionHTML string     `json:"description_html,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	Strategy        string     `json:"extraction_strategy"`
	Provenance      Provenance `json:"provenance"`
}

// HasDescription reports whether any description variant is present.
func (c CandidateRecord) HasDescription() bool {
	return strings.TrimSpace(c.DescriptionText) != "" || strings.TrimSpace(c.DescriptionHTML) != ""
}

// EmittedRecord is a candidate that passed dedup, validity and quota checks.
type EmittedRecord struct {
	CandidateRecord
	RunID     string    `json:"run_id"`
	EmittedAt time.Time `json:"emitted_at"`
}

// IdentityState is the lifecycle state of an identity.
type IdentityState string

// Identity states.
const (
	IdentityActive  IdentityState = "ACTIVE"
	IdentityRetired IdentityState = "RETIRED"
)

// HeaderProfile is the browser fingerprint presented by an identity.
type HeaderProfile struct {
	Name           string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	SecChUA        string
	Platform       string
}

// Headers renders the profile as request headers.
func (p HeaderProfile) Headers() http.Header {
	h := http.Header{}
	set := func(k, v string) {
		if v != "" {
			h.Set(k, v)
		}
	}
	set("User-Agent", p.UserAgent)
	set("Accept", p.Accept)
	set("Accept-Language", p.AcceptLanguage)
	set("Sec-Ch-Ua", p.SecChUA)
	set("Sec-Ch-Ua-Platform", p.Platform)
	if p.SecChUA != "" {
		h.Set("Sec-Ch-Ua-Mobile", "?0")
	}
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// Identity is a request fingerprint (headers, cookies, proxy) checked out by one task at a time.
// Counters are owned by the identity pool; callers treat them as read-only.
type Identity struct {
	ID         string
	Profile    HeaderProfile
	CookieJar  http.CookieJar
	ProxyURL   string
	UsageCount int
	ErrorScore float64
	State      IdentityState
	LastUsed   time.Time
}

// Retired reports whether the identity can no longer be used.
func (i *Identity) Retired() bool {
	return i == nil || i.State == IdentityRetired
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL      string
	Identity *Identity
	Headers  http.Header
}

// Page is the result returned by a Fetcher implementation.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentLength returns the body size in bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// TaskContext is the per-document input shared by extraction and pagination.
type TaskContext struct {
	Task       FetchTask
	Provenance Provenance
}

// StopReason explains why a run or a pagination branch ended.
type StopReason string

// Stop reasons.
const (
	StopNone          StopReason = ""
	StopQuotaReached  StopReason = "quota-reached"
	StopPageCeiling   StopReason = "page-ceiling"
	StopFrontierEmpty StopReason = "frontier-empty"
	StopEmptyPage     StopReason = "empty-page"
	StopNoNext        StopReason = "no-next"
	StopMaxOffset     StopReason = "max-offset"
	StopPoolExhausted StopReason = "pool-exhausted"
	StopCanceled      StopReason = "canceled"
	StopInvalidConfig StopReason = "invalid-configuration"
)

// Summary is reported when a run terminates.
type Summary struct {
	RunID             string        `json:"run_id"`
	QuotaRequested    int           `json:"quota_requested"`
	Emitted           int           `json:"emitted"`
	PagesVisited      int           `json:"pages_visited"`
	DetailsFetched    int           `json:"details_fetched"`
	UniqueIDs         int           `json:"unique_ids_processed"`
	Duplicates        int           `json:"duplicates"`
	Challenges        int           `json:"challenges"`
	Retries           int           `json:"retries"`
	FailedTasks       int           `json:"failed_tasks"`
	EmptyPages        int           `json:"empty_pages"`
	IdentitiesRetired int           `json:"identities_retired"`
	QuotaReached      bool          `json:"quota_reached"`
	StopReason        StopReason    `json:"stop_reason"`
	Duration          time.Duration `json:"duration"`
}

// Counters is a concurrency-safe accumulator the orchestrator folds into a Summary.
type Counters struct {
	mu             sync.Mutex
	pagesVisited   int
	detailsFetched int
	challenges     int
	retries        int
	failed         int
	emptyPages     int
	duplicates     int
}

// AddPage records a successfully fetched LIST page.
func (c *Counters) AddPage() { c.add(&c.pagesVisited) }

// AddDetail records a successfully fetched DETAIL page.
func (c *Counters) AddDetail() { c.add(&c.detailsFetched) }

// AddChallenge records a challenge verdict.
func (c *Counters) AddChallenge() { c.add(&c.challenges) }

// AddRetry records a re-enqueued task.
func (c *Counters) AddRetry() { c.add(&c.retries) }

// AddFailed records a task dropped after exhausting retries.
func (c *Counters) AddFailed() { c.add(&c.failed) }

// AddEmptyPage records a LIST page with zero candidates.
func (c *Counters) AddEmptyPage() { c.add(&c.emptyPages) }

// AddDuplicate records a candidate rejected by the dedup ledger.
func (c *Counters) AddDuplicate() { c.add(&c.duplicates) }

func (c *Counters) add(field *int) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// Fill copies the counters into s.
func (c *Counters) Fill(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.PagesVisited = c.pagesVisited
	s.DetailsFetched = c.detailsFetched
	s.Challenges = c.challenges
	s.Retries = c.retries
	s.FailedTasks = c.failed
	s.EmptyPages = c.emptyPages
	s.Duplicates = c.duplicates
}
