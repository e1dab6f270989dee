// Package pagination decides which search-results page to fetch next.
package pagination

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// nextSelectors locate explicit "next page" controls, most specific first.
var nextSelectors = []string{
	`link[rel~="next"]`,
	`a[rel~="next"]`,
	`a[aria-label="Next"]`,
	`a[aria-label="Next Page"]`,
	`a[aria-label="Next page"]`,
	`a[data-testid="pagination-page-next"]`,
	`.pagination .next a`,
	`li.next a`,
	`a.next`,
	`a.pagination__next`,
}

var errInvalidTarget = errors.New("pagination target needs a host and an offset parameter")

// Result is the resolver's verdict for one LIST page.
type Result struct {
	Next *crawler.FetchTask
	Stop crawler.StopReason
	// Explicit is true when Next came from a next-page control in the document.
	Explicit bool
}

// Resolver computes follow-up LIST tasks.
type Resolver struct {
	offsetParam string
	pageSize    int
	maxOffset   int
}

// New builds a resolver from the search settings.
func New(s crawler.SearchSettings) *Resolver {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	return &Resolver{offsetParam: s.OffsetParam, pageSize: pageSize, maxOffset: s.MaxOffset}
}

// Resolve returns the next LIST task for a page that produced candidates.
// A returned task always has a PageOffset strictly greater than the current one.
func (r *Resolver) Resolve(doc *goquery.Document, task crawler.FetchTask, candidates int) Result {
	if candidates == 0 {
		return Result{Stop: crawler.StopEmptyPage}
	}
	if doc != nil {
		if next, ok := r.explicitNext(doc, task); ok {
			return Result{Next: next, Explicit: true}
		}
	}
	return r.synthesize(task)
}

func (r *Resolver) explicitNext(doc *goquery.Document, task crawler.FetchTask) (*crawler.FetchTask, bool) {
	for _, sel := range nextSelectors {
		var found *crawler.FetchTask
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			target, offset, ok := r.offsetOf(task.URL, href)
			if !ok || !r.acceptable(task.PageOffset, offset) {
				return true
			}
			found = newListTask(target, offset)
			return false
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// offsetOf resolves href against base and reads its pagination parameter.
func (r *Resolver) offsetOf(base, href string) (string, int, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", 0, false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", 0, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", 0, false
	}
	target := b.ResolveReference(ref)
	raw := target.Query().Get(r.offsetParam)
	if raw == "" {
		return "", 0, false
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, false
	}
	return target.String(), offset, true
}

func (r *Resolver) acceptable(current, next int) bool {
	if next <= current {
		return false
	}
	return r.maxOffset <= 0 || next <= r.maxOffset
}

func (r *Resolver) synthesize(task crawler.FetchTask) Result {
	next := task.PageOffset + r.pageSize
	if !r.acceptable(task.PageOffset, next) {
		return Result{Stop: crawler.StopMaxOffset}
	}
	target, err := WithOffset(task.URL, r.offsetParam, next)
	if err != nil {
		return Result{Stop: crawler.StopNoNext}
	}
	return Result{Next: newListTask(target, next)}
}

// WithOffset returns rawURL with its pagination parameter set to offset.
func WithOffset(rawURL, param string, offset int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" || param == "" {
		return "", errInvalidTarget
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newListTask(target string, offset int) *crawler.FetchTask {
	return &crawler.FetchTask{
		URL:        target,
		Kind:       crawler.TaskKindList,
		PageOffset: offset,
	}
}
