package extract

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const (
	defaultEmbeddedDepth = 12
	maxEmbeddedNodes     = 50000
	maxEmbeddedPayloads  = 32
)

var assignmentPattern = regexp.MustCompile(`(?:window\.[\w$.]+|(?:var|let|const)\s+[\w$]+)\s*=\s*`)

var (
	titleKeys    = []string{"title", "jobTitle", "job_title", "positionTitle", "jobPostingTitle"}
	orgKeys      = []string{"companyName", "company_name", "company", "hiringOrganization", "employer", "employerName", "organization", "organizationName"}
	locationKeys = []string{"formattedLocation", "location", "jobLocation", "locationName", "city"}
	dateKeys     = []string{"datePosted", "listedAt", "postedAt", "publishedAt", "originalListedAt", "createdAt"}
	salaryKeys   = []string{"formattedSalary", "salary", "salaryText", "compensation", "baseSalary"}
	typeKeys     = []string{"employmentType", "formattedEmploymentStatus", "workType", "jobType"}
	descKeys     = []string{"description", "jobDescription", "descriptionText", "descriptionHtml"}
	idKeys       = []string{"jobPostingId", "jobId", "job_id", "entityUrn", "jobKey", "id"}
	urlKeys      = []string{"jobPostingUrl", "jobUrl", "url", "link", "applyUrl"}
)

// EmbeddedStrategy scans inline script state for objects shaped like job listings.
type EmbeddedStrategy struct {
	maxDepth int
}

// NewEmbeddedStrategy bounds the recursive search to maxDepth levels.
func NewEmbeddedStrategy(maxDepth int) *EmbeddedStrategy {
	if maxDepth <= 0 {
		maxDepth = defaultEmbeddedDepth
	}
	return &EmbeddedStrategy{maxDepth: maxDepth}
}

// Name implements Strategy.
func (*EmbeddedStrategy) Name() string { return StrategyEmbedded }

// Extract implements Strategy.
func (e *EmbeddedStrategy) Extract(doc *goquery.Document, _ crawler.TaskContext) []crawler.CandidateRecord {
	w := &stateWalker{maxDepth: e.maxDepth, budget: maxEmbeddedNodes}
	for _, payload := range embeddedPayloads(doc) {
		if v, ok := decodeJSON(payload); ok {
			w.walk(v, 0)
		}
	}
	return w.out
}

// embeddedPayloads collects JSON candidates from script tags and LinkedIn-style <code> islands.
func embeddedPayloads(doc *goquery.Document) []string {
	var payloads []string
	add := func(p string) {
		if len(payloads) < maxEmbeddedPayloads && strings.TrimSpace(p) != "" {
			payloads = append(payloads, p)
		}
	}

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		text := s.Text()
		switch {
		case typ == "application/ld+json":
			return
		case typ == "application/json", s.AttrOr("id", "") == "__NEXT_DATA__":
			add(text)
		case typ == "" || strings.Contains(typ, "javascript"):
			for _, loc := range assignmentPattern.FindAllStringIndex(text, -1) {
				if obj, _ := balancedObject(text, loc[1]); obj != "" && strings.HasPrefix(strings.TrimSpace(text[loc[1]:]), "{") {
					add(obj)
				}
			}
		}
	})

	doc.Find("code").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.CommentNode {
					add(c.Data)
				}
			}
		}
	})
	return payloads
}

type stateWalker struct {
	maxDepth int
	budget   int
	out      []crawler.CandidateRecord
}

func (w *stateWalker) walk(v any, depth int) {
	if depth > w.maxDepth || w.budget <= 0 {
		return
	}
	w.budget--
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			w.walk(item, depth+1)
		}
	case map[string]any:
		if rec, ok := listingFromState(t); ok {
			w.out = append(w.out, rec)
			return
		}
		for _, key := range slices.Sorted(maps.Keys(t)) {
			w.walk(t[key], depth+1)
		}
	}
}

func listingFromState(m map[string]any) (crawler.CandidateRecord, bool) {
	title := textOf(m, titleKeys...)
	if title == "" {
		return crawler.CandidateRecord{}, false
	}
	company := ""
	for _, k := range orgKeys {
		if v, ok := m[k]; ok {
			if company = nameOf(v); company != "" {
				break
			}
		}
	}
	if company == "" {
		return crawler.CandidateRecord{}, false
	}
	rec := crawler.CandidateRecord{
		ExternalID:     textOf(m, idKeys...),
		Title:          title,
		Company:        company,
		Location:       textOf(m, locationKeys...),
		DatePosted:     dateOf(m),
		Salary:         textOf(m, salaryKeys...),
		EmploymentType: textOf(m, typeKeys...),
		SourceURL:      textOf(m, urlKeys...),
	}
	desc := textOf(m, descKeys...)
	if strings.Contains(desc, "<") {
		rec.DescriptionHTML = desc
	} else {
		rec.DescriptionText = desc
	}
	return rec, true
}

// textOf reads the first key holding a scalar, a list or a {text|name} object.
func textOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if obj, isMap := v.(map[string]any); isMap {
			if s := field(obj, "text", "name", "value", "formatted"); s != "" {
				return s
			}
			continue
		}
		if s := joinList(v); s != "" {
			return s
		}
	}
	return ""
}

// dateOf normalizes epoch-millisecond timestamps to a calendar date.
func dateOf(m map[string]any) string {
	for _, k := range dateKeys {
		switch v := m[k].(type) {
		case json.Number:
			ms, err := v.Int64()
			if err != nil || ms <= 0 {
				continue
			}
			if ms < 1e11 {
				ms *= 1000
			}
			return time.UnixMilli(ms).UTC().Format("2006-01-02")
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}
