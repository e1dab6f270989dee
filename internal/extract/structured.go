package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const maxStructuredDepth = 8

// StructuredStrategy reads schema.org JobPosting objects from JSON-LD blocks.
type StructuredStrategy struct{}

// NewStructuredStrategy returns the JSON-LD strategy.
func NewStructuredStrategy() *StructuredStrategy {
	return &StructuredStrategy{}
}

// Name implements Strategy.
func (*StructuredStrategy) Name() string { return StrategyStructured }

// Extract implements Strategy.
func (*StructuredStrategy) Extract(doc *goquery.Document, _ crawler.TaskContext) []crawler.CandidateRecord {
	var out []crawler.CandidateRecord
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		v, ok := decodeJSON(s.Text())
		if !ok {
			return
		}
		collectPostings(v, 0, &out)
	})
	return out
}

func collectPostings(v any, depth int, out *[]crawler.CandidateRecord) {
	if depth > maxStructuredDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			collectPostings(item, depth+1, out)
		}
	case map[string]any:
		if isJobPosting(t) {
			if rec, ok := postingFromJSONLD(t); ok {
				*out = append(*out, rec)
			}
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item", "mainEntity"} {
			if child, ok := t[key]; ok {
				collectPostings(child, depth+1, out)
			}
		}
	}
}

func isJobPosting(m map[string]any) bool {
	switch t := m["@type"].(type) {
	case string:
		return strings.EqualFold(t, "JobPosting")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func postingFromJSONLD(m map[string]any) (crawler.CandidateRecord, bool) {
	title := field(m, "title", "name")
	if title == "" {
		return crawler.CandidateRecord{}, false
	}
	rec := crawler.CandidateRecord{
		ExternalID:      identifierOf(m["identifier"]),
		Title:           title,
		Company:         nameOf(m["hiringOrganization"]),
		Location:        locationOf(m["jobLocation"]),
		DatePosted:      field(m, "datePosted"),
		Salary:          salaryOf(m["baseSalary"]),
		EmploymentType:  joinList(m["employmentType"]),
		DescriptionHTML: field(m, "description"),
		SourceURL:       field(m, "url", "sameAs"),
	}
	if rec.Location == "" && strings.EqualFold(field(m, "jobLocationType"), "TELECOMMUTE") {
		rec.Location = "Remote"
	}
	return rec, true
}

func identifierOf(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return field(t, "value", "@id", "name")
	case []any:
		for _, item := range t {
			if id := identifierOf(item); id != "" {
				return id
			}
		}
		return ""
	default:
		return str(v)
	}
}

func locationOf(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if loc := locationOf(item); loc != "" {
				parts = append(parts, loc)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if addr, ok := t["address"]; ok {
			if loc := addressOf(addr); loc != "" {
				return loc
			}
		}
		return field(t, "name")
	default:
		return str(v)
	}
}

func addressOf(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return str(v)
	}
	parts := make([]string, 0, 3)
	for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
		if s := nameOf(m[key]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func salaryOf(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return str(v)
	}
	currency := field(m, "currency")
	amount, unit := "", ""
	switch val := m["value"].(type) {
	case map[string]any:
		unit = field(val, "unitText")
		low, high := field(val, "minValue"), field(val, "maxValue")
		switch {
		case low != "" && high != "":
			amount = low + "-" + high
		case field(val, "value") != "":
			amount = field(val, "value")
		default:
			amount = low + high
		}
	default:
		amount = str(val)
	}
	if amount == "" {
		return ""
	}
	if unit == "" {
		unit = field(m, "unitText")
	}
	out := amount
	if currency != "" {
		out = currency + " " + out
	}
	if unit != "" {
		out += "/" + strings.ToUpper(unit)
	}
	return out
}
