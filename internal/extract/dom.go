package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const (
	defaultMinCardText = 20
	defaultMaxCardText = 4000
)

// containerSelectors are tried in order; the first that yields accepted cards wins.
var containerSelectors = []string{
	"ul.jobs-search__results-list > li",
	"div.base-card",
	"div.job-search-card",
	"li.jobs-search-results__list-item",
	"div.job_seen_beacon",
	"[data-job-id]",
	"[data-jk]",
	`[data-entity-urn*="jobPosting"]`,
	"article",
	"li",
}

var jobKeywords = []string{
	"job", "hiring", "apply", "applicant", "position", "career", "vacanc", "salary",
	"full-time", "full time", "part-time", "part time", "contract", "temporary",
	"internship", "remote", "hybrid", "on-site", "onsite", "posted", " ago",
}

// DOMStrategy finds listing cards with ordered CSS selectors and content filters.
type DOMStrategy struct {
	minText int
	maxText int
}

// NewDOMStrategy accepts cards whose text length lies in [minText, maxText].
func NewDOMStrategy(minText, maxText int) *DOMStrategy {
	if minText < 0 {
		minText = defaultMinCardText
	}
	if maxText <= minText {
		maxText = defaultMaxCardText
	}
	return &DOMStrategy{minText: minText, maxText: maxText}
}

// Name implements Strategy.
func (*DOMStrategy) Name() string { return StrategyDOM }

// Extract implements Strategy.
func (d *DOMStrategy) Extract(doc *goquery.Document, tc crawler.TaskContext) []crawler.CandidateRecord {
	keywords := append(append([]string{}, jobKeywords...), queryTerms(tc.Provenance.Keyword)...)
	for _, sel := range containerSelectors {
		var out []crawler.CandidateRecord
		doc.Find(sel).Each(func(_ int, card *goquery.Selection) {
			if !d.accept(card, keywords) {
				return
			}
			rec := cardRecord(card)
			if rec.Title != "" {
				out = append(out, rec)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// accept requires a job keyword, an outbound link and bounded text.
func (d *DOMStrategy) accept(card *goquery.Selection, keywords []string) bool {
	links := card.Find("a[href]")
	if links.Length() == 0 && !card.Is("a[href]") {
		return false
	}
	text := CollapseWhitespace(card.Text())
	n := utf8.RuneCountInString(text)
	if n < d.minText || n > d.maxText {
		return false
	}
	var hay strings.Builder
	hay.WriteString(strings.ToLower(text))
	hay.WriteString(" ")
	hay.WriteString(strings.ToLower(card.AttrOr("class", "")))
	links.Each(func(_ int, a *goquery.Selection) {
		hay.WriteString(" ")
		hay.WriteString(strings.ToLower(a.AttrOr("href", "")))
	})
	h := hay.String()
	for _, kw := range keywords {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}

func queryTerms(keyword string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(keyword)) {
		if utf8.RuneCountInString(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

type selRule = fieldRule[*goquery.Selection]

func textAt(sel string) selRule {
	return selRule{
		when:    func(s *goquery.Selection) bool { return s.Find(sel).Length() > 0 },
		extract: func(s *goquery.Selection) string { return s.Find(sel).First().Text() },
	}
}

func attrAt(sel, attr string) selRule {
	return selRule{
		when:    func(s *goquery.Selection) bool { return s.Find(sel).Length() > 0 },
		extract: func(s *goquery.Selection) string { return s.Find(sel).First().AttrOr(attr, "") },
	}
}

func selfAttr(attr string) selRule {
	return selRule{extract: func(s *goquery.Selection) string { return s.AttrOr(attr, "") }}
}

var (
	cardTitleRules = []selRule{
		textAt(".base-search-card__title"),
		textAt(".job-search-card__title"),
		textAt("h2.jobTitle"),
		textAt("[data-testid='job-title']"),
		textAt("h3"),
		textAt("h2"),
		textAt("[class*='title']"),
		textAt("a[href*='/jobs/view/']"),
		textAt("a[href]"),
	}
	cardCompanyRules = []selRule{
		textAt(".base-search-card__subtitle"),
		textAt("[data-testid='company-name']"),
		textAt("[class*='company']"),
		textAt("h4"),
	}
	cardLocationRules = []selRule{
		textAt(".job-search-card__location"),
		textAt("[data-testid='text-location']"),
		textAt("[class*='location']"),
	}
	cardDateRules = []selRule{
		attrAt("time[datetime]", "datetime"),
		textAt("time"),
		textAt("[class*='listdate']"),
		textAt("[class*='date']"),
	}
	cardSalaryRules = []selRule{
		textAt(".job-search-card__salary-info"),
		textAt("[class*='salary']"),
	}
	cardURLRules = []selRule{
		attrAt("a.base-card__full-link", "href"),
		attrAt("a[href*='/jobs/view/']", "href"),
		attrAt("a[href*='jk=']", "href"),
		attrAt("a[href]", "href"),
		selfAttr("href"),
	}
	cardIDRules = []selRule{
		selfAttr("data-entity-urn"),
		selfAttr("data-job-id"),
		selfAttr("data-jk"),
		attrAt("[data-entity-urn]", "data-entity-urn"),
		attrAt("[data-job-id]", "data-job-id"),
		attrAt("[data-jk]", "data-jk"),
	}
)

func cardRecord(card *goquery.Selection) crawler.CandidateRecord {
	return crawler.CandidateRecord{
		ExternalID: firstOf(card, cardIDRules),
		Title:      firstOf(card, cardTitleRules),
		Company:    firstOf(card, cardCompanyRules),
		Location:   firstOf(card, cardLocationRules),
		DatePosted: firstOf(card, cardDateRules),
		Salary:     firstOf(card, cardSalaryRules),
		SourceURL:  firstOf(card, cardURLRules),
	}
}
