package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

var (
	detailTitleRules = []selRule{
		textAt(".top-card-layout__title"),
		textAt("h1.topcard__title"),
		textAt("h1.jobsearch-JobInfoHeader-title"),
		textAt("h1"),
	}
	detailCompanyRules = []selRule{
		textAt("a.topcard__org-name-link"),
		textAt(".topcard__org-name-link"),
		textAt("[data-testid='inlineHeader-companyName']"),
		textAt(".top-card-layout__second-subline .topcard__flavor"),
	}
	detailLocationRules = []selRule{
		textAt(".topcard__flavor--bullet"),
		textAt("[data-testid='inlineHeader-companyLocation']"),
		textAt("[data-testid='job-location']"),
	}
	detailDateRules = []selRule{
		attrAt("time[datetime]", "datetime"),
		textAt(".posted-time-ago__text"),
		textAt("time"),
	}
	detailSalaryRules = []selRule{
		textAt(".compensation__salary"),
		textAt("#salaryInfoAndJobType"),
		textAt("[class*='salary']"),
	}
	detailTypeRules = []selRule{
		criteriaRule("employment type"),
		textAt("[data-testid='job-type']"),
	}
	descriptionSelectors = []string{
		".show-more-less-html__markup",
		".description__text",
		"#jobDescriptionText",
		"[class*='job-description']",
		"[class*='description']",
	}
)

// criteriaRule reads a LinkedIn job-criteria entry by its header.
func criteriaRule(header string) selRule {
	find := func(s *goquery.Selection) *goquery.Selection {
		return s.Find(".description__job-criteria-item").FilterFunction(func(_ int, item *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(item.Find(".description__job-criteria-subheader").Text()), header)
		})
	}
	return selRule{
		when: func(s *goquery.Selection) bool { return find(s).Length() > 0 },
		extract: func(s *goquery.Selection) string {
			return find(s).First().Find(".description__job-criteria-text").Text()
		},
	}
}

// NeedsDetail reports whether a listing candidate should be completed from its posting page.
func NeedsDetail(c crawler.CandidateRecord, enabled bool) bool {
	return enabled && c.SourceURL != "" && !c.HasDescription()
}

// ExtractDetail reads the fields of a single posting page. Missing fields stay empty.
func (p *Pipeline) ExtractDetail(doc *goquery.Document, tc crawler.TaskContext) crawler.CandidateRecord {
	var rec crawler.CandidateRecord
	if postings := NewStructuredStrategy().Extract(doc, tc); len(postings) > 0 {
		rec = postings[0]
	}
	root := doc.Selection
	fill := func(dst *string, rules []selRule) {
		if *dst == "" {
			*dst = firstOf(root, rules)
		}
	}
	fill(&rec.Title, detailTitleRules)
	fill(&rec.Company, detailCompanyRules)
	fill(&rec.Location, detailLocationRules)
	fill(&rec.DatePosted, detailDateRules)
	fill(&rec.Salary, detailSalaryRules)
	fill(&rec.EmploymentType, detailTypeRules)
	if rec.DescriptionHTML == "" && rec.DescriptionText == "" {
		for _, sel := range descriptionSelectors {
			node := doc.Find(sel).First()
			if node.Length() == 0 {
				continue
			}
			if markup, err := node.Html(); err == nil && strings.TrimSpace(markup) != "" {
				rec.DescriptionHTML = markup
				break
			}
		}
	}
	rec = p.sanitizer.Normalize(rec)
	if rec.Title != "" && p.sanitizer.CheckTitle(rec.Title) != nil {
		rec.Title = ""
	}
	rec.SourceURL = resolveURL(tc.Task.URL, rec.SourceURL)
	return rec
}

// Merge combines a listing seed with detail-page fields; non-empty detail fields win.
// The seed's external id, strategy and provenance are kept.
func Merge(seed, detail crawler.CandidateRecord) crawler.CandidateRecord {
	out := seed
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&out.Title, detail.Title)
	pick(&out.Company, detail.Company)
	pick(&out.Location, detail.Location)
	pick(&out.DatePosted, detail.DatePosted)
	pick(&out.Salary, detail.Salary)
	pick(&out.EmploymentType, detail.EmploymentType)
	pick(&out.DescriptionText, detail.DescriptionText)
	pick(&out.DescriptionHTML, detail.DescriptionHTML)
	if out.SourceURL == "" {
		out.SourceURL = detail.SourceURL
	}
	return out
}

// Valid applies the minimal emission check to a finished record.
func (p *Pipeline) Valid(c crawler.CandidateRecord) error {
	return p.sanitizer.CheckTitle(c.Title)
}
