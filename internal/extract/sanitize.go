package extract

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Field length caps applied by the sanitizer.
const (
	maxTitleRunes       = 300
	maxShortFieldRunes  = 200
	maxDescriptionRunes = 20000
)

var (
	errTitleTooShort    = errors.New("title too short")
	errTitleBoilerplate = errors.New("title is boilerplate")
	errTitleRelative    = errors.New("title is a relative time")
)

var boilerplateTitles = map[string]struct{}{
	"search":               {},
	"search jobs":          {},
	"next":                 {},
	"next page":            {},
	"previous":             {},
	"previous page":        {},
	"sign in":              {},
	"sign up":              {},
	"join now":             {},
	"show more":            {},
	"see more jobs":        {},
	"load more":            {},
	"jobs":                 {},
	"home":                 {},
	"menu":                 {},
	"apply":                {},
	"apply now":            {},
	"easy apply":           {},
	"save":                 {},
	"skip to main content": {},
	"cookie policy":        {},
	"privacy policy":       {},
	"user agreement":       {},
}

var relativeTimePattern = regexp.MustCompile(`(?i)^(?:posted\s+|reposted\s+)?(?:just now|today|yesterday|new|(?:\d+\+?|a|an|one)\s*(?:s|sec|second|m|min|minute|h|hr|hour|d|day|w|wk|week|mo|month|y|yr|year)s?\s+ago)$`)

// Sanitizer normalizes candidate fields and rejects low-quality titles.
type Sanitizer struct {
	minTitle int
}

// NewSanitizer returns a sanitizer requiring titles of at least minTitle runes.
func NewSanitizer(minTitle int) *Sanitizer {
	if minTitle < 1 {
		minTitle = 1
	}
	return &Sanitizer{minTitle: minTitle}
}

// Clean returns the normalized record or the reason it was rejected.
func (s *Sanitizer) Clean(c crawler.CandidateRecord) (crawler.CandidateRecord, error) {
	c = s.Normalize(c)
	if err := s.CheckTitle(c.Title); err != nil {
		return c, err
	}
	return c, nil
}

// Normalize cleans every field without judging the title.
func (s *Sanitizer) Normalize(c crawler.CandidateRecord) crawler.CandidateRecord {
	c.Title = truncate(CollapseWhitespace(StripMarkup(c.Title)), maxTitleRunes)
	c.Company = truncate(CollapseWhitespace(StripMarkup(c.Company)), maxShortFieldRunes)
	c.Location = truncate(CollapseWhitespace(StripMarkup(c.Location)), maxShortFieldRunes)
	c.DatePosted = truncate(CollapseWhitespace(c.DatePosted), maxShortFieldRunes)
	c.Salary = truncate(CollapseWhitespace(StripMarkup(c.Salary)), maxShortFieldRunes)
	c.EmploymentType = truncate(CollapseWhitespace(c.EmploymentType), maxShortFieldRunes)
	c.SourceURL = strings.TrimSpace(c.SourceURL)
	c.ExternalID = strings.TrimSpace(c.ExternalID)

	if strings.TrimSpace(c.DescriptionHTML) != "" {
		c.DescriptionHTML = strings.TrimSpace(c.DescriptionHTML)
		if strings.TrimSpace(c.DescriptionText) == "" {
			c.DescriptionText = StripMarkup(c.DescriptionHTML)
		}
	}
	c.DescriptionText = truncate(CollapseWhitespace(StripMarkup(c.DescriptionText)), maxDescriptionRunes)
	return c
}

// CheckTitle applies the title quality rules.
func (s *Sanitizer) CheckTitle(title string) error {
	if utf8.RuneCountInString(title) < s.minTitle {
		return errTitleTooShort
	}
	lower := strings.ToLower(strings.Trim(title, " .:|-•"))
	if _, ok := boilerplateTitles[lower]; ok {
		return errTitleBoilerplate
	}
	if relativeTimePattern.MatchString(lower) {
		return errTitleRelative
	}
	return nil
}

// CollapseWhitespace trims and replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripMarkup returns the visible text of an HTML fragment. Plain text is returned unchanged.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + s + "</div>"))
	if err != nil {
		return s
	}
	doc.Find("script,style,noscript").Remove()
	doc.Find("br,p,li,div,h1,h2,h3,h4,h5,h6,tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return CollapseWhitespace(doc.Text())
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
