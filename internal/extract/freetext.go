package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const defaultFreeTextMatches = 10

// freeTextPatterns must expose title, company and location groups.
var freeTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?P<title>[^•·|\n]{3,120}?)\s+at\s+(?P<company>[^•·|\n]{2,80}?)\s*[•·|]\s*(?P<location>[^•·|\n]{2,80})$`),
	regexp.MustCompile(`^(?P<title>[^\n]{3,120}?)\s+[-–—]\s+(?P<company>[^\n]{2,80}?)\s+[-–—]\s+(?P<location>[^\n]{2,80})$`),
}

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "li": {}, "ul": {}, "ol": {}, "br": {}, "tr": {}, "td": {}, "section": {},
	"article": {}, "header": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"table": {}, "main": {}, "nav": {},
}

// FreeTextStrategy matches "<title> at <company> • <location>" style lines. Precision is best-effort.
type FreeTextStrategy struct {
	maxMatches int
}

// NewFreeTextStrategy caps the number of matches per document.
func NewFreeTextStrategy(maxMatches int) *FreeTextStrategy {
	if maxMatches < 0 {
		maxMatches = defaultFreeTextMatches
	}
	return &FreeTextStrategy{maxMatches: maxMatches}
}

// Name implements Strategy.
func (*FreeTextStrategy) Name() string { return StrategyFreeText }

// Extract implements Strategy.
func (f *FreeTextStrategy) Extract(doc *goquery.Document, _ crawler.TaskContext) []crawler.CandidateRecord {
	if f.maxMatches == 0 {
		return nil
	}
	var out []crawler.CandidateRecord
	for _, line := range visibleLines(doc.Selection) {
		for _, p := range freeTextPatterns {
			m := p.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			out = append(out, crawler.CandidateRecord{
				Title:    m[p.SubexpIndex("title")],
				Company:  m[p.SubexpIndex("company")],
				Location: m[p.SubexpIndex("location")],
			})
			break
		}
		if len(out) >= f.maxMatches {
			break
		}
	}
	return out
}

// visibleLines renders the text of sel with one line per block element.
func visibleLines(sel *goquery.Selection) []string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		_, block := blockElements[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = CollapseWhitespace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
