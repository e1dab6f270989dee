// Package detector recognizes anti-automation pages served instead of content.
package detector

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Verdict classifies a fetched page.
type Verdict string

// Possible verdicts.
const (
	VerdictOK             Verdict = "OK"
	VerdictChallenge      Verdict = "CHALLENGE"
	VerdictRedirectToGate Verdict = "REDIRECT_TO_GATE"
)

// statusBlocked is LinkedIn's "request denied" status.
const statusBlocked = 999

// DefaultMarkers are body phrases that only appear on verification or block pages.
var DefaultMarkers = []string{
	"unusual traffic",
	"captcha",
	"verify you are human",
	"verify you're human",
	"are you a robot",
	"security verification",
	"security check",
	"checking your browser",
	"access denied",
	"cf-challenge",
	"challenge-platform",
	"enable javascript and cookies to continue",
	"before you continue to",
	"let's do a quick security check",
	"we've detected automated",
}

// DefaultGatePaths are URL fragments of login, consent and checkpoint gates.
var DefaultGatePaths = []string{
	"/authwall",
	"/checkpoint",
	"/uas/login",
	"/login",
	"/signup",
	"/captcha",
	"/sorry/",
	"consent.",
}

// DefaultSelectors match challenge widgets.
var DefaultSelectors = []string{
	"#captcha-form",
	"#challenge-form",
	"div.g-recaptcha",
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`form[action*="checkpoint/challenge"]`,
}

// Result is the detector outcome with the matched signal.
type Result struct {
	Verdict Verdict
	Reason  string
}

// OK reports whether extraction may run on the page.
func (r Result) OK() bool {
	return r.Verdict == VerdictOK
}

// Err returns nil for OK pages and a wrapped crawler.ErrChallengeDetected otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%s (%s): %w", r.Verdict, r.Reason, crawler.ErrChallengeDetected)
}

// Detector is a stateless classifier safe for concurrent use.
type Detector struct {
	markers   [][]byte
	gatePaths []string
	selectors []string
}

// New builds a detector from the defaults plus extra configured signals.
func New(settings crawler.DetectorSettings) *Detector {
	d := &Detector{}
	for _, m := range append(append([]string{}, DefaultMarkers...), settings.Markers...) {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			d.markers = append(d.markers, []byte(m))
		}
	}
	for _, g := range append(append([]string{}, DefaultGatePaths...), settings.GatePaths...) {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			d.gatePaths = append(d.gatePaths, g)
		}
	}
	for _, s := range append(append([]string{}, DefaultSelectors...), settings.Selectors...) {
		if s = strings.TrimSpace(s); s != "" {
			d.selectors = append(d.selectors, s)
		}
	}
	return d
}

// Detect classifies page. A single matching signal is enough for a non-OK verdict.
func (d *Detector) Detect(page crawler.Page) Result {
	if gate := d.matchGate(page.FinalURL); gate != "" {
		return Result{Verdict: VerdictRedirectToGate, Reason: "gate " + gate}
	}
	if page.StatusCode == statusBlocked {
		return Result{Verdict: VerdictChallenge, Reason: "status 999"}
	}
	if marker := d.matchMarker(page.Body); marker != "" {
		return Result{Verdict: VerdictChallenge, Reason: "marker " + marker}
	}
	if sel := d.matchSelector(page.Body); sel != "" {
		return Result{Verdict: VerdictChallenge, Reason: "selector " + sel}
	}
	return Result{Verdict: VerdictOK}
}

func (d *Detector) matchGate(finalURL string) string {
	if finalURL == "" {
		return ""
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.EscapedPath())
	for _, g := range d.gatePaths {
		if strings.HasPrefix(g, "/") {
			seg := strings.TrimSuffix(g, "/")
			if strings.HasSuffix(path, seg) || strings.Contains(path, seg+"/") {
				return g
			}
			continue
		}
		if strings.Contains(host, g) {
			return g
		}
	}
	return ""
}

func (d *Detector) matchMarker(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	lower := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lower, m) {
			return string(m)
		}
	}
	return ""
}

func (d *Detector) matchSelector(body []byte) string {
	if len(body) == 0 || len(d.selectors) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return sel
		}
	}
	return ""
}
