package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/hash/sha256"
)

var (
	urnIDPattern  = regexp.MustCompile(`(?i)urn:li:(?:jobPosting|fs_normalized_jobPosting|fsd_jobPosting):(\d+)`)
	urlIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]currentJobId=(\d+)`),
		regexp.MustCompile(`/jobs/view/(?:[^/?#]*-)?(\d{5,})`),
		regexp.MustCompile(`[?&]jk=([0-9a-fA-F]{8,})`),
		regexp.MustCompile(`[?&](?:jobId|job_id|jid)=([\w-]{4,})`),
		regexp.MustCompile(`/jobs?/(?:[^/?#]*[-_])?(\d{6,})(?:[/?#]|$)`),
	}
)

// idResolver derives a stable external id for a candidate.
type idResolver struct {
	hasher crawler.Hasher
}

// resolve prefers an explicit id, then an id embedded in the source URL, then a digest.
func (r idResolver) resolve(c crawler.CandidateRecord) (string, error) {
	if id := NormalizeID(c.ExternalID); id != "" {
		return id, nil
	}
	if id := IDFromURL(c.SourceURL); id != "" {
		return id, nil
	}
	var basis string
	if canon := CanonicalURL(c.SourceURL); canon != "" {
		basis = canon
	} else {
		basis = strings.ToLower(strings.Join([]string{c.Title, c.Company, c.Location}, "|"))
	}
	sum, err := r.hasher.Hash([]byte(basis))
	if err != nil {
		return "", fmt.Errorf("hash external id: %w", err)
	}
	return sha256.Prefix + sum, nil
}

// NormalizeID trims an explicit id and unwraps LinkedIn URNs.
func NormalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := urnIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// IDFromURL extracts a posting id from well-known job URL shapes.
func IDFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range urlIDPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return ""
}

// CanonicalURL lowercases the host and drops query, fragment and trailing slash.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == "" {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
