package crawler

import (
	"net/url"
	"strings"
	"time"
)

// Unlimited is the quota sentinel that disables the result cap.
const Unlimited = -1

// DateFilter restricts results by posting age.
type DateFilter string

// Supported date filters.
const (
	DateAnytime   DateFilter = "anytime"
	DatePastDay   DateFilter = "24h"
	DatePastWeek  DateFilter = "7d"
	DatePastMonth DateFilter = "30d"
)

// ParseDateFilter normalizes user input into a DateFilter.
func ParseDateFilter(raw string) (DateFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "any", "anytime", "all":
		return DateAnytime, nil
	case "24h", "1d", "day", "past-24h":
		return DatePastDay, nil
	case "7d", "week", "past-week":
		return DatePastWeek, nil
	case "30d", "month", "past-month":
		return DatePastMonth, nil
	default:
		return "", ConfigError("unknown date filter %q (want anytime, 24h, 7d or 30d)", raw)
	}
}

// Seconds returns the look-back window, zero for anytime.
func (d DateFilter) Seconds() int {
	switch d {
	case DatePastDay:
		return 86400
	case DatePastWeek:
		return 604800
	case DatePastMonth:
		return 2592000
	default:
		return 0
	}
}

// SearchSettings describes how search-result URLs are built and paginated.
type SearchSettings struct {
	BaseURL       string
	KeywordParam  string
	LocationParam string
	DateParam     string
	// DatePrefix is prepended to the look-back seconds, e.g. "r" gives r86400.
	DatePrefix  string
	OffsetParam string
	PageSize    int
	MaxOffset   int
}

// IdentitySettings sizes and bounds the identity pool.
type IdentitySettings struct {
	PoolSize       int
	MaxUses        int
	MaxErrorScore  float64
	ReplenishLimit int
	Proxies        []string
}

// ExtractionSettings bounds the extraction heuristics.
type ExtractionSettings struct {
	MinTitleLength     int
	MinCardText        int
	MaxCardText        int
	MaxFreeTextMatches int
	MaxEmbeddedDepth   int
}

// DetectorSettings extends the built-in challenge markers.
type DetectorSettings struct {
	Markers   []string
	GatePaths []string
	Selectors []string
}

// RunConfig captures every knob that influences a crawl run. It is treated as immutable once a run starts.
type RunConfig struct {
	Keyword            string
	Location           string
	DateFilter         DateFilter
	Quota              int
	PageCeiling        int
	MaxRetries         int
	Concurrency        int
	RequestDelay       time.Duration
	RequestDelayJitter time.Duration
	RequestTimeout     time.Duration
	RequestsPerMinute  int
	FetchDetails       bool
	// BackoffScale multiplies every retry delay; 1 keeps the policy table as-is.
	BackoffScale float64
	SeedURLs     []string
	Search       SearchSettings
	Identity     IdentitySettings
	Extraction   ExtractionSettings
	Detector     DetectorSettings
}

// DefaultRunConfig returns the settings used when nothing is overridden.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		DateFilter:         DateAnytime,
		Quota:              100,
		PageCeiling:        10,
		MaxRetries:         3,
		Concurrency:        3,
		RequestDelay:       2 * time.Second,
		RequestDelayJitter: 3 * time.Second,
		RequestTimeout:     20 * time.Second,
		RequestsPerMinute:  20,
		FetchDetails:       true,
		BackoffScale:       1,
		Search: SearchSettings{
			BaseURL:       "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search",
			KeywordParam:  "keywords",
			LocationParam: "location",
			DateParam:     "f_TPR",
			DatePrefix:    "r",
			OffsetParam:   "start",
			PageSize:      25,
			MaxOffset:     1000,
		},
		Identity: IdentitySettings{
			PoolSize:       4,
			MaxUses:        25,
			MaxErrorScore:  3,
			ReplenishLimit: 16,
		},
		Extraction: ExtractionSettings{
			MinTitleLength:     3,
			MinCardText:        20,
			MaxCardText:        4000,
			MaxFreeTextMatches: 10,
			MaxEmbeddedDepth:   12,
		},
	}
}

// Unbounded reports whether the quota is disabled.
func (c RunConfig) Unbounded() bool {
	return c.Quota == Unlimited
}

// Validate checks for obviously bad configuration combinations.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.Keyword) == "" && len(c.SeedURLs) == 0 {
		return ConfigError("keyword is required")
	}
	if c.Quota == 0 || c.Quota < Unlimited {
		return ConfigError("quota must be a positive integer or %d for unlimited", Unlimited)
	}
	if c.PageCeiling <= 0 {
		return ConfigError("page ceiling must be > 0")
	}
	if c.MaxRetries < 0 {
		return ConfigError("retry ceiling must be >= 0")
	}
	if c.Concurrency <= 0 || c.Concurrency > 10 {
		return ConfigError("concurrency must be between 1 and 10")
	}
	if c.RequestDelay < 0 || c.RequestDelayJitter < 0 {
		return ConfigError("request delay must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return ConfigError("request timeout must be > 0")
	}
	if c.RequestsPerMinute < 0 {
		return ConfigError("requests per minute must be >= 0")
	}
	if c.BackoffScale < 0 {
		return ConfigError("backoff scale must be >= 0")
	}
	if _, err := ParseDateFilter(string(c.DateFilter)); err != nil {
		return err
	}
	if err := c.Search.validate(); err != nil {
		return err
	}
	if c.Identity.PoolSize <= 0 {
		return ConfigError("identity pool size must be > 0")
	}
	if c.Identity.MaxUses <= 0 {
		return ConfigError("identity max uses must be > 0")
	}
	if c.Identity.MaxErrorScore <= 0 {
		return ConfigError("identity max error score must be > 0")
	}
	if c.Identity.ReplenishLimit < 0 {
		return ConfigError("identity replenish limit must be >= 0")
	}
	for _, p := range c.Identity.Proxies {
		if _, err := url.Parse(p); err != nil {
			return ConfigError("invalid proxy %q: %v", p, err)
		}
	}
	for _, s := range c.SeedURLs {
		if u, err := url.Parse(s); err != nil || u.Host == "" {
			return ConfigError("invalid seed url %q", s)
		}
	}
	ex := c.Extraction
	if ex.MinTitleLength < 1 {
		return ConfigError("min title length must be >= 1")
	}
	if ex.MinCardText < 0 || ex.MaxCardText <= ex.MinCardText {
		return ConfigError("card text bounds must satisfy 0 <= min < max")
	}
	if ex.MaxFreeTextMatches < 0 || ex.MaxEmbeddedDepth <= 0 {
		return ConfigError("free-text matches must be >= 0 and embedded depth > 0")
	}
	return nil
}

func (s SearchSettings) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ConfigError("search base url %q must be absolute", s.BaseURL)
	}
	if s.OffsetParam == "" {
		return ConfigError("search offset param must be set")
	}
	if s.PageSize <= 0 {
		return ConfigError("search page size must be > 0")
	}
	if s.MaxOffset < 0 {
		return ConfigError("search max offset must be >= 0")
	}
	return nil
}

// NormalizeList trims, drops empties and de-duplicates while preserving order.
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
