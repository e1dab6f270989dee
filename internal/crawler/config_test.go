package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfig {
	cfg := DefaultRunConfig()
	cfg.Keyword = "nurse"
	return cfg
}

func TestDefaultRunConfigIsValidWithKeyword(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
	require.ErrorIs(t, DefaultRunConfig().Validate(), ErrInvalidConfiguration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*RunConfig){
		"zero quota":            func(c *RunConfig) { c.Quota = 0 },
		"quota below unlimited": func(c *RunConfig) { c.Quota = -2 },
		"zero page ceiling":     func(c *RunConfig) { c.PageCeiling = 0 },
		"negative retries":      func(c *RunConfig) { c.MaxRetries = -1 },
		"no workers":            func(c *RunConfig) { c.Concurrency = 0 },
		"too many workers":      func(c *RunConfig) { c.Concurrency = 11 },
		"negative delay":        func(c *RunConfig) { c.RequestDelay = -time.Second },
		"zero timeout":          func(c *RunConfig) { c.RequestTimeout = 0 },
		"negative rpm":          func(c *RunConfig) { c.RequestsPerMinute = -1 },
		"negative backoff":      func(c *RunConfig) { c.BackoffScale = -1 },
		"unknown date filter":   func(c *RunConfig) { c.DateFilter = "fortnight" },
		"relative base url":     func(c *RunConfig) { c.Search.BaseURL = "/search" },
		"no offset param":       func(c *RunConfig) { c.Search.OffsetParam = "" },
		"zero page size":        func(c *RunConfig) { c.Search.PageSize = 0 },
		"empty pool":            func(c *RunConfig) { c.Identity.PoolSize = 0 },
		"zero max uses":         func(c *RunConfig) { c.Identity.MaxUses = 0 },
		"zero error score":      func(c *RunConfig) { c.Identity.MaxErrorScore = 0 },
		"negative replenish":    func(c *RunConfig) { c.Identity.ReplenishLimit = -1 },
		"bad proxy":             func(c *RunConfig) { c.Identity.Proxies = []string{"http://[::1"} },
		"hostless seed":         func(c *RunConfig) { c.SeedURLs = []string{"/jobs?start=0"} },
		"zero title length":     func(c *RunConfig) { c.Extraction.MinTitleLength = 0 },
		"inverted card bounds":  func(c *RunConfig) { c.Extraction.MaxCardText = c.Extraction.MinCardText },
		"zero embedded depth":   func(c *RunConfig) { c.Extraction.MaxEmbeddedDepth = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
		})
	}
}

func TestValidateAcceptsSeedsWithoutKeyword(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunConfig()
	cfg.SeedURLs = []string{"https://jobs.test/search?start=0"}
	cfg.Quota = Unlimited
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Unbounded())
}

func TestParseDateFilter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    DateFilter
		seconds int
	}{
		{"", DateAnytime, 0},
		{"Anytime", DateAnytime, 0},
		{"24h", DatePastDay, 86400},
		{" day ", DatePastDay, 86400},
		{"week", DatePastWeek, 604800},
		{"30d", DatePastMonth, 2592000},
	}
	for _, tc := range cases {
		got, err := ParseDateFilter(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.seconds, got.Seconds(), tc.in)
	}

	_, err := ParseDateFilter("yesterday")
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNormalizeList(t *testing.T) {
	t.Parallel()

	got := NormalizeList([]string{" a ", "", "b", "a", "  "})
	assert.Equal(t, []string{"a", "b"}, got)
	assert.NotNil(t, NormalizeList(nil))
}
