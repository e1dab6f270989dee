package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://WWW.LinkedIn.com/jobs", "www.linkedin.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if pagesTotal == nil || recordsTotal == nil || retriesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCrawlCollectors(t *testing.T) {
	Init()

	before := testutil.ToFloat64(pagesTotal.WithLabelValues("LIST", "ok"))
	ObserveFetch("https://jobs.test/search", "LIST", "ok", 512, 20*time.Millisecond)
	if got := testutil.ToFloat64(pagesTotal.WithLabelValues("LIST", "ok")); got != before+1 {
		t.Errorf("pages counter = %f; want %f", got, before+1)
	}
	if got := testutil.ToFloat64(bytesTotal.WithLabelValues("jobs.test")); got < 512 {
		t.Errorf("bytes counter = %f; want >= 512", got)
	}

	dupBefore := testutil.ToFloat64(recordsTotal.WithLabelValues("duplicate"))
	ObserveRecord("duplicate")
	if got := testutil.ToFloat64(recordsTotal.WithLabelValues("duplicate")); got != dupBefore+1 {
		t.Errorf("records counter = %f; want %f", got, dupBefore+1)
	}

	noneBefore := testutil.ToFloat64(strategyTotal.WithLabelValues("none"))
	ObserveStrategy("")
	if got := testutil.ToFloat64(strategyTotal.WithLabelValues("none")); got != noneBefore+1 {
		t.Errorf("strategy counter = %f; want %f", got, noneBefore+1)
	}

	retiredBefore := testutil.ToFloat64(identitiesRetiredTotal)
	ObserveIdentityRetired()
	if got := testutil.ToFloat64(identitiesRetiredTotal); got != retiredBefore+1 {
		t.Errorf("retired counter = %f; want %f", got, retiredBefore+1)
	}

	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != 0 {
		t.Errorf("active workers = %f; want 0", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.linkedin.com/jobs", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
