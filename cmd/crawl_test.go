package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/config"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func searchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("start") != "0" {
			fmt.Fprint(w, `<html><body><p>No more results.</p></body></html>`)
			return
		}
		var b strings.Builder
		b.WriteString(`<html><body><ul class="jobs-search__results-list">`)
		for _, id := range []int{501, 502, 503} {
			fmt.Fprintf(&b, `<li><div class="base-card" data-entity-urn="urn:li:jobPosting:%d">`+
				`<a class="base-card__full-link" href="/jobs/view/welder-%d">Welder %d</a>`+
				`<h3 class="base-search-card__title">Pipe Welder %d</h3>`+
				`<h4 class="base-search-card__subtitle">Gulf Fabrication</h4>`+
				`<span class="job-search-card__location">Houston, TX</span></div></li>`, id, id, id, id)
		}
		b.WriteString(`</ul></body></html>`)
		fmt.Fprint(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCrawlConfig(t *testing.T, baseURL, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	body := fmt.Sprintf(`
run:
  keyword: welder
  location: Houston
  request_delay: 0s
  request_delay_jitter: 0s
  request_timeout: 5s
  requests_per_minute: 0
  backoff_scale: 0
  fetch_details: false
search:
  base_url: %s/search
sink:
  jsonl:
    path: %s
`, baseURL, output)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(config.NewViper())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandWritesRecords(t *testing.T) {
	srv := searchServer(t)
	output := filepath.Join(t.TempDir(), "out", "jobs.jsonl")
	cfgPath := writeCrawlConfig(t, srv.URL, output)

	stdout, err := executeCLI(t, "crawl", "--config", cfgPath, "--quota", "2", "--log-level", "error")
	require.NoError(t, err)

	var summary crawler.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, 2, summary.QuotaRequested)
	assert.Equal(t, 2, summary.Emitted)
	assert.True(t, summary.QuotaReached)
	assert.Equal(t, crawler.StopQuotaReached, summary.StopReason)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	var lines []crawler.EmittedRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec crawler.EmittedRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	for _, rec := range lines {
		assert.Equal(t, summary.RunID, rec.RunID)
		assert.Equal(t, "Gulf Fabrication", rec.Company)
		assert.Equal(t, "welder", rec.Provenance.Keyword)
		assert.Contains(t, []string{"501", "502", "503"}, rec.ExternalID)
	}
}

func TestCrawlCommandRejectsInvalidFlags(t *testing.T) {
	srv := searchServer(t)
	cfgPath := writeCrawlConfig(t, srv.URL, filepath.Join(t.TempDir(), "jobs.jsonl"))

	_, err := executeCLI(t, "crawl", "--config", cfgPath, "--quota", "0")
	require.ErrorIs(t, err, crawler.ErrInvalidConfiguration)

	_, err = executeCLI(t, "crawl", "--config", cfgPath, "--date-filter", "fortnight")
	require.ErrorIs(t, err, crawler.ErrInvalidConfiguration)
}

func TestBindFlagsRejectsUnknownFlag(t *testing.T) {
	root := newRootCmd(config.NewViper())
	err := bindFlags(config.NewViper(), root.PersistentFlags(), map[string]string{"nope": "run.nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--nope")
}
