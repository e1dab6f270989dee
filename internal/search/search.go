// Package search turns a keyword query into the seed LIST tasks of a run.
package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Query is the user-facing search.
type Query struct {
	Keyword    string
	Location   string
	DateFilter crawler.DateFilter
}

// BuildURL renders the search-results URL for query at offset.
func BuildURL(s crawler.SearchSettings, q Query, offset int) (string, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" {
		return "", crawler.ConfigError("search base url %q must be absolute", s.BaseURL)
	}
	values := u.Query()
	set := func(param, value string) {
		if param != "" && value != "" {
			values.Set(param, value)
		}
	}
	set(s.KeywordParam, strings.TrimSpace(q.Keyword))
	set(s.LocationParam, strings.TrimSpace(q.Location))
	if secs := q.DateFilter.Seconds(); secs > 0 {
		set(s.DateParam, s.DatePrefix+strconv.Itoa(secs))
	}
	set(s.OffsetParam, strconv.Itoa(offset))
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Seeds returns the primary search task followed by any extra seed URLs, de-duplicated.
func Seeds(cfg crawler.RunConfig) ([]crawler.FetchTask, error) {
	var tasks []crawler.FetchTask
	seen := make(map[string]struct{})
	add := func(target string, offset int) {
		if _, ok := seen[target]; ok {
			return
		}
		seen[target] = struct{}{}
		tasks = append(tasks, crawler.FetchTask{URL: target, Kind: crawler.TaskKindList, PageOffset: offset})
	}

	if strings.TrimSpace(cfg.Keyword) != "" {
		primary, err := BuildURL(cfg.Search, Query{
			Keyword:    cfg.Keyword,
			Location:   cfg.Location,
			DateFilter: cfg.DateFilter,
		}, 0)
		if err != nil {
			return nil, fmt.Errorf("build search url: %w", err)
		}
		add(primary, 0)
	}
	for _, raw := range cfg.SeedURLs {
		add(raw, OffsetOf(raw, cfg.Search.OffsetParam))
	}
	if len(tasks) == 0 {
		return nil, crawler.ConfigError("no seed tasks: set a keyword or seed urls")
	}
	return tasks, nil
}

// OffsetOf reads the pagination offset carried by a URL, zero when absent.
func OffsetOf(raw, param string) int {
	u, err := url.Parse(raw)
	if err != nil || param == "" {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get(param))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
