// Package collyfetcher implements crawler.Fetcher using gocolly, one collector per identity request.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const maxRedirects = 10

var errRedirectLoop = errors.New("too many redirects")

// Config controls collector behavior.
type Config struct {
	Timeout     time.Duration
	MaxBodySize int
	Logger      *zap.Logger
}

// Fetcher implements crawler.Fetcher using the Colly collector.
// Each identity presents its own headers and cookie jar; transports are shared per proxy endpoint.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		logger:     logger,
		transports: make(map[string]*http.Transport),
	}
}

// Fetch executes a single HTTP GET. Error statuses are returned as pages so callers can classify them.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Page, error) {
	var (
		result   crawler.Page
		fetchErr error
	)
	start := time.Now()
	collector, err := f.buildCollector(request, start, &result, &fetchErr)
	if err != nil {
		return crawler.Page{}, err
	}
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return crawler.Page{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.Page,
	fetchErr *error,
) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}
	if f.cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(f.cfg.MaxBodySize))
	}
	collector := colly.NewCollector(opts...)

	proxy := ""
	if request.Identity != nil {
		proxy = request.Identity.ProxyURL
		collector.UserAgent = request.Identity.Profile.UserAgent
	}
	transport, err := f.transportFor(proxy)
	if err != nil {
		return nil, err
	}
	collector.WithTransport(transport)
	if request.Identity != nil && request.Identity.CookieJar != nil {
		collector.SetCookieJar(request.Identity.CookieJar)
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errRedirectLoop
		}
		return nil
	})

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.Page{
			URL:        request.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return toNetworkError(target, err)
		}
		return nil
	}
}

// copyHeaders applies the identity profile first so request headers can override it.
func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Identity != nil {
		for key, values := range request.Identity.Profile.Headers() {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func (f *Fetcher) transportFor(proxy string) (*http.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[proxy]; ok {
		return t, nil
	}
	t := newHTTPTransport()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, crawler.ConfigError("invalid proxy %q: %v", proxy, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	f.transports[proxy] = t
	f.logger.Debug("transport created", zap.Bool("proxied", proxy != ""))
	return t, nil
}

// CloseIdleConnections releases pooled connections of every transport.
func (f *Fetcher) CloseIdleConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transports {
		t.CloseIdleConnections()
	}
}

func toNetworkError(target string, err error) error {
	kind := crawler.NetworkOther
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, errRedirectLoop):
		kind = crawler.NetworkRedirectLoop
	case errors.Is(err, context.DeadlineExceeded):
		kind = crawler.NetworkTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = crawler.NetworkTimeout
	case errors.As(err, &opErr):
		kind = crawler.NetworkConnection
	}
	return &crawler.NetworkError{Kind: kind, URL: target, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
