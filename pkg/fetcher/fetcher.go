package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"

	"github.com/dtnitsch/fpds-ingest/pkg/caching"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
)

// Config controls retrieval and retry behaviour.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig mirrors the production client: five retries after the first
// attempt, waiting 2s, 4s, 8s, 16s and 32s.
func DefaultConfig() Config {
	return Config{
		UserAgent:      "FPDS.me Client/2.0",
		Timeout:        6 * time.Minute,
		Retries:        5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     32 * time.Second,
	}
}

// FetchError is returned once a URL cannot be retrieved.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// permanentError marks a response that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Response is a retrieved feed page.
type Response struct {
	Body []byte
	// URL is the effective request URL after redirects, used as the base
	// for relative links in Body.
	URL *url.URL
	// Attempts is the number of network attempts made; 0 for cache hits.
	Attempts int
}

// AttemptFunc is called before every network attempt.
type AttemptFunc func(ctx context.Context, url string) error

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
	cache  *caching.Cache
	sleep  SleepFunc
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithCache serves pages from c when present and stores fresh pages in it.
func WithCache(c *caching.Cache) Option { return func(f *Fetcher) { f.cache = c } }

// WithSleep replaces the backoff wait, for tests.
func WithSleep(s SleepFunc) Option { return func(f *Fetcher) { f.sleep = s } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

func NewFetcher(cfg Config, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) schedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     f.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         f.cfg.MaxBackoff,
	}
	b.Reset()
	return b
}

// Fetch retrieves rawURL, retrying transient failures. onAttempt, if set,
// runs before each network attempt; an error from it aborts the fetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, onAttempt AttemptFunc) (*Response, error) {
	if f.cache != nil {
		if page, ok := f.cache.Get(rawURL); ok {
			if u, err := url.Parse(page.FinalURL); err == nil {
				metrics.PagesFromCache.Add(1)
				f.logger.Debug("Serving feed page from cache", "url", rawURL)
				return &Response{Body: page.Body, URL: u}, nil
			}
		}
	}

	sched := f.schedule()
	var lastErr error
	for attempt := 1; attempt <= f.cfg.Retries+1; attempt++ {
		if onAttempt != nil {
			if err := onAttempt(ctx, rawURL); err != nil {
				return nil, fmt.Errorf("failed to record fetch attempt: %w", err)
			}
		}

		resp, err := f.get(ctx, rawURL)
		if err == nil {
			resp.Attempts = attempt
			metrics.PagesFetched.Add(1)
			if f.cache != nil {
				if cerr := f.cache.Set(rawURL, resp.URL.String(), resp.Body); cerr != nil {
					f.logger.Warn("Failed to cache feed page", "url", rawURL, "error", cerr)
				}
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: ctx.Err()}
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			metrics.FetchFailures.Add(1)
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: perm.err}
		}
		if attempt > f.cfg.Retries {
			break
		}

		delay := sched.NextBackOff()
		metrics.FetchRetries.Add(1)
		f.logger.Warn("Fetch failed, retrying",
			"url", rawURL, "attempt", attempt, "delay", delay.String(), "error", err)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: err}
		}
	}

	metrics.FetchFailures.Add(1)
	return nil, &FetchError{URL: rawURL, Attempts: f.cfg.Retries + 1, Err: lastErr}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("server returned status %d%s", resp.StatusCode, htmlTitle(body))
	case resp.StatusCode != http.StatusOK:
		return nil, &permanentError{fmt.Errorf("server returned status %d%s", resp.StatusCode, htmlTitle(body))}
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("feed returned an HTML page%s", htmlTitle(body))
	}

	return &Response{Body: body, URL: resp.Request.URL}, nil
}

// looksLikeHTML detects the maintenance and error pages the feed serves with
// a 200 status.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", title)
}
