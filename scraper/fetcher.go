package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/kaspi-offer-tracker/config"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Request describes one outbound call.
type Request struct {
	Action  string
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is the raw outcome of a call. A non-2xx status is not an error
// at this level; callers inspect StatusCode.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// Fetcher wraps a synchronous colly collector with pacing and retries.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *Metrics
}

// NewFetcher builds a fetcher configured from cfg. A nil logger falls back
// to slog.Default().
func NewFetcher(cfg *config.Config, logger *slog.Logger, metrics *Metrics) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
	}
}

// WithTransport swaps the HTTP transport, e.g. for tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch performs a single attempt. It only returns an error when no
// response was received.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c := f.collector.Clone()
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true

	var resp *Response
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			URL:        r.Request.URL.String(),
		}
	})

	hdr := http.Header{}
	for k, v := range req.Headers {
		hdr[k] = append([]string(nil), v...)
	}
	hdr.Set("User-Agent", f.cfg.UserAgent)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
		if hdr.Get("Content-Type") == "" {
			hdr.Set("Content-Type", "application/json")
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	err := c.Request(method, req.URL, body, nil, hdr)
	f.metrics.ObserveDuration(req.Action, time.Since(start))
	if err != nil {
		f.metrics.IncRequest(req.Action, 0)
		return nil, err
	}
	if resp == nil {
		f.metrics.IncRequest(req.Action, 0)
		return nil, fmt.Errorf("no response for %s", req.URL)
	}
	f.metrics.IncRequest(req.Action, resp.StatusCode)
	return resp, nil
}

// FetchOK fetches req and requires HTTP 200. Transport failures and other
// statuses are retried up to MaxRetries when retryable, then logged and
// returned as TransportError.
func (f *Fetcher) FetchOK(ctx context.Context, req Request) (*Response, error) {
	attempts := f.cfg.MaxRetries + 1
	var lastErr TransportError

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, TransportError{Action: req.Action, URL: req.URL, Err: err}
		}

		resp, err := f.Fetch(ctx, req)
		switch {
		case err != nil:
			lastErr = TransportError{Action: req.Action, URL: req.URL, Err: classifyError(err, 0)}
		case resp.StatusCode != http.StatusOK:
			lastErr = TransportError{
				Action:     req.Action,
				URL:        resp.URL,
				StatusCode: resp.StatusCode,
				Err:        classifyError(nil, resp.StatusCode),
			}
		default:
			f.logger.Debug("success",
				slog.String("action", req.Action),
				slog.String("url", resp.URL),
			)
			return resp, nil
		}

		if attempt == attempts || !retryable(lastErr.Err) || ctx.Err() != nil {
			break
		}
		f.metrics.IncRetries()
		delay := f.backoff(attempt)
		f.logger.Debug("retrying request",
			slog.String("action", req.Action),
			slog.String("url", req.URL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	f.logger.Error("failed",
		slog.String("action", req.Action),
		slog.String("url", lastErr.URL),
		slog.Int("status_code", lastErr.StatusCode),
		slog.String("error_type", errorTypeLabel(lastErr.Err)),
	)
	f.metrics.IncError(req.Action, lastErr.Err)
	return nil, lastErr
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
