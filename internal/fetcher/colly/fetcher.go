// Package collyfetcher implements jobs.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RespectRobots  bool
	Timeout        time.Duration
	MaxBodyBytes   int
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Waiter delays a request until the target host's politeness budget allows it.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Fetcher implements jobs.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       Waiter
	retry         retrypolicy.RetryPolicy[jobs.FetchResponse]
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
		retry:         newRetryPolicy(cfg),
		logger:        logger,
	}
}

// Fetch executes a single logical HTTP GET, retrying transient network failures.
func (f *Fetcher) Fetch(ctx context.Context, request jobs.FetchRequest) (jobs.FetchResponse, error) {
	start := time.Now()
	attempt := 0
	resp, err := failsafe.With[jobs.FetchResponse](f.retry).WithContext(ctx).Get(func() (jobs.FetchResponse, error) {
		attempt++
		if attempt > 1 {
			f.logger.Debug("retrying fetch", zap.String("url", request.URL), zap.Int("attempt", attempt))
		}
		return f.fetchOnce(ctx, request)
	})
	if err != nil {
		if errors.Is(err, jobs.ErrBodyTooLarge) {
			metrics.ObserveFetch(request.URL, "too_large", time.Since(start), 0)
			f.logger.Warn("response body over limit", zap.String("url", request.URL), zap.Int64("max_bytes", f.bodyLimit(request)))
			return jobs.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
		metrics.ObserveFetch(request.URL, "error", time.Since(start), 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return jobs.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctxErr)
		}
		return jobs.FetchResponse{}, fmt.Errorf("%w: fetch %s: %w", jobs.ErrNetwork, request.URL, err)
	}
	metrics.ObserveFetch(request.URL, "ok", time.Since(start), len(resp.Body))
	return resp, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, request jobs.FetchRequest) (jobs.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return jobs.FetchResponse{}, err
		}
	}
	var (
		result   jobs.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return jobs.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request jobs.FetchRequest,
	start time.Time,
	result *jobs.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if limit := f.bodyLimit(request); limit > 0 {
		// One byte over the limit tells a body that fits apart from a truncated one.
		collector.MaxBodySize = int(limit) + 1
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request jobs.FetchRequest,
	start time.Time,
	result *jobs.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	limit := f.bodyLimit(request)
	hooks.OnResponse(func(r *colly.Response) {
		if limit > 0 && int64(len(r.Body)) > limit {
			*fetchErr = fmt.Errorf("%w: more than %d bytes", jobs.ErrBodyTooLarge, limit)
			return
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = jobs.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*fetchErr = &StatusError{Code: r.StatusCode, Err: err}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// bodyLimit is the request's limit when set, the configured one otherwise. Zero means unlimited.
func (f *Fetcher) bodyLimit(request jobs.FetchRequest) int64 {
	if request.MaxBodyBytes > 0 {
		return request.MaxBodyBytes
	}
	if f.cfg.MaxBodyBytes > 0 {
		return int64(f.cfg.MaxBodyBytes)
	}
	return 0
}

func (f *Fetcher) copyHeaders(request jobs.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newRetryPolicy(cfg Config) retrypolicy.RetryPolicy[jobs.FetchResponse] {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	maxDelay := cfg.BackoffMax
	if maxDelay <= initial {
		maxDelay = 2 * initial
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retrypolicy.NewBuilder[jobs.FetchResponse]().
		HandleIf(func(_ jobs.FetchResponse, err error) bool {
			return retryable(err)
		}).
		WithMaxRetries(retries).
		WithBackoff(initial, maxDelay).
		WithJitterFactor(0.1).
		Build()
}

// retryable reports whether a single-attempt failure is worth another try:
// connection errors, timeouts and 5xx/429 responses.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
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
