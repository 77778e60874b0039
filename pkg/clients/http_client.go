package clients

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	crmerrors "github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/metrics"
	"github.com/udssoftware/crmsize/pkg/observability"
)

const userAgent = "crmsize/1.0"

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	RequestTimeout      time.Duration
	EnableHTTP2         bool

	// RateLimit is requests per second, 0 disables limiting
	RateLimit float64
	RateBurst int

	CircuitBreakerEnabled bool
	CircuitBreaker        CircuitBreakerConfig

	Retry *RetryPolicy
}

// DefaultHTTPConfig returns the default client configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		RequestTimeout:        2 * time.Minute,
		EnableHTTP2:           true,
		RateLimit:             10,
		RateBurst:             5,
		CircuitBreakerEnabled: true,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: DefaultRetryPolicy(),
	}
}

// ThrottledError is returned when the server rejects a request under its
// service protection limits (HTTP 429 or 503)
type ThrottledError struct {
	StatusCode int
	Wait       time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("request throttled with status %d (retry after %s)", e.StatusCode, e.Wait)
}

// RetryAfter returns the server supplied delay
func (e *ThrottledError) RetryAfter() time.Duration {
	return e.Wait
}

// IsThrottled reports whether err is a service protection rejection
func IsThrottled(err error) bool {
	var t *ThrottledError
	return errors.As(err, &t)
}

// HTTPClient sends rate limited, circuit protected requests and retries
// throttled ones
type HTTPClient struct {
	config    *HTTPConfig
	logger    *zap.Logger
	client    *http.Client
	transport *http.Transport
	tracer    *observability.ComponentTracer

	limiter        RateLimiter
	circuitBreaker *CircuitBreaker

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient creates a client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.Retry == nil {
		config.Retry = NoRetryPolicy()
	}

	c := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
		tracer: observability.NewComponentTracer("http"),
	}

	c.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(c.transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	c.client = &http.Client{
		Transport: c.transport,
		Timeout:   config.RequestTimeout,
	}

	c.limiter = NewLimiter(config.RateLimit, config.RateBurst)
	if config.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(config.CircuitBreaker, logger)
	}

	return c
}

// Transport returns the underlying round tripper so that authenticating
// transports can wrap it
func (c *HTTPClient) Transport() http.RoundTripper {
	return c.client.Transport
}

// WrapTransport replaces the round tripper with wrap(current)
func (c *HTTPClient) WrapTransport(wrap func(http.RoundTripper) http.RoundTripper) {
	c.client.Transport = wrap(c.client.Transport)
}

// Do sends the request built by newRequest, rebuilding it for every
// attempt. Throttled responses are retried per the retry policy; every
// other response, whatever its status, is returned to the caller.
// operation labels metrics and spans.
func (c *HTTPClient) Do(ctx context.Context, operation string, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response

	err := c.config.Retry.ExecuteWithCondition(ctx, func(attempt int) error {
		req, err := newRequest(ctx)
		if err != nil {
			return crmerrors.Wrap(err, crmerrors.ErrorTypeInternal, "failed to build request")
		}
		if attempt > 0 {
			c.logger.Debug("retrying throttled request",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1))
		}

		resp, err = c.send(req, operation)
		return err
	}, IsThrottled)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) send(req *http.Request, operation string) (*http.Response, error) {
	ctx, span := c.tracer.StartSpan(req.Context(), operation,
		attribute.String("http.method", req.Method),
		attribute.String("http.host", req.URL.Host),
	)
	defer span.End()
	req = req.WithContext(ctx)
	atomic.AddInt64(&c.totalRequests, 1)

	if err := c.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		observability.EndStatus(span, err)
		return nil, crmerrors.Wrap(err, crmerrors.ErrorTypeRateLimit, "rate limiter wait aborted")
	}
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		observability.EndStatus(span, ErrCircuitOpen)
		return nil, crmerrors.Wrap(ErrCircuitOpen, crmerrors.ErrorTypeConnection, "request rejected")
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	observability.InjectHeaders(ctx, req.Header)

	timer := metrics.NewTimer()
	resp, err := c.client.Do(req)
	elapsed := timer.Stop()

	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		metrics.HTTPRequestLatency.WithLabelValues(req.Method, operation, "error").Observe(elapsed.Seconds())
		c.recordOutcome(false)
		observability.EndStatus(span, err)
		return nil, classifyTransportError(ctx, err)
	}

	metrics.HTTPRequestLatency.WithLabelValues(req.Method, operation, strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.recordOutcome(resp.StatusCode < http.StatusInternalServerError)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		metrics.ThrottledRequests.Inc()
		wait := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		c.limiter.Backoff(wait)

		throttled := &ThrottledError{StatusCode: resp.StatusCode, Wait: wait}
		c.logger.Warn("request throttled",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.Duration("retry_after", wait))
		observability.EndStatus(span, throttled)
		return nil, throttled
	}

	observability.EndStatus(span, nil)
	return resp, nil
}

func (c *HTTPClient) recordOutcome(ok bool) {
	if c.circuitBreaker == nil {
		return
	}
	if ok {
		c.circuitBreaker.RecordSuccess()
	} else {
		c.circuitBreaker.RecordFailure()
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return crmerrors.Wrap(err, crmerrors.ErrorTypeTimeout, "request cancelled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crmerrors.Wrap(err, crmerrors.ErrorTypeTimeout, "request timed out")
	}
	return crmerrors.Wrap(err, crmerrors.ErrorTypeConnection, "request failed")
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Missing or unparsable values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64        `json:"total_requests"`
	FailedRequests int64        `json:"failed_requests"`
	SuccessRate    float64      `json:"success_rate"`
	CircuitState   string       `json:"circuit_state"`
	Limiter        LimiterStats `json:"limiter"`
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	total := atomic.LoadInt64(&c.totalRequests)
	failed := atomic.LoadInt64(&c.failedRequests)

	stats := HTTPStats{
		TotalRequests:  total,
		FailedRequests: failed,
		CircuitState:   StateClosed.String(),
	}
	if l, ok := c.limiter.(*Limiter); ok {
		stats.Limiter = l.Stats()
	}
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	if c.circuitBreaker != nil {
		stats.CircuitState = c.circuitBreaker.State().String()
	}
	return stats
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
