// Package clients provides the shared HTTP request executor used for every
// source and sink call. The executor owns the retry loop, the exponential
// backoff schedule, 429 handling, and proactive pauses when the remaining
// rate-limit quota runs low.
package clients

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/maxysadm-GH/VHC/pkg/errors"
	"github.com/maxysadm-GH/VHC/pkg/metrics"
)

// Quota header conventions. The source reports remaining-count plus
// reset-seconds; the sink reports remaining-count alone.
const (
	headerSourceRemaining = "X-Rate-Limit-Remaining"
	headerSourceReset     = "X-Rate-Limit-Reset"
	headerSinkRemaining   = "X-RateLimit-Remaining"
	headerRetryAfter      = "Retry-After"
)

// maxLoggedBody bounds error response bodies quoted in logs.
const maxLoggedBody = 200

// BasicAuth is a credential pair for source API requests.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one HTTP call. The same Request value is reissued
// verbatim on every retry attempt.
type Request struct {
	// Target labels the request in logs and metrics (e.g. "shipstation")
	Target string
	Method string
	URL    string
	Query  url.Values
	// Headers are applied after defaults and may override them
	Headers map[string]string
	// BasicAuth is set for source calls; sink calls authenticate via Headers
	BasicAuth *BasicAuth
	// Body is JSON-encoded once per Do and resent on each attempt
	Body any
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ExecutorConfig controls retry, backoff, and rate-limit behavior.
type ExecutorConfig struct {
	// MaxAttempts is the budget of failed attempts per request;
	// rate-limit waits do not consume it
	MaxAttempts int
	// InitialBackoff and MaxBackoff bound the exponential schedule
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RateLimitBuffer is added to every rate-limit wait
	RateLimitBuffer time.Duration
	// DefaultRetryAfter is used when a 429 carries no usable hint
	DefaultRetryAfter time.Duration
	// SourceQuotaFloor triggers a pause when source remaining quota is below it
	SourceQuotaFloor int
	// SinkQuotaFloor triggers a pause when sink remaining quota is below it
	SinkQuotaFloor int
	// SinkQuotaPause is the fixed pause taken on low sink quota
	SinkQuotaPause time.Duration
	// RequestTimeout bounds a single HTTP attempt
	RequestTimeout time.Duration
}

// DefaultExecutorConfig returns the production defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        60 * time.Second,
		RateLimitBuffer:   2 * time.Second,
		DefaultRetryAfter: 60 * time.Second,
		SourceQuotaFloor:  2,
		SinkQuotaFloor:    5,
		SinkQuotaPause:    2 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// Executor issues HTTP requests with retry, backoff, and rate-limit
// handling. All waits are blocking sleeps of the single pipeline flow;
// sleeps honor context cancellation so a run can be shut down cleanly.
type Executor struct {
	cfg        ExecutorConfig
	httpClient *http.Client
	policy     *BackoffPolicy
	logger     *zap.Logger

	// sleep is injectable so tests never wait on the wall clock
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(cfg ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		policy: NewBackoffPolicy(cfg.InitialBackoff, cfg.MaxBackoff),
		logger: logger.With(zap.String("component", "executor")),
		sleep:  SleepWithContext,
	}
}

// Do performs the request, retrying per the configured policy. It returns
// the response only on HTTP 200. Exhausting the attempt budget yields a
// terminal error; callers must treat that as "this unit of work did not
// complete" and carry on with the run.
func (e *Executor) Do(ctx context.Context, req *Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode request body")
		}
		body = encoded
	}

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt < e.cfg.MaxAttempts; {
		resp, err := e.doOnce(ctx, req, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled")
			}
			// Only retryable failure types re-enter the loop; a malformed
			// request can never succeed and fails immediately.
			if !errors.IsRetryable(err) {
				return nil, err
			}
			lastErr = err
			metrics.RetriesTotal.WithLabelValues(req.Target, "network").Inc()
			e.logger.Warn("request failed, retrying",
				zap.String("target", req.Target),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if serr := e.backoff(ctx, req.Target, "network", attempt); serr != nil {
				return nil, serr
			}
			attempt++
			continue
		}

		// Quota headers are inspected on every response, success or not,
		// so an imminent 429 is avoided before the next call.
		if serr := e.pauseForQuota(ctx, req.Target, resp.Header); serr != nil {
			return nil, serr
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			metrics.RequestsTotal.WithLabelValues(req.Target, "ok").Inc()
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := e.retryAfterHint(resp.Header) + e.cfg.RateLimitBuffer
			metrics.RetriesTotal.WithLabelValues(req.Target, "rate_limit").Inc()
			metrics.BackoffSeconds.WithLabelValues(req.Target, "rate_limit").Observe(wait.Seconds())
			e.logger.Warn("rate limited, waiting",
				zap.String("target", req.Target),
				zap.String("url", req.URL),
				zap.Duration("wait", wait))
			if serr := e.sleep(ctx, wait); serr != nil {
				return nil, errors.Wrap(serr, errors.ErrorTypeTimeout, "request cancelled during rate-limit wait")
			}
			// Rate-limit waits do not consume the attempt budget: the
			// request did not fail, the quota window did.

		default:
			lastStatus = resp.StatusCode
			metrics.RetriesTotal.WithLabelValues(req.Target, "http_error").Inc()
			e.logger.Warn("unexpected status, retrying",
				zap.String("target", req.Target),
				zap.String("url", req.URL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.String("body", truncate(resp.Body, maxLoggedBody)))
			if serr := e.backoff(ctx, req.Target, "http_error", attempt); serr != nil {
				return nil, serr
			}
			attempt++
		}
	}

	metrics.RetryExhaustedTotal.WithLabelValues(req.Target).Inc()
	terminal := errors.New(errors.ErrorTypeConnection, "request attempts exhausted").
		WithDetail("target", req.Target).
		WithDetail("method", req.Method).
		WithDetail("url", req.URL).
		WithDetail("attempts", e.cfg.MaxAttempts)
	if lastErr != nil {
		terminal.Cause = lastErr
	} else if lastStatus != 0 {
		terminal = terminal.WithDetail("last_status", lastStatus)
	}
	return nil, terminal
}

// doOnce issues a single HTTP attempt and fully reads the response.
// Failures come back typed so the retry loop can classify them.
func (e *Executor) doOnce(ctx context.Context, req *Request, body []byte) (*Response, error) {
	u := req.URL
	if len(req.Query) > 0 {
		u = u + "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request")
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// backoff sleeps per the exponential policy for the given failed attempt.
func (e *Executor) backoff(ctx context.Context, target, reason string, attempt int) error {
	delay := e.policy.Delay(attempt)
	metrics.BackoffSeconds.WithLabelValues(target, reason).Observe(delay.Seconds())
	if err := e.sleep(ctx, delay); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled during backoff")
	}
	return nil
}

// retryAfterHint reads the wait hint from a 429 response: an explicit
// Retry-After value, else the source's rate-limit-reset value, else the
// configured default.
func (e *Executor) retryAfterHint(h http.Header) time.Duration {
	if v := h.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get(headerSourceReset); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return e.cfg.DefaultRetryAfter
}

// pauseForQuota sleeps proactively when remaining-quota headers show the
// next request would likely hit a 429. Both header conventions are checked;
// malformed values are ignored.
func (e *Executor) pauseForQuota(ctx context.Context, target string, h http.Header) error {
	if v := h.Get(headerSourceReset); v != "" {
		remaining := intHeader(h, headerSourceRemaining, 100)
		if remaining < e.cfg.SourceQuotaFloor {
			reset, _ := strconv.Atoi(v)
			wait := time.Duration(reset)*time.Second + e.cfg.RateLimitBuffer
			metrics.QuotaPausesTotal.WithLabelValues(target).Inc()
			e.logger.Info("source quota low, pausing",
				zap.String("target", target),
				zap.Int("remaining", remaining),
				zap.Duration("wait", wait))
			if err := e.sleep(ctx, wait); err != nil {
				return errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled during quota pause")
			}
		}
		return nil
	}

	if h.Get(headerSinkRemaining) != "" {
		remaining := intHeader(h, headerSinkRemaining, 1000)
		if remaining < e.cfg.SinkQuotaFloor {
			metrics.QuotaPausesTotal.WithLabelValues(target).Inc()
			e.logger.Info("sink quota low, pausing",
				zap.String("target", target),
				zap.Int("remaining", remaining),
				zap.Duration("wait", e.cfg.SinkQuotaPause))
			if err := e.sleep(ctx, e.cfg.SinkQuotaPause); err != nil {
				return errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled during quota pause")
			}
		}
	}
	return nil
}

// intHeader parses an integer header, falling back on absence or garbage.
func intHeader(h http.Header, name string, fallback int) int {
	v := h.Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// SleepWithContext blocks for d or until the context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
