package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maxysadm-GH/VHC/pkg/errors"
)

// newTestExecutor wires an executor whose sleeps record their durations
// instead of waiting.
func newTestExecutor(t *testing.T, cfg ExecutorConfig) (*Executor, *[]time.Duration) {
	t.Helper()
	exec := NewExecutor(cfg, zaptest.NewLogger(t))
	var slept []time.Duration
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return exec, &slept
}

func TestDoReturnsBodyOnSuccess(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	exec, slept := newTestExecutor(t, DefaultExecutorConfig())

	query := url.Values{}
	query.Set("page", "1")
	resp, err := exec.Do(context.Background(), &Request{
		Target:    "shipstation",
		Method:    "GET",
		URL:       server.URL + "/orders",
		Query:     query,
		BasicAuth: &BasicAuth{Username: "key", Password: "secret"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "page=1", gotQuery)
	assert.NotEmpty(t, gotAuth, "basic auth header must be set")
	assert.Empty(t, *slept, "a clean success must not sleep")
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	exec, slept := newTestExecutor(t, DefaultExecutorConfig())

	resp, err := exec.Do(context.Background(), &Request{
		Target: "shipstation",
		Method: "GET",
		URL:    server.URL,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := DefaultExecutorConfig()
	cfg.MaxAttempts = 3
	exec, slept := newTestExecutor(t, cfg)

	resp, err := exec.Do(context.Background(), &Request{
		Target: "shipstation",
		Method: "GET",
		URL:    server.URL,
	})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)
}

func TestDoRateLimitWaitDoesNotConsumeBudget(t *testing.T) {
	var calls atomic.Int32
	var firstQuery, secondQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			firstQuery = r.URL.RawQuery
			w.Header().Set("Retry-After", "10")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			secondQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	// A budget of one failed attempt: the 429 wait must not count against it.
	cfg := DefaultExecutorConfig()
	cfg.MaxAttempts = 1
	exec, slept := newTestExecutor(t, cfg)

	query := url.Values{}
	query.Set("page", "3")
	resp, err := exec.Do(context.Background(), &Request{
		Target: "shipstation",
		Method: "GET",
		URL:    server.URL,
		Query:  query,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, firstQuery, secondQuery, "retried request must be identical")
	require.Len(t, *slept, 1)
	assert.Equal(t, 10*time.Second+cfg.RateLimitBuffer, (*slept)[0])
}

func TestDoRateLimitFallsBackToDefaultWait(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := DefaultExecutorConfig()
	exec, slept := newTestExecutor(t, cfg)

	_, err := exec.Do(context.Background(), &Request{Target: "databox", Method: "GET", URL: server.URL})

	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, cfg.DefaultRetryAfter+cfg.RateLimitBuffer, (*slept)[0])
}

func TestDoPausesOnLowSourceQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Remaining", "1")
		w.Header().Set("X-Rate-Limit-Reset", "7")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := DefaultExecutorConfig()
	exec, slept := newTestExecutor(t, cfg)

	resp, err := exec.Do(context.Background(), &Request{Target: "shipstation", Method: "GET", URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, *slept, 1)
	assert.Equal(t, 7*time.Second+cfg.RateLimitBuffer, (*slept)[0])
}

func TestDoSkipsPauseOnHealthySourceQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Remaining", "38")
		w.Header().Set("X-Rate-Limit-Reset", "22")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	exec, slept := newTestExecutor(t, DefaultExecutorConfig())

	_, err := exec.Do(context.Background(), &Request{Target: "shipstation", Method: "GET", URL: server.URL})

	require.NoError(t, err)
	assert.Empty(t, *slept)
}

func TestDoPausesOnLowSinkQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "3")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := DefaultExecutorConfig()
	exec, slept := newTestExecutor(t, cfg)

	_, err := exec.Do(context.Background(), &Request{Target: "databox", Method: "GET", URL: server.URL})

	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, cfg.SinkQuotaPause, (*slept)[0])
}

func TestDoRetriesNetworkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing is listening

	cfg := DefaultExecutorConfig()
	cfg.MaxAttempts = 2
	exec, slept := newTestExecutor(t, cfg)

	resp, err := exec.Do(context.Background(), &Request{Target: "shipstation", Method: "GET", URL: server.URL})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Len(t, *slept, 2)
}

func TestDoMalformedURLFailsFastWithoutRetry(t *testing.T) {
	exec, slept := newTestExecutor(t, DefaultExecutorConfig())

	resp, err := exec.Do(context.Background(), &Request{
		Target: "shipstation",
		Method: "GET",
		URL:    "://missing-scheme",
	})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.False(t, errors.IsRetryable(err))
	assert.Empty(t, *slept, "a non-retryable failure must not back off")
}

func TestDoHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	exec := NewExecutor(DefaultExecutorConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := exec.Do(ctx, &Request{Target: "shipstation", Method: "GET", URL: server.URL})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestDoSendsJSONBody(t *testing.T) {
	var gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, DefaultExecutorConfig())

	_, err := exec.Do(context.Background(), &Request{
		Target: "databox",
		Method: "POST",
		URL:    server.URL,
		Body:   map[string]any{"records": []string{"a"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"records":["a"]}`, gotBody)
}
