package papersources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidd/paper-tracker/internal/domain"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("creates client with custom config", func(t *testing.T) {
		cfg := HTTPClientConfig{
			Timeout:      15 * time.Second,
			RequestDelay: 500 * time.Millisecond,
			MaxRetries:   2,
			RetryDelay:   250 * time.Millisecond,
			UserAgent:    "TestAgent/1.0",
		}

		client := NewHTTPClient(cfg)

		require.NotNil(t, client)
		assert.Equal(t, 15*time.Second, client.client.Timeout)
		assert.Equal(t, "TestAgent/1.0", client.config.UserAgent)
		assert.Equal(t, 2, client.config.MaxRetries)
		assert.Equal(t, 500*time.Millisecond, client.config.RequestDelay)
	})

	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{MaxRetries: -1})

		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, DefaultUserAgent, client.config.UserAgent)
		assert.Equal(t, 0, client.config.MaxRetries)
		assert.Equal(t, time.Second, client.config.RetryDelay)
		assert.NotNil(t, client.rateLimiter)
	})
}

func TestHTTPClient_Get(t *testing.T) {
	t.Run("returns body and sends headers", func(t *testing.T) {
		var userAgent, accept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.Header.Get("User-Agent")
			accept = r.Header.Get("Accept")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{UserAgent: "TestAgent/2.0"})

		body, err := client.Get(context.Background(), domain.SourceTypeBioRxiv, server.URL, "application/json")
		require.NoError(t, err)
		assert.Equal(t, `{"status":"ok"}`, string(body))
		assert.Equal(t, "TestAgent/2.0", userAgent)
		assert.Equal(t, "application/json", accept)
	})

	t.Run("non-200 becomes ExternalAPIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such page"))
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{})

		_, err := client.Get(context.Background(), domain.SourceTypeArXiv, server.URL, "")
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "arxiv", apiErr.Source)
		assert.Contains(t, apiErr.Message, "no such page")
	})

	t.Run("exhausted 429 becomes RateLimitError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{MaxRetries: 0})

		_, err := client.Get(context.Background(), domain.SourceTypeChemRxiv, server.URL, "")
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}

func TestHTTPClient_DoRetryOn5xx(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{MaxRetries: 3, RetryDelay: time.Millisecond})

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{MaxRetries: 2, RetryDelay: time.Millisecond})

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		_, err = client.Do(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exhausted after 3 attempts")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{MaxRetries: 3, RetryDelay: time.Millisecond})

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestHTTPClient_DoContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{MaxRetries: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClient_RequestDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{RequestDelay: 100 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), domain.SourceTypeArXiv, server.URL, "")
		require.NoError(t, err)
	}

	// First call passes immediately, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestHTTPClient_getRetryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: 2 * time.Second})

	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{name: "no header", retryAfter: "", want: 2 * time.Second},
		{name: "seconds", retryAfter: "7", want: 7 * time.Second},
		{name: "zero seconds", retryAfter: "0", want: 2 * time.Second},
		{name: "garbage", retryAfter: "soon", want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}
			assert.Equal(t, tt.want, client.getRetryDelay(resp))
		})
	}
}

func TestHTTPClient_shouldRetry(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{})

	assert.True(t, client.shouldRetry(http.StatusTooManyRequests))
	assert.True(t, client.shouldRetry(http.StatusInternalServerError))
	assert.True(t, client.shouldRetry(http.StatusGatewayTimeout))
	assert.False(t, client.shouldRetry(http.StatusOK))
	assert.False(t, client.shouldRetry(http.StatusNotFound))
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveSourceRequest(source, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, source+":"+outcome)
}

func TestHTTPClient_Observer(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := NewHTTPClient(HTTPClientConfig{Observer: obs})
	ctx := context.Background()

	_, err := client.Get(ctx, domain.SourceTypeArXiv, server.URL, "")
	require.NoError(t, err)

	status.Store(http.StatusForbidden)
	_, err = client.Get(ctx, domain.SourceTypeArXiv, server.URL, "")
	require.Error(t, err)

	status.Store(http.StatusTooManyRequests)
	_, err = client.Get(ctx, domain.SourceTypeBioRxiv, server.URL, "")
	require.Error(t, err)

	assert.Equal(t, []string{"arxiv:ok", "arxiv:http_403", "biorxiv:rate_limited"}, obs.outcomes)
}
