package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aidd/paper-tracker/internal/domain"
)

const (
	// DefaultUserAgent is sent when the caller does not set one.
	DefaultUserAgent = "paper-tracker/1.0 (+https://github.com/aidd/paper-tracker)"

	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 10 << 20

	// maxErrorBodyBytes bounds the excerpt kept from error responses.
	maxErrorBodyBytes = 1 << 10
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout is the per-call I/O timeout.
	Timeout time.Duration

	// RequestDelay is the minimum spacing between consecutive requests.
	// Zero disables the delay.
	RequestDelay time.Duration

	// MaxRetries is the number of retries on 429 and 5xx responses and on
	// transport errors. Zero disables retries.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Observer, when set, is told the outcome of every Get.
	Observer RequestObserver
}

// RequestObserver receives one call per upstream request made through Get.
// Outcome is "ok", "rate_limited", "http_<status>" or "error".
type RequestObserver interface {
	ObserveSourceRequest(source, outcome string, elapsed time.Duration)
}

// HTTPClient wraps http.Client with a courtesy delay and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client. The client waits on the
// request-delay limiter before each attempt and retries on 429 (Too Many
// Requests) and 5xx server errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewIntervalLimiter(cfg.RequestDelay),
		config:      cfg,
	}
}

// Do executes an HTTP request with the request delay and retries.
// Retries honour the Retry-After header.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if c.shouldRetry(resp.StatusCode) {
			retryDelay := c.getRetryDelay(resp)

			if resp.Body != nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			if attempt < c.config.MaxRetries {
				lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
				if err := c.waitForRetry(req.Context(), retryDelay); err != nil {
					return nil, err
				}
				continue
			}

			return nil, &retryExhaustedError{attempts: c.config.MaxRetries + 1, status: resp.StatusCode, retryAfter: retryDelay}
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// Get performs a GET request and returns the body of a 200 response.
// Non-200 responses become *domain.ExternalAPIError; an exhausted 429
// becomes *domain.RateLimitError.
func (c *HTTPClient) Get(ctx context.Context, source domain.SourceType, rawURL string, accept string) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx, source, rawURL, accept)
	if c.config.Observer != nil {
		c.config.Observer.ObserveSourceRequest(string(source), requestOutcome(err), time.Since(start))
	}
	return body, err
}

func requestOutcome(err error) string {
	var (
		apiErr  *domain.ExternalAPIError
		rateErr *domain.RateLimitError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	default:
		return "error"
	}
}

func (c *HTTPClient) get(ctx context.Context, source domain.SourceType, rawURL string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.Do(req)
	if err != nil {
		var exhausted *retryExhaustedError
		if errors.As(err, &exhausted) {
			if exhausted.status == http.StatusTooManyRequests {
				return nil, domain.NewRateLimitError(string(source), exhausted.retryAfter)
			}
			return nil, domain.NewExternalAPIError(string(source), exhausted.status, exhausted.Error(), nil)
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, domain.NewExternalAPIError(string(source), resp.StatusCode, string(excerpt), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay respects the Retry-After header if present, otherwise uses
// the configured retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryExhaustedError struct {
	attempts   int
	status     int
	retryAfter time.Duration
}

func (e *retryExhaustedError) Error() string {
	return fmt.Sprintf("max retries exhausted after %d attempts, last status: %d", e.attempts, e.status)
}
