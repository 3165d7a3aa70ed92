package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/circuitbreaker"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// DefaultTimeout bounds a single outbound call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// RetryPolicy controls retries of rate-limited, 5xx and timed-out calls.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 100ms base delay capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// apiCaller performs GET requests that decode a JSON body, shared by every provider client.
type apiCaller struct {
	provider string
	client   *http.Client
	timeout  time.Duration
	retry    RetryPolicy
	breaker  *circuitbreaker.CircuitBreaker
}

func newAPICaller(provider string, httpClient *http.Client, timeout time.Duration, retry RetryPolicy) *apiCaller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &apiCaller{
		provider: provider,
		client:   httpClient,
		timeout:  timeout,
		retry:    retry,
	}
}

// getJSON fetches u and decodes the body into out, retrying retryable failures.
// endpoint is a short label for metrics ("weather", "forecast", ...).
func (c *apiCaller) getJSON(ctx context.Context, endpoint string, u *url.URL, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.WithLabelValues(c.provider).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		err := c.callOnce(ctx, endpoint, u, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !c.isRetryable(ctx, err) {
			break
		}
	}

	observability.ProviderErrorsTotal.WithLabelValues(c.provider, string(CategorizeError(lastErr))).Inc()
	if c.retry.Attempts > 1 && c.isRetryable(ctx, lastErr) {
		return fmt.Errorf("%s %s: exhausted retries: %w", c.provider, endpoint, lastErr)
	}
	return fmt.Errorf("%s %s: %w", c.provider, endpoint, lastErr)
}

func (c *apiCaller) callOnce(ctx context.Context, endpoint string, u *url.URL, out interface{}) error {
	if c.breaker == nil {
		return c.do(ctx, endpoint, u, out)
	}
	return c.breaker.Call(ctx, func() error {
		return c.do(ctx, endpoint, u, out)
	})
}

func (c *apiCaller) do(ctx context.Context, endpoint string, u *url.URL, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		// url.Error embeds the full URL, API key included; keep only the cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	c.observe(endpoint, statusLabel(resp.StatusCode), start)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *apiCaller) observe(endpoint, status string, start time.Time) {
	observability.ProviderCallsTotal.WithLabelValues(c.provider, endpoint, status).Inc()
	observability.ProviderDuration.WithLabelValues(c.provider, endpoint, status).Observe(time.Since(start).Seconds())
}

// isRetryable reports whether another attempt may succeed. A cancelled parent
// context or an open breaker is final.
func (c *apiCaller) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamFailure):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

func (c *apiCaller) backoff(attempt int) time.Duration {
	delay := float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if c.retry.MaxDelay > 0 && delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

// newBreaker builds a breaker for a provider that reports its transitions as metrics.
func newBreaker(provider string, cfg circuitbreaker.Config) *circuitbreaker.CircuitBreaker {
	cfg.Component = provider
	cfg.IsFailure = countsTowardBreaker
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(component string, from, to circuitbreaker.State) {
		observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
		if userHook != nil {
			userHook(component, from, to)
		}
	}
	observability.CircuitBreakerState.WithLabelValues(provider).Set(0)
	return circuitbreaker.New(cfg)
}
