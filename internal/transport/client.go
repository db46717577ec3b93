package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single request attempt.
const DefaultTimeout = 5 * time.Minute

// Config configures the Client.
type Config struct {
	// Username and Password are sent as HTTP Basic credentials.
	// Azure DevOps expects an empty username and the access token as password.
	Username string
	Password string

	// Policy controls retries on transient server errors.
	Policy RetryPolicy

	// Timeout for individual attempts (default: 5m).
	Timeout time.Duration

	// RateLimit in requests per second; zero or negative disables limiting.
	RateLimit float64
	RateBurst int

	// Headers added to every request. Content-Type defaults to application/json.
	Headers map[string]string

	// Transport allows injecting a custom round tripper (for tests).
	Transport http.RoundTripper
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK returns true if the status code is 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// RetryError is returned when every allowed attempt answered with a retry-eligible status.
type RetryError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s %s: giving up after %d attempts, last status %d", e.Method, e.URL, e.Attempts, e.StatusCode)
}

// Client executes authenticated requests with retry on transient server errors.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Client with the given configuration.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Policy.RetryStatuses == nil {
		config.Policy.RetryStatuses = DefaultRetryStatuses
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		limiter: limiter,
	}
}

// Policy returns the retry policy in effect.
func (c *Client) Policy() RetryPolicy {
	return c.config.Policy
}

// Execute sends a request, retrying while the response status is retry-eligible.
// Non-retryable statuses (including 4xx) are returned as a Response with a nil error.
// Network failures are returned immediately.
func (c *Client) Execute(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	policy := c.config.Policy
	attempts := 0

	operation := func() (*Response, error) {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := c.doOnce(ctx, method, url, headers)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		if policy.Retryable(resp.StatusCode) {
			return nil, &RetryError{
				Method:     method,
				URL:        url,
				StatusCode: resp.StatusCode,
				Attempts:   attempts,
			}
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		var retryErr *RetryError
		if errors.As(err, &retryErr) {
			slog.Debug("Retrying request", "method", method, "status", retryErr.StatusCode, "attempt", retryErr.Attempts, "wait", wait)
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy.newBackOff()),
		backoff.WithMaxTries(uint(policy.MaxAttempts())),
		backoff.WithNotify(notify),
	)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Execute(ctx, http.MethodGet, url, nil)
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
