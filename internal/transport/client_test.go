package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy retries like the default policy but without waiting between attempts.
func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BackoffFactor = 0
	return p
}

// flakyServer answers the first failures requests with status, then 200.
func flakyServer(t *testing.T, failures int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if int(n) <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_Execute_SendsBasicAuthAndHeaders(t *testing.T) {
	var gotUser, gotPass, gotContentType, gotAccept string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewClient(Config{
		Password: "secret-pat",
		Policy:   fastPolicy(),
		Headers:  map[string]string{"Accept": "application/zip"},
	})

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "hello", string(resp.Body))
	assert.True(t, gotOK)
	assert.Equal(t, "", gotUser)
	assert.Equal(t, "secret-pat", gotPass)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "application/zip", gotAccept)
}

func TestClient_Execute_RequestHeadersOverrideDefaults(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	client := NewClient(Config{Policy: fastPolicy()})
	_, err := client.Execute(context.Background(), http.MethodGet, srv.URL, map[string]string{"Content-Type": "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestClient_Execute_RecoversAfterFiveServerErrors(t *testing.T) {
	srv, calls := flakyServer(t, 5, http.StatusServiceUnavailable)
	client := NewClient(Config{Policy: fastPolicy()})

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(6), calls.Load())
}

func TestClient_Execute_GivesUpAfterSixServerErrors(t *testing.T) {
	srv, calls := flakyServer(t, 6, http.StatusServiceUnavailable)
	client := NewClient(Config{Policy: fastPolicy()})

	resp, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Nil(t, resp)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr), "expected *RetryError, got %T", err)
	assert.Equal(t, http.StatusServiceUnavailable, retryErr.StatusCode)
	assert.Equal(t, 6, retryErr.Attempts)
	assert.Equal(t, int32(6), calls.Load())
}

func TestClient_Execute_RetriesEachEligibleStatus(t *testing.T) {
	for _, status := range DefaultRetryStatuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, calls := flakyServer(t, 2, status)
			client := NewClient(Config{Policy: fastPolicy()})

			resp, err := client.Get(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.True(t, resp.OK())
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestClient_Execute_DoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests, http.StatusNotImplemented} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, calls := flakyServer(t, 10, status)
			client := NewClient(Config{Policy: fastPolicy()})

			resp, err := client.Get(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, status, resp.StatusCode)
			assert.Equal(t, "unavailable", string(resp.Body))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_Execute_CustomRetryStatuses(t *testing.T) {
	srv, calls := flakyServer(t, 2, http.StatusTooManyRequests)
	policy := fastPolicy()
	policy.RetryStatuses = []int{http.StatusTooManyRequests}
	client := NewClient(Config{Policy: policy})

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Execute_ZeroRetries(t *testing.T) {
	srv, calls := flakyServer(t, 1, http.StatusBadGateway)
	policy := fastPolicy()
	policy.MaxRetries = 0
	client := NewClient(Config{Policy: policy})

	_, err := client.Get(context.Background(), srv.URL)
	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 1, retryErr.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Execute_NetworkErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})
	client := NewClient(Config{Policy: fastPolicy(), Transport: transport})

	_, err := client.Get(context.Background(), "http://devops.invalid/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(1), calls.Load())

	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr))
}

func TestClient_Execute_ContextCanceled(t *testing.T) {
	srv, _ := flakyServer(t, 100, http.StatusServiceUnavailable)
	policy := DefaultRetryPolicy()
	policy.BackoffFactor = 10 * time.Second
	client := NewClient(Config{Policy: policy})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Execute_RateLimited(t *testing.T) {
	srv, calls := flakyServer(t, 0, http.StatusOK)
	client := NewClient(Config{Policy: fastPolicy(), RateLimit: 1000, RateBurst: 2})

	for range 3 {
		_, err := client.Get(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, DefaultRetryStatuses, client.Policy().RetryStatuses)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
