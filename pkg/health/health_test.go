package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checker func(url string) *HTTPChecker
		healthy bool
	}{
		{
			name:    "ok",
			status:  http.StatusOK,
			checker: NewHTTPChecker,
			healthy: true,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			checker: NewHTTPChecker,
			healthy: false,
		},
		{
			name:   "redirect outside narrowed range",
			status: http.StatusMultipleChoices,
			checker: func(url string) *HTTPChecker {
				return NewHTTPChecker(url).WithStatusRange(200, 299)
			},
			healthy: false,
		},
		{
			name:   "body matches",
			status: http.StatusOK,
			body:   `{"status":"healthy"}`,
			checker: func(url string) *HTTPChecker {
				return NewHTTPChecker(url).WithBodyContains(`"healthy"`)
			},
			healthy: true,
		},
		{
			name:   "body mismatch",
			status: http.StatusOK,
			body:   `{"status":"unhealthy"}`,
			checker: func(url string) *HTTPChecker {
				return NewHTTPChecker(url).WithBodyContains(`"status":"healthy"`)
			},
			healthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result := tt.checker(server.URL).Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.False(t, result.CheckedAt.IsZero())
		})
	}
}

func TestHTTPCheckerHeadersAndTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fast := NewHTTPChecker(server.URL).WithHeader("User-Agent", "GoFast Coordinator")
	assert.True(t, fast.Check(context.Background()).Healthy)

	slow := NewHTTPChecker(server.URL).WithHeader("User-Agent", "slow").WithTimeout(50 * time.Millisecond)
	assert.False(t, slow.Check(context.Background()).Healthy)
	assert.Equal(t, CheckTypeHTTP, slow.Type())
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	checker := NewTCPChecker(addr).WithTimeout(time.Second)
	assert.True(t, checker.Check(context.Background()).Healthy)
	assert.Equal(t, CheckTypeTCP, checker.Type())

	require.NoError(t, ln.Close())
	assert.False(t, checker.Check(context.Background()).Healthy)
}

type flakyChecker struct {
	failures int32
	calls    int32
}

func (f *flakyChecker) Check(ctx context.Context) Result {
	n := atomic.AddInt32(&f.calls, 1)
	return Result{Healthy: n > f.failures, Message: "flaky", CheckedAt: time.Now()}
}

func (f *flakyChecker) Type() CheckType { return CheckTypeTCP }

func TestWait(t *testing.T) {
	cfg := Config{Interval: time.Millisecond, Timeout: time.Second, Retries: 3}

	t.Run("recovers within budget", func(t *testing.T) {
		c := &flakyChecker{failures: 2}
		result, err := Wait(context.Background(), c, cfg)
		require.NoError(t, err)
		assert.True(t, result.Healthy)
		assert.Equal(t, int32(3), c.calls)
	})

	t.Run("exhausts budget", func(t *testing.T) {
		c := &flakyChecker{failures: 10}
		result, err := Wait(context.Background(), c, cfg)
		require.Error(t, err)
		assert.False(t, result.Healthy)
		assert.Equal(t, int32(3), c.calls)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := &flakyChecker{failures: 10}
		_, err := Wait(ctx, c, Config{Interval: time.Hour, Retries: 5})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
