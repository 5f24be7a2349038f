package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyCheck bounds how much of a response BodyContains looks at
const maxBodyCheck = 4 << 10

// HTTPChecker requests URL and accepts a status in [StatusMin, StatusMax]
// whose body, when BodyContains is set, contains that string
type HTTPChecker struct {
	URL          string
	Headers      map[string]string
	StatusMin    int
	StatusMax    int
	BodyContains string
	Client       *http.Client
}

// NewHTTPChecker accepts any 2xx or 3xx answer from url
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Headers:   make(map[string]string),
		StatusMin: http.StatusOK,
		StatusMax: 399,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return failed(start, "bad request: %v", err)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return failed(start, "request failed: %v", err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return failed(start, "%s, want %d-%d", status, h.StatusMin, h.StatusMax)
	}
	if h.BodyContains != "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyCheck))
		if !strings.Contains(string(body), h.BodyContains) {
			return failed(start, "%s, body missing %q", status, h.BodyContains)
		}
	}
	return passed(start, status)
}

func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithHeader sets a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithStatusRange narrows the accepted status codes
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.StatusMin, h.StatusMax = min, max
	return h
}

// WithBodyContains requires substr in the first 4KiB of the body
func (h *HTTPChecker) WithBodyContains(substr string) *HTTPChecker {
	h.BodyContains = substr
	return h
}

// WithTimeout bounds each request
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

func passed(start time.Time, message string) Result {
	return Result{Healthy: true, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

func failed(start time.Time, format string, args ...interface{}) Result {
	return Result{Message: fmt.Sprintf(format, args...), CheckedAt: start, Duration: time.Since(start)}
}
