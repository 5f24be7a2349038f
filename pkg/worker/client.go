package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// UserAgent identifies worker requests to the coordinator
	UserAgent = "GoFast Worker"

	// WorkerHostHeader carries the worker's own address so the coordinator
	// can tell workers apart when their requests arrive through the tunnel
	WorkerHostHeader = "X-Worker-Host"

	// DefaultFetchTimeout bounds a single GET /job
	DefaultFetchTimeout = 30 * time.Second

	// DefaultPort is the coordinator port assumed when the server argument has none
	DefaultPort = "8080"

	// FetchTimeoutEnv is set by the coordinator on the start command when a
	// fetch timeout is configured
	FetchTimeoutEnv = "GOFAST_FETCH_TIMEOUT"
)

// FetchTimeoutFromEnv returns the duration in FetchTimeoutEnv, or def when the
// variable is unset, unparsable or not positive
func FetchTimeoutFromEnv(def time.Duration) time.Duration {
	v := os.Getenv(FetchTimeoutEnv)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ErrFetchTimeout is returned when the coordinator did not answer a job
// request within the client timeout
var ErrFetchTimeout = errors.New("job fetch timed out")

// ResultPostError reports a result the coordinator did not accept
type ResultPostError struct {
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *ResultPostError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to post result: coordinator returned %d", e.Status)
	}
	return fmt.Sprintf("failed to post result: %v", e.Err)
}

func (e *ResultPostError) Unwrap() error {
	return e.Err
}

// Client talks to the coordinator's dispatch endpoints
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	WorkerHost string
}

// NewClient creates a client for the coordinator at baseURL (http://host:port)
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type jobEnvelope struct {
	Job json.RawMessage `json:"job"`
}

// FetchJob asks the coordinator for the next job. A JSON null job (or a
// response without one) means there is no more work.
func (c *Client) FetchJob(ctx context.Context) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/job", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrFetchTimeout, c.HTTP.Timeout)
		}
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("failed to fetch job: coordinator returned %d", resp.StatusCode)
	}

	var env jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w while reading response", ErrFetchTimeout)
		}
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return env.Job, nil
}

// PostResult sends one result to the coordinator. Failures are returned as
// *ResultPostError and are not retried.
func (c *Client) PostResult(ctx context.Context, result json.RawMessage) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/result", bytes.NewReader(result))
	if err != nil {
		return &ResultPostError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &ResultPostError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ResultPostError{Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if c.WorkerHost != "" {
		req.Header.Set(WorkerHostHeader, c.WorkerHost)
	}
	return req, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNull(job json.RawMessage) bool {
	trimmed := bytes.TrimSpace(job)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseServerArg parses the coordinator address handed to workers on their
// command line, in the form server:<host>:<port>. The port defaults to 8080.
// It returns host:port.
func ParseServerArg(arg string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(arg), "server:")
	if !ok || rest == "" {
		return "", fmt.Errorf("invalid server argument %q: expected server:<host>:<port>", arg)
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		// no port given
		host, port = strings.Trim(rest, "[]"), DefaultPort
	}
	if host == "" {
		return "", fmt.Errorf("invalid server argument %q: missing host", arg)
	}
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(host, port), nil
}

// LocalAddress returns the local IP used to reach server (host:port). On a
// cloud instance with a public interface this is the address the provider
// reported for it.
func LocalAddress(server string) (string, error) {
	conn, err := net.Dial("udp", server)
	if err != nil {
		return "", fmt.Errorf("failed to determine local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %s", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
