package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSession struct{}

func (nopSession) Run(context.Context, string) (ExecResult, error) { return ExecResult{}, nil }
func (nopSession) Start(context.Context, string) (Process, error) { return nil, nil }
func (nopSession) Upload(context.Context, string, string) error { return nil }
func (nopSession) Close() error { return nil }

// flakyConnector fails the first failures calls
type flakyConnector struct {
	failures int32
	calls    int32
}

func (f *flakyConnector) Connect(ctx context.Context, address string) (Session, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, fmt.Errorf("dial tcp %s:22: connection refused", address)
	}
	return nopSession{}, nil
}

func TestDialerRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   bool
		wantCalls int32
	}{
		{"first attempt", 0, false, 1},
		{"succeeds on sixth attempt", 5, false, 6},
		{"gives up after six attempts", 6, true, 6},
		{"never reachable", 100, true, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &flakyConnector{failures: tt.failures}
			d := NewDialer(c, 6, time.Millisecond)

			session, err := d.Connect(context.Background(), "10.0.0.1")
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&c.calls))

			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, session)
				return
			}

			var connErr *ConnectError
			require.True(t, errors.As(err, &connErr))
			assert.Equal(t, "10.0.0.1", connErr.Address)
			assert.Equal(t, 6, connErr.Attempts)
			assert.Contains(t, connErr.Error(), "connection refused")
		})
	}
}

func TestDialerWaitsBetweenAttempts(t *testing.T) {
	c := &flakyConnector{failures: 2}
	d := NewDialer(c, 6, 20*time.Millisecond)

	start := time.Now()
	_, err := d.Connect(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDialerContextCancelled(t *testing.T) {
	c := &flakyConnector{failures: 100}
	d := NewDialer(c, 6, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Connect(ctx, "10.0.0.1")
	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, connErr.Attempts, 6)
}

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer(&flakyConnector{}, 0, 0)
	assert.Equal(t, DefaultAttempts, d.Attempts)
	assert.Equal(t, DefaultDelay, d.Delay)
}

func TestForwardOutput(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	var capture cappedBuffer

	input := strings.Join([]string{
		"Reading package lists...",
		`{"level":50,"msg":"worker crashed","job":7}`,
		"",
		"Done",
	}, "\n")

	forwardOutput(strings.NewReader(input), &capture, logger, zerolog.WarnLevel)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 3)

	var first, record, last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &record))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))

	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "Reading package lists...", first["message"])
	assert.Equal(t, "error", record["level"])
	assert.Equal(t, "worker crashed", record["message"])
	assert.Equal(t, "worker", record["origin"])
	assert.Equal(t, "Done", last["message"])

	assert.Contains(t, capture.String(), "Reading package lists...")
	assert.Contains(t, capture.String(), "Done")
}

func TestCappedBuffer(t *testing.T) {
	var c cappedBuffer
	chunk := bytes.Repeat([]byte("x"), captureLimit-10)

	n, err := c.Write(chunk)
	require.NoError(t, err)
	assert.Equal(t, len(chunk), n)

	n, err = c.Write(bytes.Repeat([]byte("y"), 100))
	require.NoError(t, err)
	assert.Equal(t, 100, n, "writes report full length even when truncated")
	assert.Len(t, c.String(), captureLimit)
}

func TestServeForward(t *testing.T) {
	// stands in for the coordinator's local dispatch listener
	local, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer local.Close()
	go func() {
		for {
			conn, err := local.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()

	// stands in for the listener opened on the proxy instance
	remote, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go serveForward(remote, local.Addr().String(), zerolog.Nop())

	conn, err := net.Dial("tcp", remote.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /job"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "GET /job", string(buf))

	require.NoError(t, remote.Close())
}

func TestErrorMessages(t *testing.T) {
	execErr := &ExecError{Command: "apt-get update", ExitCode: 100}
	assert.Equal(t, `command "apt-get update" exited with status 100`, execErr.Error())

	cause := errors.New("permission denied")
	upErr := &UploadError{Local: "a.tgz", Remote: "/root/a.tgz", Err: cause}
	assert.True(t, errors.Is(upErr, cause))
}
