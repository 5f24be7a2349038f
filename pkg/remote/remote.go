package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
)

const (
	// DefaultAttempts is the number of connection attempts before giving up
	DefaultAttempts = 6

	// DefaultDelay is the fixed wait between connection attempts
	DefaultDelay = 5 * time.Second
)

// ExecResult is the outcome of one remote command
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Process is a remote command that has been started and may still be running
type Process interface {
	// Wait blocks until the command exits
	Wait() error
}

// Session is an authenticated shell session on one worker
type Session interface {
	// Run executes cmd and waits for it to finish. A non-zero exit is an *ExecError.
	Run(ctx context.Context, cmd string) (ExecResult, error)

	// Start launches cmd and returns as soon as it is running
	Start(ctx context.Context, cmd string) (Process, error)

	// Upload copies a local file to remotePath
	Upload(ctx context.Context, localPath, remotePath string) error

	Close() error
}

// Forwarder is implemented by sessions that can open a remote listener
// and forward each accepted connection to a local address
type Forwarder interface {
	ReverseForward(remoteBind, localAddr string) (io.Closer, error)
}

// Connector opens sessions to worker addresses
type Connector interface {
	Connect(ctx context.Context, address string) (Session, error)
}

// ConnectError is returned when every connection attempt failed
type ConnectError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExecError is returned when a remote command exits non-zero or cannot be run
type ExecError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// UploadError is returned when a file transfer fails
type UploadError struct {
	Local  string
	Remote string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s to %s: %v", e.Local, e.Remote, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Dialer wraps a Connector with a bounded, fixed-delay retry. Freshly
// booted instances usually refuse connections until sshd is up.
type Dialer struct {
	Connector Connector
	Attempts  int
	Delay     time.Duration

	logger zerolog.Logger
}

// NewDialer creates a dialer with the given bounds; zero values use the defaults
func NewDialer(c Connector, attempts int, delay time.Duration) *Dialer {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Dialer{
		Connector: c,
		Attempts:  attempts,
		Delay:     delay,
		logger:    log.WithComponent("remote"),
	}
}

// Connect tries up to Attempts times, waiting Delay between tries
func (d *Dialer) Connect(ctx context.Context, address string) (Session, error) {
	var (
		session Session
		tries   int
	)

	operation := func() error {
		tries++
		s, err := d.Connector.Connect(ctx, address)
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Debug().
			Err(err).
			Str("address", address).
			Int("attempt", tries).
			Int("max_attempts", d.Attempts).
			Dur("retry_in", wait).
			Msg("Connection attempt failed")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.Delay), uint64(d.Attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ConnectError{Address: address, Attempts: tries, Err: err}
	}

	d.logger.Debug().Str("address", address).Int("attempts", tries).Msg("Connected")
	return session, nil
}
