package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
)

// DefaultRetryPause is the wait after a failed fetch other than a timeout
const DefaultRetryPause = 2 * time.Second

// Loop is the worker's fetch, handle, post cycle
type Loop struct {
	client     *Client
	handler    JobHandler
	logger     zerolog.Logger
	retryPause time.Duration

	handled int
}

// Option configures a Loop
type Option func(*Loop)

// WithRetryPause sets the wait after a failed fetch
func WithRetryPause(d time.Duration) Option {
	return func(l *Loop) {
		l.retryPause = d
	}
}

// WithLogger replaces the component logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a poll loop
func NewLoop(client *Client, handler JobHandler, opts ...Option) *Loop {
	l := &Loop{
		client:     client,
		handler:    handler,
		logger:     log.WithComponent("worker"),
		retryPause: DefaultRetryPause,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls until the coordinator hands out a null job (returns nil) or ctx
// is cancelled (returns the context error). Fetch, handler and post errors
// are logged and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Str("server", l.client.BaseURL).Msg("Worker polling for jobs")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := l.client.FetchJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrFetchTimeout) {
				l.logger.Warn().Err(err).Msg("Job fetch timed out, retrying")
				continue
			}
			l.logger.Error().Err(err).Msg("Job fetch failed")
			if !l.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		if isNull(job) {
			l.logger.Info().Int("handled", l.handled).Msg("No more jobs")
			return nil
		}

		l.process(ctx, job)
	}
}

// Handled returns how many jobs the loop has run
func (l *Loop) Handled() int {
	return l.handled
}

func (l *Loop) process(ctx context.Context, job json.RawMessage) {
	l.handled++
	start := time.Now()

	result, err := l.handler.Handle(ctx, job)
	if err != nil {
		l.logger.Error().Err(err).Int("job", l.handled).Msg("Job handler failed")
	} else {
		l.logger.Debug().Int("job", l.handled).Dur("duration", time.Since(start)).Msg("Job handled")
	}

	if len(result) == 0 {
		return
	}
	if err := l.client.PostResult(ctx, result); err != nil {
		l.logger.Error().Err(err).Int("job", l.handled).Msg("Result not delivered")
	}
}

func (l *Loop) pause(ctx context.Context) bool {
	if l.retryPause <= 0 {
		return true
	}
	timer := time.NewTimer(l.retryPause)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
