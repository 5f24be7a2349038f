package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result is the outcome of one check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker runs a single reachability check
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls how Wait polls a checker
type Config struct {
	Interval time.Duration // pause between failed checks
	Timeout  time.Duration // bound on each check, none when zero
	Retries  int           // failed checks before giving up
}

// DefaultConfig returns the settings used to verify the reverse tunnel
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  5,
	}
}

// Wait runs checker until it passes, Retries consecutive checks have
// failed, or ctx is done. The last result is always returned.
func Wait(ctx context.Context, checker Checker, config Config) (Result, error) {
	if config.Retries < 1 {
		config.Retries = 1
	}

	for attempt := 1; ; attempt++ {
		result := check(ctx, checker, config.Timeout)
		if result.Healthy {
			return result, nil
		}
		if attempt >= config.Retries {
			return result, fmt.Errorf("%s check failed after %d attempts: %s", checker.Type(), attempt, result.Message)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(config.Interval):
		}
	}
}

func check(ctx context.Context, checker Checker, timeout time.Duration) Result {
	if timeout <= 0 {
		return checker.Check(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return checker.Check(ctx)
}
