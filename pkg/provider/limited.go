package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited wraps a Provider so that every API call shares one rate limiter.
// Concurrent chains polling instance status would otherwise exceed the
// provider's request quota at high concurrency.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited allows rps requests per second with the given burst
func NewLimited(p Provider, rps float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (l *Limited) CreateInstance(ctx context.Context, spec Spec) (Instance, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Instance{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Provider.CreateInstance(ctx, spec)
}

func (l *Limited) GetInstance(ctx context.Context, id string) (Instance, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Instance{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Provider.GetInstance(ctx, id)
}

func (l *Limited) DeleteInstance(ctx context.Context, id string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Provider.DeleteInstance(ctx, id)
}
