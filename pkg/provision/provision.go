package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
	"github.com/cuemby/gofast/pkg/provider"
	"github.com/cuemby/gofast/pkg/storage"
	"github.com/cuemby/gofast/pkg/types"
)

// ErrTimeout is returned when an instance does not become active within the poll ceiling
var ErrTimeout = errors.New("instance did not become active in time")

// Error reports a rejected create request. Submission is never retried.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to provision %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransitionFunc applies a validated status change to a worker
type TransitionFunc func(w *types.Worker, to types.WorkerStatus) error

// DirectTransition changes the worker status in place
func DirectTransition(w *types.Worker, to types.WorkerStatus) error {
	_, err := w.Transition(to)
	return err
}

// Config holds the instance template and polling bounds
type Config struct {
	Template     types.InstanceTemplate
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Provisioner turns a name into an active instance with an address
type Provisioner struct {
	provider   provider.Provider
	config     Config
	ledger     storage.Ledger
	role       storage.Role
	transition TransitionFunc
	locker     sync.Locker
	logger     zerolog.Logger
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithLedger records created instances and removes them on destroy
func WithLedger(l storage.Ledger) Option {
	return func(p *Provisioner) { p.ledger = l }
}

// WithRole sets the role stored in the ledger (worker by default)
func WithRole(r storage.Role) Option {
	return func(p *Provisioner) { p.role = r }
}

// WithTransitions routes lifecycle changes through fn
func WithTransitions(fn TransitionFunc) Option {
	return func(p *Provisioner) { p.transition = fn }
}

// WithLocker guards writes to the worker's InstanceID and Address with l,
// for callers that read workers from other goroutines
func WithLocker(l sync.Locker) Option {
	return func(p *Provisioner) { p.locker = l }
}

// New creates a new provisioner
func New(prov provider.Provider, cfg Config, opts ...Option) *Provisioner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}

	p := &Provisioner{
		provider:   prov,
		config:     cfg,
		role:       storage.RoleWorker,
		transition: DirectTransition,
		locker:     noLock{},
		logger:     log.WithComponent("provision"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// NewWorker returns a worker in the requested state
func NewWorker(name string) *types.Worker {
	now := time.Now()
	return &types.Worker{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    types.WorkerStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create requests a new instance for w and blocks until it is active.
//
// w moves requested -> provisioning when the create request is accepted and
// provisioning -> active once the provider reports it running with an
// address. When Create fails after the provider accepted the request,
// w.InstanceID is set so the caller can destroy the instance.
func (p *Provisioner) Create(ctx context.Context, w *types.Worker) error {
	timer := metrics.NewTimer()

	inst, err := p.provider.CreateInstance(ctx, provider.Spec{
		Name:     w.Name,
		Template: p.config.Template,
	})
	if err != nil {
		return &Error{Name: w.Name, Err: err}
	}
	p.locker.Lock()
	w.InstanceID = inst.ID
	p.locker.Unlock()

	if p.ledger != nil {
		if err := p.ledger.Record(&storage.Instance{
			ID:   inst.ID,
			Name: w.Name,
			Role: p.role,
		}); err != nil {
			p.logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("Failed to record instance in ledger")
		}
	}

	if err := p.transition(w, types.WorkerStatusProvisioning); err != nil {
		return err
	}

	p.logger.Info().
		Str("worker", w.Name).
		Str("instance_id", inst.ID).
		Msg("Instance requested, waiting for it to become active")

	inst, err = p.waitForActive(ctx, inst)
	if err != nil {
		return err
	}
	p.locker.Lock()
	w.Address = inst.Address
	p.locker.Unlock()

	if p.ledger != nil {
		if err := p.ledger.Record(&storage.Instance{
			ID:      inst.ID,
			Name:    w.Name,
			Address: inst.Address,
			Role:    p.role,
		}); err != nil {
			p.logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("Failed to update instance in ledger")
		}
	}

	if err := p.transition(w, types.WorkerStatusActive); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.ProvisionDuration)

	p.logger.Info().
		Str("worker", w.Name).
		Str("address", w.Address).
		Dur("elapsed", timer.Duration()).
		Msg("Instance active")

	return nil
}

func (p *Provisioner) waitForActive(ctx context.Context, inst provider.Instance) (provider.Instance, error) {
	if inst.Active() {
		return inst, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return inst, err
			}
			return inst, fmt.Errorf("instance %s after %s: %w", inst.ID, p.config.PollTimeout, ErrTimeout)
		case <-ticker.C:
			current, err := p.provider.GetInstance(pollCtx, inst.ID)
			if err != nil {
				if errors.Is(err, provider.ErrNotFound) {
					return inst, &Error{Name: inst.Name, Err: err}
				}
				p.logger.Debug().Err(err).Str("instance_id", inst.ID).Msg("Status poll failed, retrying")
				continue
			}
			if current.Active() {
				return current, nil
			}
			p.logger.Debug().
				Str("instance_id", inst.ID).
				Str("status", current.Status).
				Msg("Instance not active yet")
		}
	}
}

// Destroy deletes an instance. An instance the provider no longer knows
// counts as destroyed.
func (p *Provisioner) Destroy(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return nil
	}

	err := p.provider.DeleteInstance(ctx, instanceID)
	if err != nil && !errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("failed to destroy instance %s: %w", instanceID, err)
	}

	if p.ledger != nil {
		if err := p.ledger.Remove(instanceID); err != nil {
			p.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("Failed to remove instance from ledger")
		}
	}

	p.logger.Info().Str("instance_id", instanceID).Msg("Instance destroyed")
	return nil
}
