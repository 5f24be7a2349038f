package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/types"
)

var (
	// ErrDuplicate is returned when a worker with the same address is already registered
	ErrDuplicate = errors.New("worker address already registered")

	// ErrNotFound is returned when no registered worker has the address
	ErrNotFound = errors.New("no worker registered at address")
)

// Registry is the set of workers that can currently be shut down by address.
// All operations are serialized by one mutex.
type Registry struct {
	mu      sync.Mutex
	workers []*types.Worker
	logger  zerolog.Logger
}

// New creates an empty registry
func New() *Registry {
	return &Registry{logger: log.WithComponent("registry")}
}

// Register adds w, keyed by its address
func (r *Registry) Register(w *types.Worker) error {
	if w.Address == "" {
		return fmt.Errorf("worker %s has no address", w.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workers {
		if existing.Address == w.Address {
			return fmt.Errorf("%w: %s", ErrDuplicate, w.Address)
		}
	}
	r.workers = append(r.workers, w)
	return nil
}

// LookupAndRemove removes the worker registered at address and reports
// whether this removal left the registry empty. Only one caller ever sees
// emptied == true for a given fill of the registry.
func (r *Registry) LookupAndRemove(address string) (*types.Worker, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := -1
	matches := 0
	for i, w := range r.workers {
		if w.Address == address {
			if index < 0 {
				index = i
			}
			matches++
		}
	}

	if index < 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if matches > 1 {
		r.logger.Warn().Str("address", address).Int("matches", matches).Msg("Multiple workers registered at one address, removing the first")
	}

	w := r.workers[index]
	r.workers = append(r.workers[:index], r.workers[index+1:]...)
	return w, len(r.workers) == 0, nil
}

// Remove deletes the worker with the given id, if registered, and reports
// whether the registry is now empty
func (r *Registry) Remove(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, w := range r.workers {
		if w.ID == id {
			r.workers = append(r.workers[:i], r.workers[i+1:]...)
			return true, len(r.workers) == 0
		}
	}
	return false, len(r.workers) == 0
}

// Lookup returns the worker registered at address without removing it
func (r *Registry) Lookup(address string) (*types.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.workers {
		if w.Address == address {
			return w, true
		}
	}
	return nil, false
}

// Len returns the number of registered workers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Empty reports whether no worker is registered
func (r *Registry) Empty() bool {
	return r.Len() == 0
}

// List returns the registered workers in registration order
func (r *Registry) List() []*types.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Worker(nil), r.workers...)
}
