package provider

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks github.com/cuemby/gofast/pkg/provider Provider

import (
	"context"
	"errors"

	"github.com/cuemby/gofast/pkg/types"
)

// StatusActive is the provider status of an instance that is booted and reachable
const StatusActive = "active"

// ErrNotFound is returned when the provider no longer knows an instance
var ErrNotFound = errors.New("instance not found")

// Spec is a request for one new instance
type Spec struct {
	Name     string
	Template types.InstanceTemplate
}

// Instance is the provider's view of a created instance
type Instance struct {
	ID      string
	Name    string
	Status  string
	Address string // Primary public address, empty until assigned
}

// Active reports whether the instance is running and has an address
func (i Instance) Active() bool {
	return i.Status == StatusActive && i.Address != ""
}

// Provider creates, inspects and destroys remote compute instances
type Provider interface {
	CreateInstance(ctx context.Context, spec Spec) (Instance, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	DeleteInstance(ctx context.Context, id string) error
}
