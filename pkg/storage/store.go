package storage

import (
	"time"
)

// Role distinguishes fleet workers from the auxiliary proxy instance
type Role string

const (
	RoleWorker Role = "worker"
	RoleProxy  Role = "proxy"
)

// Instance is a ledger entry for a provider instance created by gofast
type Instance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger records every instance that was created and not yet destroyed,
// so a crashed run can be cleaned up with `gofast reap`
type Ledger interface {
	Record(inst *Instance) error
	Remove(id string) error
	Get(id string) (*Instance, error)
	List() ([]*Instance, error)
	Close() error
}
