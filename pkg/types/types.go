package types

import (
	"fmt"
	"strings"
	"time"
)

// Worker represents one provisioned remote instance in the fleet
type Worker struct {
	ID         string
	Name       string
	Address    string // Primary network address reported by the provider
	InstanceID string // Provider handle used for destruction
	Status     WorkerStatus
	Error      string // Last chain error, set when Status is failed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WorkerStatus represents the lifecycle state of a worker
type WorkerStatus string

const (
	WorkerStatusRequested    WorkerStatus = "requested"
	WorkerStatusProvisioning WorkerStatus = "provisioning"
	WorkerStatusActive       WorkerStatus = "active"
	WorkerStatusConfiguring  WorkerStatus = "configuring"
	WorkerStatusRunning      WorkerStatus = "running"
	WorkerStatusShuttingDown WorkerStatus = "shutting_down"
	WorkerStatusDestroyed    WorkerStatus = "destroyed"

	// WorkerStatusFailed is terminal for chains aborted before running
	WorkerStatusFailed WorkerStatus = "failed"
)

// transitions lists the allowed successor states for each state
var transitions = map[WorkerStatus][]WorkerStatus{
	WorkerStatusRequested:    {WorkerStatusProvisioning, WorkerStatusFailed},
	WorkerStatusProvisioning: {WorkerStatusActive, WorkerStatusFailed},
	WorkerStatusActive:       {WorkerStatusConfiguring, WorkerStatusShuttingDown, WorkerStatusFailed},
	WorkerStatusConfiguring:  {WorkerStatusRunning, WorkerStatusShuttingDown, WorkerStatusFailed},
	WorkerStatusRunning:      {WorkerStatusShuttingDown},
	WorkerStatusShuttingDown: {WorkerStatusDestroyed},
	WorkerStatusFailed:       {WorkerStatusDestroyed},
}

// AllStatuses returns every lifecycle state in lifecycle order
func AllStatuses() []WorkerStatus {
	return []WorkerStatus{
		WorkerStatusRequested,
		WorkerStatusProvisioning,
		WorkerStatusActive,
		WorkerStatusConfiguring,
		WorkerStatusRunning,
		WorkerStatusShuttingDown,
		WorkerStatusDestroyed,
		WorkerStatusFailed,
	}
}

// CanTransition reports whether moving from s to next is a valid lifecycle step
func (s WorkerStatus) CanTransition(next WorkerStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Registered reports whether a worker in this state belongs in the registry
func (s WorkerStatus) Registered() bool {
	switch s {
	case WorkerStatusActive, WorkerStatusConfiguring, WorkerStatusRunning, WorkerStatusShuttingDown:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected
func (s WorkerStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition moves the worker to next, rejecting edges the lifecycle does not allow
func (w *Worker) Transition(next WorkerStatus) (WorkerStatus, error) {
	from := w.Status
	if !from.CanTransition(next) {
		return from, fmt.Errorf("invalid transition for worker %s: %s -> %s", w.ID, from, next)
	}
	w.Status = next
	w.UpdatedAt = time.Now()
	return from, nil
}

// Operation is the closed set of setup operations
type Operation string

const (
	OperationExec   Operation = "exec"
	OperationUpload Operation = "upload"
)

// ParseOperation resolves an operation tag, rejecting unknown values
func ParseOperation(tag string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(tag))); op {
	case OperationExec, OperationUpload:
		return op, nil
	default:
		return "", fmt.Errorf("unknown setup operation %q", tag)
	}
}

// SetupCommand is one step of the remote configuration pipeline
type SetupCommand struct {
	Op   Operation
	Args []string
}

// Validate checks the arguments required by the operation
func (c SetupCommand) Validate() error {
	switch c.Op {
	case OperationExec:
		if len(c.Args) == 0 || strings.TrimSpace(strings.Join(c.Args, " ")) == "" {
			return fmt.Errorf("exec requires a command")
		}
	case OperationUpload:
		if len(c.Args) != 2 || c.Args[0] == "" || c.Args[1] == "" {
			return fmt.Errorf("upload requires exactly a local and a remote path")
		}
	default:
		return fmt.Errorf("unknown setup operation %q", c.Op)
	}
	return nil
}

// Command returns the shell command line for exec steps
func (c SetupCommand) Command() string {
	return strings.Join(c.Args, " ")
}

func (c SetupCommand) String() string {
	switch c.Op {
	case OperationUpload:
		return fmt.Sprintf("upload %s -> %s", c.Args[0], c.Args[1])
	default:
		return fmt.Sprintf("%s %s", c.Op, c.Command())
	}
}

// InstanceTemplate describes the instances requested from the provider
type InstanceTemplate struct {
	Region  string
	Size    string
	Image   string
	SSHKeys []string // Key fingerprints or IDs registered with the provider
	Tags    []string
}

// Credentials holds provider and shell access secrets
type Credentials struct {
	Token      string
	SSHUser    string
	SSHKeyPath string
}

// Artifact describes the packaged worker code shipped to each worker
type Artifact struct {
	Path       string // Local artifact path (built when Build is set)
	Build      string // Optional local packaging command
	BuildDir   string
	RemotePath string
}

// Timeouts holds the fixed waits used by the fleet
type Timeouts struct {
	ConnectAttempts int
	ConnectDelay    time.Duration
	PollInterval    time.Duration
	PollTimeout     time.Duration
	FetchTimeout    time.Duration
}

// FleetConfig is loaded once at startup and immutable for the run
type FleetConfig struct {
	Concurrency  int
	Proxy        bool
	Port         int
	NamePrefix   string
	StartCommand string
	Setup        []SetupCommand
	Template     InstanceTemplate
	Credentials  Credentials
	Artifact     Artifact
	Timeouts     Timeouts
	DataDir      string
}
