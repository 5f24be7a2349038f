package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerStatusCanTransition(t *testing.T) {
	tests := []struct {
		from     WorkerStatus
		to       WorkerStatus
		expected bool
	}{
		{WorkerStatusRequested, WorkerStatusProvisioning, true},
		{WorkerStatusProvisioning, WorkerStatusActive, true},
		{WorkerStatusActive, WorkerStatusConfiguring, true},
		{WorkerStatusConfiguring, WorkerStatusRunning, true},
		{WorkerStatusRunning, WorkerStatusShuttingDown, true},
		{WorkerStatusShuttingDown, WorkerStatusDestroyed, true},
		{WorkerStatusConfiguring, WorkerStatusShuttingDown, true},
		{WorkerStatusConfiguring, WorkerStatusFailed, true},
		{WorkerStatusFailed, WorkerStatusDestroyed, true},

		{WorkerStatusRequested, WorkerStatusActive, false},
		{WorkerStatusActive, WorkerStatusRunning, false},
		{WorkerStatusRunning, WorkerStatusDestroyed, false},
		{WorkerStatusRunning, WorkerStatusFailed, false},
		{WorkerStatusDestroyed, WorkerStatusRequested, false},
		{WorkerStatusShuttingDown, WorkerStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransition(tt.to))
		})
	}
}

func TestWorkerStatusRegistered(t *testing.T) {
	registered := map[WorkerStatus]bool{
		WorkerStatusRequested:    false,
		WorkerStatusProvisioning: false,
		WorkerStatusActive:       true,
		WorkerStatusConfiguring:  true,
		WorkerStatusRunning:      true,
		WorkerStatusShuttingDown: true,
		WorkerStatusDestroyed:    false,
		WorkerStatusFailed:       false,
	}

	for status, expected := range registered {
		assert.Equal(t, expected, status.Registered(), "status %s", status)
	}
	assert.True(t, WorkerStatusDestroyed.Terminal())
	assert.False(t, WorkerStatusFailed.Terminal())
}

func TestWorkerTransition(t *testing.T) {
	w := &Worker{ID: "w-1", Status: WorkerStatusRequested}

	from, err := w.Transition(WorkerStatusProvisioning)
	assert.NoError(t, err)
	assert.Equal(t, WorkerStatusRequested, from)
	assert.Equal(t, WorkerStatusProvisioning, w.Status)
	assert.False(t, w.UpdatedAt.IsZero())

	_, err = w.Transition(WorkerStatusRunning)
	assert.Error(t, err)
	assert.Equal(t, WorkerStatusProvisioning, w.Status, "rejected transition leaves status unchanged")
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("exec")
	assert.NoError(t, err)
	assert.Equal(t, OperationExec, op)

	op, err = ParseOperation(" Upload ")
	assert.NoError(t, err)
	assert.Equal(t, OperationUpload, op)

	_, err = ParseOperation("reboot")
	assert.Error(t, err)
}

func TestSetupCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     SetupCommand
		wantErr bool
	}{
		{"exec ok", SetupCommand{Op: OperationExec, Args: []string{"apt-get", "update"}}, false},
		{"exec empty", SetupCommand{Op: OperationExec}, true},
		{"exec blank", SetupCommand{Op: OperationExec, Args: []string{"  "}}, true},
		{"upload ok", SetupCommand{Op: OperationUpload, Args: []string{"a.tgz", "/root/a.tgz"}}, false},
		{"upload missing remote", SetupCommand{Op: OperationUpload, Args: []string{"a.tgz"}}, true},
		{"unknown op", SetupCommand{Op: "reboot", Args: []string{"now"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupCommandString(t *testing.T) {
	assert.Equal(t, "exec apt-get update", SetupCommand{Op: OperationExec, Args: []string{"apt-get", "update"}}.String())
	assert.Equal(t, "upload a -> b", SetupCommand{Op: OperationUpload, Args: []string{"a", "b"}}.String())
}
