package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecHandler(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		job      string
		expected string
		wantErr  bool
	}{
		{"json passthrough", "cat", `{"n":1}`, `{"n":1}`, false},
		{"plain output becomes string", "echo done", `1`, `"done"`, false},
		{"no output", "true", `1`, "", false},
		{"failing command", "false", `1`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewExecHandler(tt.command)
			require.NoError(t, err)

			result, err := h.Handle(context.Background(), json.RawMessage(tt.job))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestExecHandlerStderrInError(t *testing.T) {
	h := &ExecHandler{Command: "sh", Args: []string{"-c", "echo partial; echo bad input >&2; exit 3"}}
	result, err := h.Handle(context.Background(), json.RawMessage(`1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
	assert.Equal(t, `"partial"`, string(result))
}

func TestNewExecHandlerEmpty(t *testing.T) {
	_, err := NewExecHandler("   ")
	assert.Error(t, err)
}
