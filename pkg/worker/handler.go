package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// JobHandler processes one job. A nil result means there is nothing to post.
type JobHandler interface {
	Handle(ctx context.Context, job json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to JobHandler
type HandlerFunc func(ctx context.Context, job json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, job json.RawMessage) (json.RawMessage, error) {
	return f(ctx, job)
}

// ExecHandler runs a local command per job. The job is written to the
// command's stdin and its stdout becomes the result: valid JSON is passed
// through, anything else is posted as a JSON string. Empty output posts
// nothing.
type ExecHandler struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// NewExecHandler splits a command line on whitespace
func NewExecHandler(commandLine string) (*ExecHandler, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("exec handler requires a command")
	}
	return &ExecHandler{Command: fields[0], Args: fields[1:]}, nil
}

func (h *ExecHandler) Handle(ctx context.Context, job json.RawMessage) (json.RawMessage, error) {
	cmd := exec.CommandContext(ctx, h.Command, h.Args...)
	cmd.Dir = h.Dir
	if len(h.Env) > 0 {
		cmd.Env = append(os.Environ(), h.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(job)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result, encErr := encodeOutput(stdout.Bytes())
	if encErr != nil {
		return nil, encErr
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return result, fmt.Errorf("job command failed: %w", err)
		}
		return result, fmt.Errorf("job command failed: %w: %s", err, msg)
	}
	return result, nil
}

func encodeOutput(out []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	encoded, err := json.Marshal(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to encode job output: %w", err)
	}
	return encoded, nil
}
