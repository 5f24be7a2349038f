package setup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/remote/remotetest"
	"github.com/cuemby/gofast/pkg/types"
)

func exec(cmd string) types.SetupCommand {
	return types.SetupCommand{Op: types.OperationExec, Args: strings.Fields(cmd)}
}

func upload(local, remotePath string) types.SetupCommand {
	return types.SetupCommand{Op: types.OperationUpload, Args: []string{local, remotePath}}
}

func TestPipelineRunsInOrder(t *testing.T) {
	session := &remotetest.Session{}
	steps := []types.SetupCommand{
		upload("worker.tgz", "/root/worker.tgz"),
		exec("apt-get update"),
		exec("tar xzf /root/worker.tgz"),
	}

	err := NewPipeline(zerolog.Nop()).Run(context.Background(), session, steps)
	require.NoError(t, err)

	assert.Equal(t, []remotetest.Call{
		{Op: "upload", Args: []string{"worker.tgz", "/root/worker.tgz"}},
		{Op: "run", Args: []string{"apt-get update"}},
		{Op: "run", Args: []string{"tar xzf /root/worker.tgz"}},
	}, session.Calls())
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	session := &remotetest.Session{
		RunFunc: func(cmd string) (remote.ExecResult, error) {
			if cmd == "npm install" {
				return remote.ExecResult{ExitCode: 1}, &remote.ExecError{Command: cmd, ExitCode: 1}
			}
			return remote.ExecResult{}, nil
		},
	}
	steps := []types.SetupCommand{
		exec("apt-get update"),
		exec("npm install"),
		exec("npm start"),
	}

	err := NewPipeline(zerolog.Nop()).Run(context.Background(), session, steps)

	var setupErr *Error
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, 1, setupErr.Index)
	assert.Equal(t, "exec npm install", setupErr.Command.String())

	var execErr *remote.ExecError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Len(t, session.Calls(), 2, "no step after the failure runs")
}

func TestPipelineUploadFailure(t *testing.T) {
	session := &remotetest.Session{
		UploadFunc: func(local, remotePath string) error {
			return &remote.UploadError{Local: local, Remote: remotePath, Err: errors.New("no such file")}
		},
	}

	err := NewPipeline(zerolog.Nop()).Run(context.Background(), session, []types.SetupCommand{upload("missing.tgz", "/root/x")})

	var setupErr *Error
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, 0, setupErr.Index)
	var upErr *remote.UploadError
	assert.True(t, errors.As(err, &upErr))
}

func TestPipelineEmpty(t *testing.T) {
	session := &remotetest.Session{}
	require.NoError(t, NewPipeline(zerolog.Nop()).Run(context.Background(), session, nil))
	assert.Empty(t, session.Calls())
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &remotetest.Session{}
	err := NewPipeline(zerolog.Nop()).Run(ctx, session, []types.SetupCommand{exec("true")})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, session.Calls())
}

func TestPipelineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// steps are exec commands "step-<i>"; failAt < 0 means nothing fails
	properties.Property("executes a prefix ending at the first failure", prop.ForAll(
		func(n int, failAt int) bool {
			steps := make([]types.SetupCommand, n)
			for i := range steps {
				steps[i] = types.SetupCommand{Op: types.OperationExec, Args: []string{"step", string(rune('a' + i))}}
			}
			failing := ""
			if failAt >= 0 && failAt < n {
				failing = steps[failAt].Command()
			}

			session := &remotetest.Session{
				RunFunc: func(cmd string) (remote.ExecResult, error) {
					if cmd == failing {
						return remote.ExecResult{ExitCode: 2}, &remote.ExecError{Command: cmd, ExitCode: 2}
					}
					return remote.ExecResult{}, nil
				},
			}
			err := NewPipeline(zerolog.Nop()).Run(context.Background(), session, steps)
			calls := session.Calls()

			for i, call := range calls {
				if call.Args[0] != steps[i].Command() {
					return false
				}
			}

			if failing == "" {
				return err == nil && len(calls) == n
			}
			var setupErr *Error
			return errors.As(err, &setupErr) && setupErr.Index == failAt && len(calls) == failAt+1
		},
		gen.IntRange(0, 20),
		gen.IntRange(-1, 20),
	))

	properties.TestingRun(t)
}
