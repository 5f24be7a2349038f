package setup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/metrics"
	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/types"
)

// Error reports the first setup step that failed
type Error struct {
	Index   int
	Command types.SetupCommand
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("setup step %d (%s) failed: %v", e.Index, e.Command, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline replays setup commands on a worker session
type Pipeline struct {
	logger zerolog.Logger
}

// NewPipeline creates a pipeline that logs under the given worker logger
func NewPipeline(logger zerolog.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Run executes steps strictly in order and stops at the first failure.
// Completed steps are not rolled back.
func (p *Pipeline) Run(ctx context.Context, session remote.Session, steps []types.SetupCommand) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &Error{Index: i, Command: step, Err: err}
		}

		p.logger.Debug().Int("step", i).Str("cmd", step.String()).Msg("Setup step starting")
		timer := metrics.NewTimer()

		if err := p.runStep(ctx, session, step); err != nil {
			p.logger.Error().Err(err).Int("step", i).Str("cmd", step.String()).Msg("Setup step failed")
			return &Error{Index: i, Command: step, Err: err}
		}

		timer.ObserveDurationVec(metrics.SetupStepDuration, string(step.Op))
		p.logger.Debug().
			Int("step", i).
			Str("cmd", step.String()).
			Dur("elapsed", timer.Duration()).
			Msg("Setup step done")
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, session remote.Session, step types.SetupCommand) error {
	switch step.Op {
	case types.OperationExec:
		_, err := session.Run(ctx, step.Command())
		return err
	case types.OperationUpload:
		if len(step.Args) != 2 {
			return fmt.Errorf("upload requires a local and a remote path, got %d args", len(step.Args))
		}
		return session.Upload(ctx, step.Args[0], step.Args[1])
	default:
		return fmt.Errorf("unknown setup operation %q", step.Op)
	}
}
