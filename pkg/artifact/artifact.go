package artifact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/types"
)

// Builder produces the local file shipped to every worker
type Builder interface {
	// Build returns the local artifact path, or "" when there is nothing to ship
	Build(ctx context.Context) (string, error)
}

// New picks the builder for an artifact definition
func New(a types.Artifact) Builder {
	switch {
	case a.Build != "":
		return &CommandBuilder{Command: a.Build, Dir: a.BuildDir, Output: a.Path}
	case a.Path != "":
		return Static{Path: a.Path}
	default:
		return None{}
	}
}

// None ships nothing
type None struct{}

func (None) Build(context.Context) (string, error) {
	return "", nil
}

// Static ships an existing file
type Static struct {
	Path string
}

func (s Static) Build(context.Context) (string, error) {
	return checkFile(s.Path)
}

// CommandBuilder runs a local packaging command (npm pack, go build, tar ...)
// through the shell and ships the file it leaves at Output. A relative Output
// is resolved against Dir.
type CommandBuilder struct {
	Command string
	Dir     string
	Output  string

	// Shell defaults to /bin/sh
	Shell string
}

func (b *CommandBuilder) Build(ctx context.Context) (string, error) {
	logger := log.WithComponent("artifact")
	shell := b.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", b.Command)
	cmd.Dir = b.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to build artifact: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to build artifact: %w", err)
	}

	logger.Info().Str("command", b.Command).Str("dir", b.Dir).Msg("Building artifact")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start artifact build: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logLines(stdout, logger, zerolog.DebugLevel)
	}()
	go func() {
		defer wg.Done()
		logLines(stderr, logger, zerolog.WarnLevel)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("artifact build %q failed: %w", b.Command, err)
	}

	output := b.Output
	if !filepath.IsAbs(output) && b.Dir != "" {
		output = filepath.Join(b.Dir, output)
	}
	path, err := checkFile(output)
	if err != nil {
		return "", err
	}

	logger.Info().Str("path", path).Dur("duration", time.Since(start)).Msg("Artifact built")
	return path, nil
}

func checkFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("artifact not found: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("artifact %s is a directory", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve artifact path: %w", err)
	}
	return abs, nil
}

func logLines(r io.Reader, logger zerolog.Logger, level zerolog.Level) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.WithLevel(level).Msg(line)
		}
	}
}
