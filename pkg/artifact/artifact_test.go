package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gofast/pkg/types"
)

func TestNew(t *testing.T) {
	assert.IsType(t, None{}, New(types.Artifact{}))
	assert.IsType(t, Static{}, New(types.Artifact{Path: "a.tgz"}))
	assert.IsType(t, &CommandBuilder{}, New(types.Artifact{Path: "a.tgz", Build: "npm pack"}))
}

func TestNoneBuildsNothing(t *testing.T) {
	path, err := None{}.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestStatic(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "worker.tgz")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	path, err := Static{Path: file}.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, file, path)

	_, err = Static{Path: filepath.Join(dir, "missing.tgz")}.Build(context.Background())
	assert.Error(t, err)

	_, err = Static{Path: dir}.Build(context.Background())
	assert.Error(t, err)
}

func TestCommandBuilder(t *testing.T) {
	dir := t.TempDir()

	b := &CommandBuilder{
		Command: "echo packing && printf data > worker.tgz",
		Dir:     dir,
		Output:  "worker.tgz",
	}
	path, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "worker.tgz"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestCommandBuilderFailures(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		builder *CommandBuilder
	}{
		{"command fails", &CommandBuilder{Command: "echo nope >&2; exit 2", Dir: dir, Output: "out"}},
		{"no output produced", &CommandBuilder{Command: "true", Dir: dir, Output: "out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCommandBuilderCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := &CommandBuilder{Command: "exec sleep 5", Dir: t.TempDir(), Output: "out"}
	start := time.Now()
	_, err := b.Build(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}
