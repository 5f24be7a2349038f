package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
)

// JobSource hands out jobs. A nil or JSON null job means there is no more
// work and the asking worker should be shut down.
type JobSource interface {
	GetJob(ctx context.Context) (json.RawMessage, error)
}

// ResultSink receives result bodies exactly as the worker posted them.
// A non-nil reply is returned to the worker as {"result": reply}.
type ResultSink interface {
	ReceiveResult(ctx context.Context, result json.RawMessage) (interface{}, error)
}

// ShutdownHook is told when a worker has received its final null job
type ShutdownHook interface {
	WorkerShutdown(ctx context.Context, address string)
}

// JobSourceFunc adapts a function to JobSource
type JobSourceFunc func(ctx context.Context) (json.RawMessage, error)

func (f JobSourceFunc) GetJob(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// ResultSinkFunc adapts a function to ResultSink
type ResultSinkFunc func(ctx context.Context, result json.RawMessage) (interface{}, error)

func (f ResultSinkFunc) ReceiveResult(ctx context.Context, result json.RawMessage) (interface{}, error) {
	return f(ctx, result)
}

// ShutdownFunc adapts a function to ShutdownHook
type ShutdownFunc func(ctx context.Context, address string)

func (f ShutdownFunc) WorkerShutdown(ctx context.Context, address string) {
	f(ctx, address)
}

// NoJobs is the default job source: every worker is told to stop on its first poll
var NoJobs JobSource = JobSourceFunc(func(context.Context) (json.RawMessage, error) {
	return nil, nil
})

// AckResults is the default result sink: results are accepted and dropped
var AckResults ResultSink = ResultSinkFunc(func(context.Context, json.RawMessage) (interface{}, error) {
	return nil, nil
})

// NoopShutdown is the default shutdown hook
var NoopShutdown ShutdownHook = ShutdownFunc(func(context.Context, string) {})

var null = []byte("null")

type workerKey struct{}

// WorkerFromContext returns the address of the worker whose request is being
// served. Job sources and result sinks can use it to keep per-worker state.
func WorkerFromContext(ctx context.Context) string {
	address, _ := ctx.Value(workerKey{}).(string)
	return address
}

func withWorker(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, workerKey{}, address)
}

// IsNull reports whether job means "no more work"
func IsNull(job json.RawMessage) bool {
	trimmed := bytes.TrimSpace(job)
	return len(trimmed) == 0 || bytes.Equal(trimmed, null)
}
