/*
Package log provides structured logging for gofast using zerolog.

The coordinator and every worker share one logging model: a global zerolog
logger configured once at startup, child loggers that carry the component or
worker identity, and a small protocol for moving worker log records into the
coordinator's stream.

# Architecture

	┌──────────── worker process ────────────┐      ┌──────── coordinator ─────────┐
	│                                         │      │                              │
	│  zerolog.Logger ──► RemoteWriter ───────┼─────►│  POST /log                   │
	│                     (queue + pester)    │ HTTP │    └─► EmitLines ──► Logger  │
	│                                         │      │                              │
	│  stdout (JSON lines) ───────────────────┼─────►│  SSH output forwarding       │
	│                                         │ SSH  │    └─► EmitLines ──► Logger  │
	└─────────────────────────────────────────┘      └──────────────────────────────┘

Worker records arrive either over HTTP (/log) or as lines on the SSH session
that started the worker. Both paths use EmitLines: ParseRecords keeps only lines
that are a single JSON object and silently drops everything else, and EmitTo,
which re-emits the record at its original level with origin=worker.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		Output:     os.Stdout,
		File:       logFile,
	})

	logger := log.WithComponent("fleet")
	logger.Info().Int("concurrency", 3).Msg("Starting fleet")

	wlog := log.WithWorker(w.ID, w.Address)
	wlog.Warn().Err(err).Msg("Setup failed")

Worker side:

	remote := log.NewRemoteWriter("http://10.0.0.1:8080/log")
	defer remote.Close()
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: remote})

Numeric levels (10 trace ... 60 fatal) are accepted on incoming records so
that workers written against other structured loggers are understood too.
A fatal record is logged at fatal level but never terminates the coordinator.
*/
package log
