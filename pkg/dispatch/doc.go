/*
Package dispatch is the HTTP server workers poll for jobs.

# Endpoints

	GET  /job       {"job": <job>} or {"job": null}
	POST /result    body handed to the ResultSink byte for byte; replies {"result": ...}
	POST /log       newline-delimited JSON records re-emitted into the coordinator log
	GET  /health    component health (dispatch, tunnel, ...)
	GET  /ready     readiness of critical components
	GET  /live      liveness, 200 while the process serves requests
	GET  /metrics   Prometheus exposition

# Finishing a worker

A null job tells the worker to stop. After the null response has been
flushed, the server calls ShutdownHook.WorkerShutdown with the worker's
address on a separate goroutine, so the worker always receives its answer
before its instance is destroyed. Each address triggers at most one
shutdown, however many times it polls afterwards.

The address is the TCP peer address, except for loopback peers: requests
that came through the reverse tunnel all originate from 127.0.0.1 and are
identified by the X-Worker-Host header the worker sets.

# Defaults

Without options the server uses NoJobs, AckResults and NoopShutdown: every
worker is stopped on its first poll and results are acknowledged and
dropped.

	srv := dispatch.NewServer(
		dispatch.WithJobSource(jobs),
		dispatch.WithResultSink(results),
		dispatch.WithShutdownHook(orchestrator),
	)
	if err := srv.Open(":8080"); err != nil {
		return err
	}
	defer srv.Close(ctx)
*/
package dispatch
