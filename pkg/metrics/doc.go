/*
Package metrics provides Prometheus metrics and component health for gofast.

All metrics are registered on the default Prometheus registry at package init
and exposed by the dispatch server on /metrics. The same server answers
/health from the component registry kept in this package.

# Metrics

	gofast_workers_total{status}               gauge, refreshed by Collector
	gofast_chain_failures_total{stage}         chains aborted before running
	gofast_worker_shutdowns_total              workers shut down after a null job
	gofast_provision_duration_seconds          create request to active
	gofast_setup_step_duration_seconds{op}     one exec or upload step
	gofast_jobs_dispatched_total               non-null jobs handed out
	gofast_results_received_total              results accepted on /result
	gofast_log_records_total                   worker records re-emitted
	gofast_http_requests_total{path,status}    dispatch requests
	gofast_http_request_duration_seconds{path}

# Timing

	timer := metrics.NewTimer()
	err := pipeline.Run(ctx, session, steps)
	timer.ObserveDurationVec(metrics.SetupStepDuration, "exec")

# Health

Components report their state with RegisterComponent / UpdateComponent:

	metrics.RegisterComponent("dispatch", true, "listening on :8080")
	metrics.UpdateComponent("tunnel", false, "reverse forward closed")

Health aggregates every component; Readiness only looks at
CriticalComponents (dispatch and tunnel). When the proxy is disabled the
coordinator registers the tunnel as healthy with message "disabled".
/live (LivenessHandler) ignores components entirely and is what the tunnel
verifies through the proxy.

# Collector

Collector polls a WorkerLister (the fleet orchestrator) on an interval and
rewrites the per-status worker gauge, zeroing statuses that no longer have
any workers.
*/
package metrics
