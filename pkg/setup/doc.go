// Package setup replays the configured setup commands on a worker session.
//
// Steps run strictly in order. The first failing step stops the pipeline and
// is reported as *Error carrying its index and command; earlier steps are not
// undone. Each successful step is timed into
// gofast_setup_step_duration_seconds.
package setup
