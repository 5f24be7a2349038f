// Package jobs provides file-backed job sources and result sinks for the
// dispatch server: jobs are read one per line, results are appended as JSON
// lines.
package jobs
