/*
Package registry holds the workers that can currently be shut down.

A worker is registered as soon as its address is known (the active ->
configuring boundary) and removed exactly once: either by a shutdown for its
address or by its own chain failing. Workers are kept in an ordered slice and
looked up by linear scan; fleets are small and the dispatch path only touches
the registry once per worker.

LookupAndRemove reports whether the removal emptied the registry. Because the
check happens under the same lock as the removal, at most one caller observes
the transition to empty, which is what gates reverse tunnel teardown.
*/
package registry
