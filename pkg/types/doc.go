/*
Package types defines the core data structures used throughout gofast.

These types describe the fleet: workers and their lifecycle, the setup
commands replayed on every worker, and the fleet configuration that is loaded
once at startup and never mutated afterwards.

# Worker Lifecycle

Every worker moves through a fixed state machine:

	requested ──► provisioning ──► active ──► configuring ──► running
	    │              │             │  │          │  │          │
	    └──────────────┴─────────────┼──┼──────────┘  │          │
	                   failed ◄──────┘  └─────────────┴──► shutting_down
	                     │                                       │
	                     └──────────────► destroyed ◄────────────┘

WorkerStatus.CanTransition encodes the allowed edges. A worker is present in
the registry exactly while Registered() is true (active through
shutting_down). The failed state is entered when a chain aborts before
running; the instance is then destroyed directly.

# Setup Commands

Setup commands are a closed set of operations resolved once at configuration
load time:

	exec    <command...>        run a shell command on the worker
	upload  <local> <remote>    copy a local file to the worker

ParseOperation rejects unknown tags so that a typo in the fleet file fails
before any instance is created.
*/
package types
