/*
Package fleet drives a run: it provisions the workers, configures them,
starts them and destroys each one once it has run out of jobs.

# Chains

Run launches one chain per worker, all concurrently:

	requested ─► provisioning ─► active ─► configuring ─► running
	             (provision)     register   (setup)        start command
	                             connect
	                             upload artifact

The worker is registered as soon as its address is known, so a worker can
be shut down while it is still being configured. A chain that fails before
running marks its worker failed, removes it from the registry and destroys
its instance; the other chains are not affected. Only the connection retry
inside remote.Dialer is retried.

The start command receives the coordinator address as its last argument:

	<start> server:<host>:<port>

where host is the tunnel address, or the advertise host when the fleet runs
without a tunnel.

# Shutdown

WorkerShutdown is the dispatch.ShutdownHook. It removes the worker from the
registry, moves it to shutting_down, destroys the instance and marks it
destroyed.

The run is drained once no chain is still on its way to the registry, the
registry is empty and no shutdown is in flight. Draining stops the tunnel,
exactly once, and makes Run return. Cancelling Run's context destroys every
worker still registered, then stops the tunnel.

Every status change is validated against the lifecycle and published on the
events broker as worker.transition.
*/
package fleet
