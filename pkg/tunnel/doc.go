/*
Package tunnel exposes the coordinator to workers that cannot reach it
directly, through a reverse SSH forward on a dedicated proxy instance.

	worker ──HTTP──► proxy:8080 (0.0.0.0, GatewayPorts yes)
	                     │ SSH reverse forward
	                     ▼
	              coordinator 127.0.0.1:8080 (dispatch server)

Start provisions the proxy, enables GatewayPorts, reconnects so the new
sshd setting applies, and opens the forward. With Verify set it then
dials the proxy's public port and requests /live through it. Any failure undoes the
partial setup, destroys the proxy and returns *Error; the fleet treats this as
fatal.

Stop is guarded by sync.Once. The orchestrator calls it when the last worker
leaves the registry, and again unconditionally on exit; only the first call
closes the forward and destroys the proxy.
*/
package tunnel
