/*
Package health provides reachability checks used to verify that the
coordinator can actually be reached the way workers will reach it.

Two checkers implement Checker:

	HTTPChecker   GET a URL, expect a status range and optionally a body substring
	TCPChecker    open a TCP connection

Wait polls a checker with a fixed interval until it succeeds or Retries
consecutive failures have been seen.

# Tunnel verification

After the reverse forward is opened on the proxy instance, the tunnel manager
runs both checkers in turn against the proxy's public address:

	health.NewTCPChecker("203.0.113.7:8080")
	health.NewHTTPChecker("http://203.0.113.7:8080/live").WithBodyContains(`"alive"`)

The TCP check fails fast when GatewayPorts did not take effect; the HTTP
check proves the rest of the path through the SSH forward to the local
dispatch listener. /live is used rather than /health because the tunnel
component itself reports unhealthy until Start returns.
*/
package health
