/*
Package remote runs commands and copies files on workers over SSH.

	Dialer ── retry (6 attempts, 5s apart) ──► Connector.Connect(address)
	                                               │
	                                               ▼
	                                            Session
	                                   ┌───────────┼────────────┬────────────────┐
	                                   ▼           ▼            ▼                ▼
	                                  Run        Start        Upload       ReverseForward
	                               (wait for   (return once   (sftp)      (remote listener
	                                 exit)      launched)                  → local addr)

A Session stays open for the life of a worker chain. Run is used for setup
steps; Start is used for the worker's start command, which keeps running
after the chain has marked the worker running.

# Output

Remote stdout lines are logged at trace, stderr lines at warn. A line that is
a single JSON object is treated as a structured record from the worker and
re-emitted at its own level through log.EmitTo. The first 64KiB of each
stream is captured in ExecResult and in ExecError.Stderr.

# Errors

	*ConnectError   every connection attempt failed
	*ExecError      non-zero exit, or the command could not be started
	*UploadError    sftp transfer failed

Host keys are not verified: every instance is created by the same run that
connects to it.
*/
package remote
