/*
Package worker implements the process that runs on every provisioned
instance: a loop that asks the coordinator for jobs, runs them, and posts
the results back.

# Protocol

	GET  <server>/job      -> {"job": <job>}      null means stop
	POST <server>/result   <- <result>            raw JSON body

Every request carries User-Agent "GoFast Worker" and, when known, the
worker's own address in X-Worker-Host. Requests that reach the coordinator
through the reverse tunnel all appear to come from loopback; the header is
how the coordinator knows which instance asked.

# Loop

Loop.Run repeats fetch, handle, post:

  - a null job ends the loop with a nil error; the coordinator destroys the
    instance shortly after
  - a fetch timeout (ErrFetchTimeout) is logged and the fetch is retried
    immediately
  - other fetch errors are logged and retried after a short pause
  - handler errors are logged; a result the handler still produced is posted
  - a failed post (*ResultPostError) is logged and the result is dropped

Workers receive the coordinator address on their command line as
server:<host>:<port>; ParseServerArg turns that into host:port.

# Handlers

JobHandler is the user code. HandlerFunc adapts a function, ExecHandler runs
a local command per job with the job on stdin and uses its stdout as the
result.

	addr, _ := worker.ParseServerArg(os.Args[1])
	client := worker.NewClient("http://"+addr, worker.DefaultFetchTimeout)
	client.WorkerHost, _ = worker.LocalAddress(addr)

	loop := worker.NewLoop(client, worker.HandlerFunc(process))
	if err := loop.Run(ctx); err != nil {
		log.Logger.Error().Err(err).Msg("Worker stopped")
	}
*/
package worker
