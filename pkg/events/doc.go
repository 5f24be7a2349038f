/*
Package events provides an in-memory event broker for gofast fleet events.

Every worker state change is published as a worker.transition event, along
with tunnel start/stop and the final fleet drain. Subscribers (the run
command's progress output, tests asserting lifecycle traces) receive events
asynchronously through buffered channels.

# Architecture

	Orchestrator ──Publish──► queue (buffer 256) ──► deliver loop
	                                                       │
	                                 ┌─────────────────────┼──────────────┐
	                                 ▼                     ▼              ▼
	                           Subscriber (64)       Subscriber (64)     ...

Publish preserves order: events from one publisher are delivered in the order
they were published. A subscriber whose buffer is full misses the event and
Dropped is incremented; publishers are never blocked by slow subscribers.
Subscribe takes an optional list of event types to filter on.

Stop delivers any events still queued before the loop exits, so a run that
ends right after the last transition still reports it.

# Event Types

	worker.transition   Metadata: worker_id, name, address, from, to
	worker.failed       Metadata: worker_id, stage; Message holds the error
	tunnel.started      Metadata: address
	tunnel.stopped
	fleet.drained       every chain finished and every worker destroyed

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(events.Transition(w, types.WorkerStatusActive, types.WorkerStatusConfiguring))
*/
package events
