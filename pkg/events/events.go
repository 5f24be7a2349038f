package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/gofast/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventWorkerTransition EventType = "worker.transition"
	EventWorkerFailed     EventType = "worker.failed"
	EventTunnelStarted    EventType = "tunnel.started"
	EventTunnelStopped    EventType = "tunnel.stopped"
	EventFleetDrained     EventType = "fleet.drained"
)

// Event represents a fleet event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Transition builds a worker.transition event for a worker moving from one state to another
func Transition(w *types.Worker, from, to types.WorkerStatus) *Event {
	return &Event{
		ID:      uuid.New().String(),
		Type:    EventWorkerTransition,
		Message: string(from) + " -> " + string(to),
		Metadata: map[string]string{
			"worker_id": w.ID,
			"name":      w.Name,
			"address":   w.Address,
			"from":      string(from),
			"to":        string(to),
		},
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans published events out to subscribers without ever blocking
// the publisher on a slow subscriber
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]map[EventType]bool // nil filter receives everything

	queue    chan *Event
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64
}

// NewBroker creates a broker; call Start before publishing
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]map[EventType]bool),
		queue:       make(chan *Event, 256),
		done:        make(chan struct{}),
	}
}

func (b *Broker) Start() {
	go b.run()
}

// Stop delivers whatever is still queued, then ends the loop
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	sub := make(Subscriber, 64)
	b.mu.Lock()
	b.subscribers[sub] = filter
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues event for delivery. ID and Timestamp are filled in when unset.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.done:
	}
}

// Dropped counts deliveries skipped because a subscriber's buffer was full
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.done:
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subscribers {
		if filter != nil && !filter[event.Type] {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}
