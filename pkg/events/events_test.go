package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gofast/pkg/types"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventTunnelStarted, Message: "up"})

	for _, sub := range []Subscriber{sub1, sub2} {
		ev := receive(t, sub)
		assert.Equal(t, EventTunnelStarted, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestTransitionEvent(t *testing.T) {
	w := &types.Worker{ID: "w-1", Name: "gofast-1", Address: "10.0.0.5"}
	ev := Transition(w, types.WorkerStatusActive, types.WorkerStatusConfiguring)

	assert.Equal(t, EventWorkerTransition, ev.Type)
	assert.Equal(t, "w-1", ev.Metadata["worker_id"])
	assert.Equal(t, "10.0.0.5", ev.Metadata["address"])
	assert.Equal(t, "active", ev.Metadata["from"])
	assert.Equal(t, "configuring", ev.Metadata["to"])
}

func TestBrokerOrderPreserved(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Start()

	w := &types.Worker{ID: "w-1"}
	steps := []types.WorkerStatus{
		types.WorkerStatusRequested,
		types.WorkerStatusProvisioning,
		types.WorkerStatusActive,
		types.WorkerStatusConfiguring,
	}
	for i := 1; i < len(steps); i++ {
		b.Publish(Transition(w, steps[i-1], steps[i]))
	}
	b.Stop()

	for i := 1; i < len(steps); i++ {
		ev := receive(t, sub)
		require.Equal(t, string(steps[i]), ev.Metadata["to"])
	}
}

func TestBrokerFilter(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	transitions := b.Subscribe(EventWorkerTransition)
	tunnel := b.Subscribe(EventTunnelStarted, EventTunnelStopped)

	w := &types.Worker{ID: "w-1"}
	b.Publish(&Event{Type: EventTunnelStarted})
	b.Publish(Transition(w, types.WorkerStatusRequested, types.WorkerStatusProvisioning))
	b.Publish(&Event{Type: EventTunnelStopped})

	assert.Equal(t, EventWorkerTransition, receive(t, transitions).Type)
	assert.Equal(t, EventTunnelStarted, receive(t, tunnel).Type)
	assert.Equal(t, EventTunnelStopped, receive(t, tunnel).Type)

	select {
	case ev := <-transitions:
		t.Fatalf("unexpected %s event on filtered subscriber", ev.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBrokerCountsDrops(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Start()

	for i := 0; i < cap(sub)+10; i++ {
		b.Publish(&Event{Type: EventWorkerFailed})
	}
	b.Stop()

	assert.Eventually(t, func() bool { return b.Dropped() == 10 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sub, cap(sub))
}
