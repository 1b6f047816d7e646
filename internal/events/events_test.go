package events

import (
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventQueueItemDrained, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := ItemPayload{QueueItemID: "q-1", ProjectName: "demo", Result: "ok"}
	if err := bus.PublishJSON(EventQueueItemDrained, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventQueueItemDrained {
		t.Errorf("expected type %s, got %s", EventQueueItemDrained, received.Type)
	}
	if received.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded ItemPayload
	if err := received.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.ProjectName != "demo" || decoded.Result != "ok" {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var order []int

	bus.Subscribe(EventDrainCompleted, func(_ *Event) error { order = append(order, 1); return nil })
	bus.Subscribe(EventDrainCompleted, func(_ *Event) error { order = append(order, 2); return nil })

	bus.Publish(&Event{Type: EventDrainCompleted})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected handlers in subscription order, got %v", order)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestNilEventBus(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventProjectSubmitted, SchedulePayload{ProjectName: "demo"}); err != nil {
		t.Errorf("nil bus should drop events, got %v", err)
	}
}
