package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventProjectSubmitted = "schedule_project_submitted"
	EventProjectCancelled = "schedule_project_cancelled"
	EventQueueItemDrained = "schedule_item_drained"
	EventDrainCompleted   = "schedule_drain_completed"
	EventNewShotgridAsset = "shotgrid_asset_created"
)

// SchedulePayload describes a registry change.
type SchedulePayload struct {
	ProjectName string    `json:"project_name"`
	ProjectID   int64     `json:"shotgrid_project_id,omitempty"`
	QueueItemID string    `json:"queue_item_id,omitempty"`
	Purged      int       `json:"purged,omitempty"`
	At          time.Time `json:"at"`
}

// ItemPayload describes the outcome of one drained queue item.
type ItemPayload struct {
	QueueItemID string    `json:"queue_item_id"`
	ProjectName string    `json:"project_name"`
	Result      string    `json:"batch_result"`
	Skipped     bool      `json:"skipped,omitempty"`
	At          time.Time `json:"at"`
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers of the event type synchronously, in
// subscription order. Handler errors are ignored.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus
// drops the event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
