package shotgrid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventNewAsset is the event log type emitted when an asset is created.
const EventNewAsset = "Shotgun_Asset_New"

const defaultEventBatch = 100

var eventFields = []string{
	"id", "event_type", "attribute_name", "meta",
	"entity", "user", "project", "session_uuid", "created_at",
}

// NewAssetEvent is an asset creation read from the Shotgrid event log.
type NewAssetEvent struct {
	EventID   int64     `json:"event_id"`
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	User      EntityRef `json:"user"`
	Project   EntityRef `json:"project"`
}

// UniqueID identifies the asset creation regardless of which event carried it.
func (e NewAssetEvent) UniqueID() string {
	return fmt.Sprintf("%s_%d_%d", EventNewAsset, e.Project.ID, e.ID)
}

func newAssetEvent(v view) (NewAssetEvent, error) {
	entity := v.ref("entity")
	if entity == nil {
		return NewAssetEvent{}, fmt.Errorf("event %d has no entity", v.ID)
	}
	ev := NewAssetEvent{EventID: v.ID, ID: entity.ID, Name: entity.Name}
	if user := v.ref("user"); user != nil {
		ev.User = *user
	}
	if project := v.ref("project"); project != nil {
		ev.Project = *project
	}
	if raw := v.str("created_at"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewAssetEvent{}, fmt.Errorf("event %d created_at: %w", v.ID, err)
		}
		ev.CreatedAt = ts
	}
	return ev, nil
}

// EventPoller reads new asset events past a cursor.
type EventPoller struct {
	client *Client
	batch  int
	logger *zerolog.Logger

	mu     sync.Mutex
	cursor int64
}

func NewEventPoller(client *Client, cursor int64, batch int, logger *zerolog.Logger) *EventPoller {
	if batch <= 0 {
		batch = defaultEventBatch
	}
	return &EventPoller{client: client, cursor: cursor, batch: batch, logger: logger}
}

func (p *EventPoller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Poll fetches the next batch of events and advances the cursor past them.
// Entries that cannot be decoded are skipped but still move the cursor.
func (p *EventPoller) Poll(ctx context.Context) ([]NewAssetEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filters := [][]any{
		{"id", "greater_than", p.cursor},
		{"event_type", "is", EventNewAsset},
	}
	rows, err := p.client.search(ctx, "event_log_entries", filters, eventFields, "id", p.batch)
	if err != nil {
		return nil, fmt.Errorf("poll events after %d: %w", p.cursor, err)
	}

	events := make([]NewAssetEvent, 0, len(rows))
	for _, row := range rows {
		if row.ID > p.cursor {
			p.cursor = row.ID
		}
		ev, err := newAssetEvent(row)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn().Err(err).Int64("event_id", row.ID).Msg("skip malformed event")
			}
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
