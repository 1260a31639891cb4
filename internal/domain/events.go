package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for published events.
const (
	EventTypePollCompleted = "paper_tracker.poll.completed"
	EventTypePapersDeleted = "paper_tracker.papers.deleted"
)

// Event is an envelope published to the event bus.
type Event struct {
	EventID      string          `json:"event_id"`
	EventVersion int             `json:"event_version"`
	EventType    string          `json:"event_type"`
	AggregateID  string          `json:"aggregate_id"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewEvent creates a new event with a fresh id. The payload is JSON-serialized.
func NewEvent(eventType, aggregateID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    eventType,
		AggregateID:  aggregateID,
		Payload:      payloadBytes,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// PollCompletedPayload is the payload for paper_tracker.poll.completed events.
type PollCompletedPayload struct {
	PollID     string        `json:"poll_id"`
	Source     SourceType    `json:"source"`
	Categories []string      `json:"categories"`
	DateFrom   string        `json:"date_from"`
	DateTo     string        `json:"date_to"`
	Scraped    int           `json:"scraped_papers"`
	New        int           `json:"new_papers"`
	Total      int           `json:"total_papers"`
	Partial    bool          `json:"partial"`
	NewIDs     []string      `json:"new_paper_ids,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// PapersDeletedPayload is the payload for paper_tracker.papers.deleted events.
type PapersDeletedPayload struct {
	Scope   string `json:"scope"`
	Source  string `json:"source,omitempty"`
	PaperID string `json:"paper_id,omitempty"`
	Deleted int64  `json:"deleted"`
}
