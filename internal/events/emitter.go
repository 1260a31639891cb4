package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
)

// Recorder receives publish outcomes. *observability.Metrics implements it.
type Recorder interface {
	RecordEvent(eventType string, err error)
}

// Emitter builds domain events and hands them to a Publisher. Delivery is
// best effort: failures are logged and counted, never returned, so an
// unavailable broker cannot fail a poll.
type Emitter struct {
	publisher Publisher
	recorder  Recorder
	logger    zerolog.Logger
}

// NewEmitter creates an emitter. A nil publisher discards events and a nil
// recorder skips metrics.
func NewEmitter(publisher Publisher, recorder Recorder, logger zerolog.Logger) *Emitter {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Emitter{
		publisher: publisher,
		recorder:  recorder,
		logger:    logger.With().Str("component", "event_emitter").Logger(),
	}
}

// PollCompleted emits paper_tracker.poll.completed for one source poll.
func (e *Emitter) PollCompleted(ctx context.Context, payload domain.PollCompletedPayload) {
	e.emit(ctx, domain.EventTypePollCompleted, payload.PollID, payload)
}

// PapersDeleted emits paper_tracker.papers.deleted after an administrative
// deletion.
func (e *Emitter) PapersDeleted(ctx context.Context, payload domain.PapersDeletedPayload) {
	aggregate := payload.Scope
	if payload.Source != "" {
		aggregate += ":" + payload.Source
	}
	e.emit(ctx, domain.EventTypePapersDeleted, aggregate, payload)
}

func (e *Emitter) emit(ctx context.Context, eventType, aggregateID string, payload interface{}) {
	event, err := domain.NewEvent(eventType, aggregateID, payload)
	if err == nil {
		err = e.publisher.Publish(ctx, event)
	}
	if e.recorder != nil {
		e.recorder.RecordEvent(eventType, err)
	}
	if err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("aggregate_id", aggregateID).
			Msg("failed to publish event")
	}
}
