// Package activities holds the Temporal activities of the poll workflow.
// They are thin wrappers around the ingest coordinator so that a durable
// poll and an in-process poll run exactly the same update logic.
package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	temporalpkg "github.com/aidd/paper-tracker/internal/temporal"
)

// Error types reported on non-retryable application errors.
const (
	ErrTypeInvalidInput      = "invalid_input"
	ErrTypeUnsupportedSource = "unsupported_source"
)

// Updater plans polls and updates single sources.
// *ingest.Coordinator implements it.
type Updater interface {
	Plan(req ingest.PollRequest) (pollID string, window ingest.Window, work []ingest.SourceRequest, skipped []string, err error)
	UpdateSource(ctx context.Context, req ingest.SourceRequest) (ingest.SourceStats, error)
}

// PollActivities exposes the coordinator as Temporal activities.
// Methods on this struct are registered with the worker.
type PollActivities struct {
	updater Updater
}

// NewPollActivities creates the poll activities.
func NewPollActivities(updater Updater) *PollActivities {
	return &PollActivities{updater: updater}
}

// SourceWork is one planned source update.
type SourceWork struct {
	Source     string   `json:"source"`
	Categories []string `json:"categories"`
}

// PlanPollOutput is the resolved plan of a poll.
type PlanPollOutput struct {
	PollID   string       `json:"poll_id"`
	DateFrom string       `json:"date_from"`
	DateTo   string       `json:"date_to"`
	Work     []SourceWork `json:"work"`
	Skipped  []string     `json:"skipped"`
}

// UpdateSourceInput is the input of UpdateSource.
type UpdateSourceInput struct {
	PollID     string   `json:"poll_id"`
	Source     string   `json:"source"`
	Categories []string `json:"categories"`
	DateFrom   string   `json:"date_from"`
	DateTo     string   `json:"date_to"`
}

// PlanPoll resolves the window, the sources and their categories. It reads
// the clock, so it must run as an activity rather than in workflow code.
func (a *PollActivities) PlanPoll(ctx context.Context, input temporalpkg.PollWorkflowInput) (*PlanPollOutput, error) {
	logger := activity.GetLogger(ctx)

	req := ingest.PollRequest{Sources: input.Sources, Categories: input.Categories}
	var err error
	if req.DateFrom, err = optionalDay("date_from", input.DateFrom); err != nil {
		return nil, nonRetryable(err)
	}
	if req.DateTo, err = optionalDay("date_to", input.DateTo); err != nil {
		return nil, nonRetryable(err)
	}

	pollID, window, work, skipped, err := a.updater.Plan(req)
	if err != nil {
		return nil, nonRetryable(err)
	}

	from, to := window.Strings()
	out := &PlanPollOutput{PollID: pollID, DateFrom: from, DateTo: to, Skipped: skipped}
	for _, w := range work {
		out.Work = append(out.Work, SourceWork{Source: string(w.Source), Categories: w.Categories})
	}

	logger.Info("poll planned",
		"pollID", pollID,
		"dateFrom", from,
		"dateTo", to,
		"sources", len(out.Work),
		"skipped", len(skipped),
	)
	return out, nil
}

// UpdateSource fetches and persists one source of a planned poll.
func (a *PollActivities) UpdateSource(ctx context.Context, input UpdateSourceInput) (*ingest.SourceStats, error) {
	logger := activity.GetLogger(ctx)

	src, err := domain.ParseSourceType(input.Source)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupportedSource, err)
	}
	from, err := dateparse.ParseDay(input.DateFrom)
	if err != nil {
		return nil, nonRetryable(domain.NewValidationError("date_from", err.Error()))
	}
	to, err := dateparse.ParseDay(input.DateTo)
	if err != nil {
		return nil, nonRetryable(domain.NewValidationError("date_to", err.Error()))
	}

	activity.RecordHeartbeat(ctx, input.Source)
	stats, err := a.updater.UpdateSource(ctx, ingest.SourceRequest{
		PollID:     input.PollID,
		Source:     src,
		Categories: input.Categories,
		Window:     ingest.Window{From: from, To: to},
	})
	if err != nil {
		logger.Error("source update failed", "pollID", input.PollID, "source", input.Source, "error", err)
		if errors.Is(err, domain.ErrUnsupportedSource) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupportedSource, err)
		}
		return nil, fmt.Errorf("update %s: %w", input.Source, err)
	}

	logger.Info("source updated",
		"pollID", input.PollID,
		"source", input.Source,
		"newPapers", stats.New,
		"partial", stats.Partial,
	)
	return &stats, nil
}

func optionalDay(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := dateparse.ParseDay(raw)
	if err != nil {
		return nil, domain.NewValidationError(field, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
	}
	return &t, nil
}

// nonRetryable marks invalid input as permanent. Other errors pass through
// and follow the activity retry policy.
func nonRetryable(err error) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	return err
}
