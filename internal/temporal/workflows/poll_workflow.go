// Package workflows contains the Temporal workflow that runs a durable
// multi-source poll.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aidd/paper-tracker/internal/ingest"
	temporalpkg "github.com/aidd/paper-tracker/internal/temporal"
	"github.com/aidd/paper-tracker/internal/temporal/activities"
)

// ErrTypeNoSources is the application error type returned when no source
// could be updated.
const ErrTypeNoSources = "no_valid_sources"

// PollWorkflow plans a poll, then updates each planned source in turn.
// A source whose update fails after retries is reported as skipped; the
// workflow fails only when no source was updated.
func PollWorkflow(ctx workflow.Context, input temporalpkg.PollWorkflowInput) (*ingest.PollResult, error) {
	logger := workflow.GetLogger(ctx)

	progress := temporalpkg.PollProgress{}
	if err := workflow.SetQueryHandler(ctx, temporalpkg.QueryProgress, func() (temporalpkg.PollProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, err
	}

	var pollAct *activities.PollActivities

	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	// Source updates page through upstream APIs with courtesy delays, so
	// they get a long start-to-close and a few slow retries.
	updateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				activities.ErrTypeInvalidInput,
				activities.ErrTypeUnsupportedSource,
			},
		},
	})

	var plan activities.PlanPollOutput
	if err := workflow.ExecuteActivity(planCtx, pollAct.PlanPoll, input).Get(ctx, &plan); err != nil {
		logger.Error("poll planning failed", "error", err)
		return nil, err
	}

	progress.PollID = plan.PollID
	for _, w := range plan.Work {
		progress.Pending = append(progress.Pending, w.Source)
	}

	result := &ingest.PollResult{
		PollID:   plan.PollID,
		DateFrom: plan.DateFrom,
		DateTo:   plan.DateTo,
		Skipped:  plan.Skipped,
	}

	for _, w := range plan.Work {
		var stats ingest.SourceStats
		err := workflow.ExecuteActivity(updateCtx, pollAct.UpdateSource, activities.UpdateSourceInput{
			PollID:     plan.PollID,
			Source:     w.Source,
			Categories: w.Categories,
			DateFrom:   plan.DateFrom,
			DateTo:     plan.DateTo,
		}).Get(ctx, &stats)

		progress.Pending = progress.Pending[1:]
		if err != nil {
			logger.Warn("source update failed, skipping", "source", w.Source, "error", err)
			progress.Failed = append(progress.Failed, w.Source)
			result.Skipped = append(result.Skipped, w.Source)
			continue
		}
		progress.Completed = append(progress.Completed, w.Source)
		result.Add(stats)
	}

	if len(result.UpdatedSources) == 0 {
		return nil, temporal.NewNonRetryableApplicationError("No valid sources provided", ErrTypeNoSources, nil)
	}

	logger.Info("poll workflow finished",
		"pollID", result.PollID,
		"newPapers", result.NewPapers,
		"totalPapers", result.TotalPapers,
		"updatedSources", result.UpdatedSources,
	)
	return result, nil
}
