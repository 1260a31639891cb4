package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	"github.com/aidd/paper-tracker/internal/temporal"
)

// Poller runs a poll in-process. *ingest.Coordinator implements it.
type Poller interface {
	Poll(ctx context.Context, req ingest.PollRequest) (*ingest.PollResult, error)
}

// WorkflowRunner starts durable polls and follows them.
// *temporal.PollWorkflowClient implements it.
type WorkflowRunner interface {
	StartPoll(ctx context.Context, workflowID string, input temporal.PollWorkflowInput) (string, error)
	PollResult(ctx context.Context, workflowID, runID string, result interface{}) error
	Progress(ctx context.Context, workflowID, runID string) (*temporal.PollProgress, error)
}

// PollJob polls every enabled source over the default window in-process.
func PollJob(poller Poller, logger zerolog.Logger) Job {
	return JobFunc(func(ctx context.Context) error {
		result, err := poller.Poll(ctx, ingest.PollRequest{})
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		logger.Info().
			Str("poll_id", result.PollID).
			Int("new_papers", result.NewPapers).
			Int("total_papers", result.TotalPapers).
			Strs("updated_sources", result.UpdatedSources).
			Strs("skipped_sources", result.Skipped).
			Msg("scheduled poll completed")
		return nil
	})
}

// WorkflowJob starts the scheduled poll workflow and waits for its result,
// so the scheduler timeout bounds the whole run. A run still in progress
// from the previous tick is reported as domain.ErrPollInProgress.
func WorkflowJob(runner WorkflowRunner, logger zerolog.Logger) Job {
	const workflowID = temporal.ScheduledPollWorkflowID

	return JobFunc(func(ctx context.Context) error {
		runID, err := runner.StartPoll(ctx, workflowID, temporal.PollWorkflowInput{})
		if err != nil {
			if temporal.IsWorkflowAlreadyStarted(err) {
				logRunningProgress(ctx, runner, logger)
				return domain.ErrPollInProgress
			}
			return fmt.Errorf("start poll workflow: %w", err)
		}
		logger.Info().
			Str("workflow_id", workflowID).
			Str("run_id", runID).
			Msg("poll workflow started")

		var result ingest.PollResult
		if err := runner.PollResult(ctx, workflowID, runID, &result); err != nil {
			return fmt.Errorf("wait for poll workflow: %w", err)
		}
		logger.Info().
			Str("poll_id", result.PollID).
			Str("run_id", runID).
			Int("new_papers", result.NewPapers).
			Int("total_papers", result.TotalPapers).
			Strs("updated_sources", result.UpdatedSources).
			Strs("skipped_sources", result.Skipped).
			Msg("scheduled poll workflow completed")
		return nil
	})
}

// logRunningProgress reports how far the overlapping run has got. Query
// failures are only logged at debug level.
func logRunningProgress(ctx context.Context, runner WorkflowRunner, logger zerolog.Logger) {
	progress, err := runner.Progress(ctx, temporal.ScheduledPollWorkflowID, "")
	if err != nil {
		logger.Debug().Err(err).Msg("could not query running poll workflow")
		return
	}
	logger.Info().
		Str("poll_id", progress.PollID).
		Strs("completed", progress.Completed).
		Strs("failed", progress.Failed).
		Strs("pending", progress.Pending).
		Msg("previous poll workflow still running")
}
