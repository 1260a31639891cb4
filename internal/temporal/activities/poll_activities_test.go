package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	temporalpkg "github.com/aidd/paper-tracker/internal/temporal"
)

// fakeUpdater is a manual test double for the Updater interface.
type fakeUpdater struct {
	planReq  ingest.PollRequest
	planErr  error
	updates  []ingest.SourceRequest
	stats    ingest.SourceStats
	updErr   error
	planWork []ingest.SourceRequest
}

func (f *fakeUpdater) Plan(req ingest.PollRequest) (string, ingest.Window, []ingest.SourceRequest, []string, error) {
	f.planReq = req
	if f.planErr != nil {
		return "", ingest.Window{}, nil, nil, f.planErr
	}
	w := ingest.Window{
		From: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	}
	return "poll-1", w, f.planWork, []string{"medrxiv"}, nil
}

func (f *fakeUpdater) UpdateSource(_ context.Context, req ingest.SourceRequest) (ingest.SourceStats, error) {
	f.updates = append(f.updates, req)
	return f.stats, f.updErr
}

func newActivityEnv(u Updater) (*testsuite.TestActivityEnvironment, *PollActivities) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	act := NewPollActivities(u)
	env.RegisterActivity(act)
	return env, act
}

func requireNonRetryable(t *testing.T, err error, errType string) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %v", err)
	assert.Equal(t, errType, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestPollActivities_PlanPoll(t *testing.T) {
	t.Run("resolves plan", func(t *testing.T) {
		u := &fakeUpdater{planWork: []ingest.SourceRequest{
			{PollID: "poll-1", Source: domain.SourceTypeArXiv, Categories: []string{"cs.LG"}},
			{PollID: "poll-1", Source: domain.SourceTypeChemRxiv, Categories: []string{"Biological and Medicinal Chemistry"}},
		}}
		env, act := newActivityEnv(u)

		val, err := env.ExecuteActivity(act.PlanPoll, temporalpkg.PollWorkflowInput{
			Sources:  []string{"arxiv", "chemrxiv", "medrxiv"},
			DateFrom: "2024-04-20",
		})
		require.NoError(t, err)

		var out PlanPollOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, "poll-1", out.PollID)
		assert.Equal(t, "2024-04-20", out.DateFrom)
		assert.Equal(t, "2024-05-20", out.DateTo)
		assert.Equal(t, []string{"medrxiv"}, out.Skipped)
		require.Len(t, out.Work, 2)
		assert.Equal(t, SourceWork{Source: "arxiv", Categories: []string{"cs.LG"}}, out.Work[0])
		assert.Equal(t, "chemrxiv", out.Work[1].Source)

		require.NotNil(t, u.planReq.DateFrom)
		assert.Equal(t, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC), *u.planReq.DateFrom)
		assert.Nil(t, u.planReq.DateTo)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		env, act := newActivityEnv(&fakeUpdater{})

		_, err := env.ExecuteActivity(act.PlanPoll, temporalpkg.PollWorkflowInput{DateTo: "20/05/2024"})
		require.Error(t, err)
		requireNonRetryable(t, err, ErrTypeInvalidInput)
		assert.Contains(t, err.Error(), "date_to must be a date in YYYY-MM-DD format")
	})

	t.Run("inverted window is permanent", func(t *testing.T) {
		u := &fakeUpdater{planErr: domain.NewValidationError("date_range", "end_date is before start_date")}
		env, act := newActivityEnv(u)

		_, err := env.ExecuteActivity(act.PlanPoll, temporalpkg.PollWorkflowInput{})
		require.Error(t, err)
		requireNonRetryable(t, err, ErrTypeInvalidInput)
	})
}

func TestPollActivities_UpdateSource(t *testing.T) {
	input := UpdateSourceInput{
		PollID:     "poll-1",
		Source:     "arXiv",
		Categories: []string{"cs.LG"},
		DateFrom:   "2024-04-20",
		DateTo:     "2024-05-20",
	}

	t.Run("updates through the coordinator", func(t *testing.T) {
		u := &fakeUpdater{stats: ingest.SourceStats{Source: domain.SourceTypeArXiv, Scraped: 3, New: 1, Total: 9}}
		env, act := newActivityEnv(u)

		val, err := env.ExecuteActivity(act.UpdateSource, input)
		require.NoError(t, err)

		var stats ingest.SourceStats
		require.NoError(t, val.Get(&stats))
		assert.Equal(t, 1, stats.New)
		assert.Equal(t, 9, stats.Total)

		require.Len(t, u.updates, 1)
		req := u.updates[0]
		assert.Equal(t, domain.SourceTypeArXiv, req.Source)
		assert.Equal(t, "poll-1", req.PollID)
		assert.Equal(t, []string{"cs.LG"}, req.Categories)
		assert.Equal(t, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC), req.Window.From)
		assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), req.Window.To)
	})

	t.Run("unknown source is permanent", func(t *testing.T) {
		u := &fakeUpdater{}
		env, act := newActivityEnv(u)

		bad := input
		bad.Source = "medrxiv"
		_, err := env.ExecuteActivity(act.UpdateSource, bad)
		require.Error(t, err)
		requireNonRetryable(t, err, ErrTypeUnsupportedSource)
		assert.Empty(t, u.updates)
	})

	t.Run("unregistered source is permanent", func(t *testing.T) {
		u := &fakeUpdater{updErr: fmt.Errorf("%w: chemrxiv", domain.ErrUnsupportedSource)}
		env, act := newActivityEnv(u)

		_, err := env.ExecuteActivity(act.UpdateSource, input)
		require.Error(t, err)
		requireNonRetryable(t, err, ErrTypeUnsupportedSource)
	})

	t.Run("fetch failure is retryable", func(t *testing.T) {
		u := &fakeUpdater{updErr: domain.NewExternalAPIError("arxiv", 503, "unavailable", nil)}
		env, act := newActivityEnv(u)

		_, err := env.ExecuteActivity(act.UpdateSource, input)
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) {
			assert.False(t, appErr.NonRetryable())
		}
		assert.Contains(t, err.Error(), "update arXiv")
	})
}
