package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestTemporalError(t *testing.T) {
	t.Run("Error includes all fields", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartPoll",
			Kind:       ErrWorkflowAlreadyStarted,
			WorkflowID: "wf-123",
			RunID:      "run-456",
			Err:        errors.New("underlying error"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartPoll")
		assert.Contains(t, msg, "workflow already started")
		assert.Contains(t, msg, "wf-123")
		assert.Contains(t, msg, "run-456")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Error without workflow IDs", func(t *testing.T) {
		err := &TemporalError{Op: "Health", Kind: ErrConnectionFailed}

		msg := err.Error()
		assert.Contains(t, msg, "Health")
		assert.Contains(t, msg, "connection failed")
		assert.NotContains(t, msg, "workflowID")
	})

	t.Run("Is matches Kind and Unwrap returns cause", func(t *testing.T) {
		underlying := errors.New("underlying")
		err := &TemporalError{Op: "Test", Kind: ErrWorkflowNotFound, Err: underlying}

		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.False(t, errors.Is(err, ErrConnectionFailed))
		assert.Equal(t, underlying, err.Unwrap())
	})
}

func TestWrapTemporalError(t *testing.T) {
	assert.Nil(t, wrapTemporalError("Test", nil, "", ""))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", serviceerror.NewNotFound("not found"), ErrWorkflowNotFound},
		{"already started", serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", ""), ErrWorkflowAlreadyStarted},
		{"namespace", serviceerror.NewNamespaceNotFound("papers"), ErrNamespaceNotFound},
		{"invalid argument", serviceerror.NewInvalidArgument("bad"), ErrInvalidArgument},
		{"deadline", context.DeadlineExceeded, ErrDeadlineExceeded},
		{"canceled", context.Canceled, ErrClientClosed},
		{"unknown", errors.New("boom"), ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := wrapTemporalError("Test", tt.err, "wf-1", "")

			var te *TemporalError
			require.True(t, errors.As(result, &te))
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, "wf-1", te.WorkflowID)
		})
	}
}

func TestPollWorkflowClient_StartPoll(t *testing.T) {
	t.Run("starts workflow by name with fail-on-conflict", func(t *testing.T) {
		c := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		run.On("GetRunID").Return("run-1")

		input := PollWorkflowInput{Sources: []string{"arxiv"}, DateFrom: "2024-05-01"}
		c.On("ExecuteWorkflow", mock.Anything,
			mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
				return o.ID == ScheduledPollWorkflowID &&
					o.TaskQueue == "paper-polls" &&
					o.WorkflowIDConflictPolicy == enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL &&
					o.WorkflowExecutionErrorWhenAlreadyStarted
			}),
			PollWorkflowName, input,
		).Return(run, nil)

		pc := NewPollWorkflowClient(c, ClientConfig{TaskQueue: "paper-polls"})
		runID, err := pc.StartPoll(context.Background(), ScheduledPollWorkflowID, input)

		require.NoError(t, err)
		assert.Equal(t, "run-1", runID)
		c.AssertExpectations(t)
	})

	t.Run("maps already started", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, PollWorkflowName, mock.Anything).
			Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", "run-0"))

		pc := NewPollWorkflowClient(c, ClientConfig{TaskQueue: "paper-polls"})
		_, err := pc.StartPoll(context.Background(), ScheduledPollWorkflowID, PollWorkflowInput{})

		require.Error(t, err)
		assert.True(t, IsWorkflowAlreadyStarted(err))
	})
}

func TestPollWorkflowClient_Closed(t *testing.T) {
	pc := &PollWorkflowClient{taskQueue: "paper-polls", closed: true}
	ctx := context.Background()

	assert.Equal(t, "paper-polls", pc.TaskQueue())
	assert.ErrorIs(t, pc.Health(ctx), ErrClientClosed)

	_, err := pc.StartPoll(ctx, "wf-1", PollWorkflowInput{})
	assert.ErrorIs(t, err, ErrClientClosed)

	var result interface{}
	assert.ErrorIs(t, pc.PollResult(ctx, "wf-1", "run-1", &result), ErrClientClosed)

	_, err = pc.Progress(ctx, "wf-1", "run-1")
	assert.ErrorIs(t, err, ErrClientClosed)

	t.Run("Close is idempotent", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("Close").Return().Once()
		pc := NewPollWorkflowClient(c, ClientConfig{})

		pc.Close()
		pc.Close()

		c.AssertExpectations(t)
	})
}
