// Package temporal runs paper polls as Temporal workflows.
//
// The server starts polls through PollWorkflowClient; the worker binary
// hosts PollWorkflow and its activities through WorkerManager. A
// scheduled poll always uses ScheduledPollWorkflowID, so a tick that
// fires while the previous run is still executing is rejected by
// Temporal and reported as already started:
//
//	runID, err := client.StartPoll(ctx, temporal.ScheduledPollWorkflowID, temporal.PollWorkflowInput{})
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // previous poll still running
//	}
//
// Progress of a running poll is exposed through the QueryProgress query.
package temporal
