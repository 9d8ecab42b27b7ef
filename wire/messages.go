package wire

import (
	"time"

	durable "github.com/goliatone/go-durable"
)

// NewOrchestratorRequest packages the past and new history of one turn.
func NewOrchestratorRequest(instance durable.OrchestrationInstance, state *durable.OrchestrationRuntimeState) (*OrchestratorRequest, error) {
	past, err := HistoryToWire(state.PastEvents)
	if err != nil {
		return nil, err
	}
	next, err := HistoryToWire(state.NewEvents)
	if err != nil {
		return nil, err
	}
	req := &OrchestratorRequest{
		InstanceID:       instance.InstanceID,
		PastEvents:       past,
		NewEvents:        next,
		EntityParameters: EntityParametersToWire(state.EntityParameters),
	}
	if instance.ExecutionID != "" {
		executionID := instance.ExecutionID
		req.ExecutionID = &executionID
	}
	return req, nil
}

// NewOrchestratorResponse is what a worker returns after a turn.
func NewOrchestratorResponse(instanceID string, result *durable.OrchestratorExecutionResult) (*OrchestratorResponse, error) {
	actions, err := ActionsToWire(result.Actions)
	if err != nil {
		return nil, err
	}
	return &OrchestratorResponse{
		InstanceID:   instanceID,
		Actions:      actions,
		CustomStatus: result.CustomStatus,
	}, nil
}

func OrchestratorResponseFromWire(resp *OrchestratorResponse) (*durable.OrchestratorExecutionResult, error) {
	actions, err := ActionsFromWire(resp.Actions)
	if err != nil {
		return nil, err
	}
	return &durable.OrchestratorExecutionResult{
		Actions:      actions,
		CustomStatus: resp.CustomStatus,
	}, nil
}

// NewActivityRequest builds the request for the activity scheduled by event.
func NewActivityRequest(instance durable.OrchestrationInstance, event durable.HistoryEvent) (*ActivityRequest, error) {
	if event.TaskScheduled == nil {
		return nil, durable.UnsupportedVariant("activity trigger", event.Kind())
	}
	return &ActivityRequest{
		Name:                  event.TaskScheduled.Name,
		Version:               event.TaskScheduled.Version,
		Input:                 event.TaskScheduled.Input,
		OrchestrationInstance: instanceToWire(instance),
		TaskID:                event.EventID,
	}, nil
}

// ActivityResponseToEvent converts a worker response into the TaskCompleted
// or TaskFailed event answering the scheduled task.
func ActivityResponseToEvent(resp *ActivityResponse, now time.Time) durable.HistoryEvent {
	e := durable.HistoryEvent{EventID: -1, Timestamp: now}
	if resp.FailureDetails != nil {
		e.TaskFailed = &durable.TaskFailedEvent{
			TaskScheduledID: resp.TaskID,
			FailureDetails:  FailureFromWire(resp.FailureDetails),
		}
		return e
	}
	e.TaskCompleted = &durable.TaskCompletedEvent{
		TaskScheduledID: resp.TaskID,
		Result:          resp.Result,
	}
	return e
}
