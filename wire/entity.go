package wire

import (
	"time"

	durable "github.com/goliatone/go-durable"
)

func EntityBatchRequestToWire(r *durable.EntityBatchRequest) *EntityBatchRequest {
	if r == nil {
		return nil
	}
	out := &EntityBatchRequest{InstanceID: r.InstanceID, EntityState: r.EntityState}
	for _, op := range r.Operations {
		out.Operations = append(out.Operations, OperationRequest{
			Operation: op.Operation,
			RequestID: op.RequestID,
			Input:     op.Input,
		})
	}
	return out
}

func EntityBatchRequestFromWire(r *EntityBatchRequest) *durable.EntityBatchRequest {
	if r == nil {
		return nil
	}
	out := &durable.EntityBatchRequest{InstanceID: r.InstanceID, EntityState: r.EntityState}
	for _, op := range r.Operations {
		out.Operations = append(out.Operations, durable.OperationRequest{
			Operation: op.Operation,
			RequestID: op.RequestID,
			Input:     op.Input,
		})
	}
	return out
}

func EntityBatchResultToWire(r *durable.EntityBatchResult) (*EntityBatchResult, error) {
	if r == nil {
		return nil, nil
	}
	out := &EntityBatchResult{
		EntityState:    r.EntityState,
		FailureDetails: FailureToWire(r.FailureDetails),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, OperationResultToWire(res))
	}
	for i, action := range r.Actions {
		a, err := OperationActionToWire(int32(i), action)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, a)
	}
	return out, nil
}

// EntityBatchResultFromWire keeps results in request order.
func EntityBatchResultFromWire(r *EntityBatchResult) (*durable.EntityBatchResult, error) {
	if r == nil {
		return nil, nil
	}
	out := &durable.EntityBatchResult{
		EntityState:    r.EntityState,
		FailureDetails: FailureFromWire(r.FailureDetails),
	}
	for _, res := range r.Results {
		mapped, err := OperationResultFromWire(res)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, mapped)
	}
	for _, action := range r.Actions {
		mapped, err := OperationActionFromWire(action)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, mapped)
	}
	return out, nil
}

func OperationResultToWire(r durable.OperationResult) OperationResult {
	if r.FailureDetails != nil {
		return OperationResult{Failure: &OperationResultFailure{FailureDetails: FailureToWire(r.FailureDetails)}}
	}
	return OperationResult{Success: &OperationResultSuccess{Result: r.Result}}
}

func OperationResultFromWire(r OperationResult) (durable.OperationResult, error) {
	switch {
	case r.Success != nil && r.Failure == nil:
		return durable.OperationResult{Result: r.Success.Result}, nil
	case r.Failure != nil && r.Success == nil:
		details := FailureFromWire(r.Failure.FailureDetails)
		if details == nil {
			details = &durable.FailureDetails{}
		}
		return durable.OperationResult{FailureDetails: details}, nil
	default:
		return durable.OperationResult{}, durable.UnsupportedVariant("operation result", "none or both")
	}
}

func OperationActionToWire(id int32, a durable.OperationAction) (OperationAction, error) {
	out := OperationAction{ID: id}
	switch {
	case a.SendSignal != nil && a.StartNewOrchestration == nil:
		v := a.SendSignal
		out.SendSignal = &SendSignalAction{
			InstanceID:    v.InstanceID,
			Name:          v.Name,
			Input:         v.Input,
			ScheduledTime: optionalTimestamp(v.ScheduledTime),
		}
	case a.StartNewOrchestration != nil && a.SendSignal == nil:
		v := a.StartNewOrchestration
		out.StartNewOrchestration = &StartNewOrchestrationAction{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}
	default:
		return OperationAction{}, durable.UnsupportedVariant("operation action", "none or both")
	}
	return out, nil
}

func OperationActionFromWire(a OperationAction) (durable.OperationAction, error) {
	switch {
	case a.SendSignal != nil && a.StartNewOrchestration == nil:
		v := a.SendSignal
		return durable.OperationAction{SendSignal: &durable.SendSignalAction{
			InstanceID:    v.InstanceID,
			Name:          v.Name,
			Input:         v.Input,
			ScheduledTime: optionalTime(v.ScheduledTime),
		}}, nil
	case a.StartNewOrchestration != nil && a.SendSignal == nil:
		v := a.StartNewOrchestration
		return durable.OperationAction{StartNewOrchestration: &durable.StartNewOrchestrationAction{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}}, nil
	default:
		return durable.OperationAction{}, durable.UnsupportedVariant("wire operation action", "none or both")
	}
}

func EntityParametersToWire(p *durable.EntityParameters) *OrchestratorEntityParameters {
	if p == nil {
		return nil
	}
	return &OrchestratorEntityParameters{EntityMessageReorderWindow: int64(p.MessageReorderWindow)}
}

func EntityParametersFromWire(p *OrchestratorEntityParameters) *durable.EntityParameters {
	if p == nil {
		return nil
	}
	return &durable.EntityParameters{MessageReorderWindow: time.Duration(p.EntityMessageReorderWindow)}
}
