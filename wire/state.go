package wire

import durable "github.com/goliatone/go-durable"

// StateToWire maps an orchestration state. When includeIO is false the
// input, output, custom status and failure details are left out.
func StateToWire(s *durable.OrchestrationState, includeIO bool) *OrchestrationState {
	if s == nil {
		return nil
	}
	out := &OrchestrationState{
		InstanceID:           s.Instance.InstanceID,
		ExecutionID:          s.Instance.ExecutionID,
		Name:                 s.Name,
		Version:              s.Version,
		OrchestrationStatus:  int32(s.Status),
		ScheduledStartTime:   optionalTimestamp(s.ScheduledStartTime),
		CreatedTimestamp:     NewTimestamp(s.CreatedTime),
		LastUpdatedTimestamp: NewTimestamp(s.LastUpdatedTime),
	}
	if includeIO {
		out.Input = s.Input
		out.Output = s.Output
		out.CustomStatus = s.CustomStatus
		out.FailureDetails = FailureToWire(s.FailureDetails)
	}
	return out
}

func StateFromWire(s *OrchestrationState) *durable.OrchestrationState {
	if s == nil {
		return nil
	}
	return &durable.OrchestrationState{
		Instance:           durable.OrchestrationInstance{InstanceID: s.InstanceID, ExecutionID: s.ExecutionID},
		Name:               s.Name,
		Version:            s.Version,
		Status:             durable.OrchestrationStatus(s.OrchestrationStatus),
		CreatedTime:        s.CreatedTimestamp.Time(),
		LastUpdatedTime:    s.LastUpdatedTimestamp.Time(),
		ScheduledStartTime: optionalTime(s.ScheduledStartTime),
		Input:              s.Input,
		Output:             s.Output,
		CustomStatus:       s.CustomStatus,
		FailureDetails:     FailureFromWire(s.FailureDetails),
	}
}
