package wire

import (
	durable "github.com/goliatone/go-durable"
)

// HistoryEventToWire maps every history variant. An event with no single
// variant set fails with ErrUnsupportedVariant.
func HistoryEventToWire(e durable.HistoryEvent) (HistoryEvent, error) {
	out := HistoryEvent{
		EventID:   e.EventID,
		Timestamp: NewTimestamp(e.Timestamp),
	}

	switch e.Kind() {
	case durable.EventKindExecutionStarted:
		v := e.ExecutionStarted
		out.ExecutionStarted = &ExecutionStartedEvent{
			Name:                  v.Name,
			Version:               v.Version,
			Input:                 v.Input,
			OrchestrationInstance: instanceToWire(v.Instance),
			ScheduledStartTime:    optionalTimestamp(v.ScheduledStartTime),
			ParentTraceContext:    traceToWire(v.ParentTraceContext),
			Tags:                  tagsCopy(v.Tags),
		}
		if p := v.ParentInstance; p != nil {
			out.ExecutionStarted.ParentInstance = &ParentInstanceInfo{
				TaskScheduledID:       p.TaskScheduledID,
				Name:                  p.Name,
				Version:               p.Version,
				OrchestrationInstance: instanceToWire(p.Instance),
			}
		}
	case durable.EventKindExecutionCompleted:
		v := e.ExecutionCompleted
		out.ExecutionCompleted = &ExecutionCompletedEvent{
			OrchestrationStatus: int32(v.Status),
			Result:              v.Result,
			FailureDetails:      FailureToWire(v.FailureDetails),
		}
	case durable.EventKindExecutionTerminated:
		out.ExecutionTerminated = &ExecutionTerminatedEvent{
			Input:   e.ExecutionTerminated.Input,
			Recurse: e.ExecutionTerminated.Recurse,
		}
	case durable.EventKindExecutionSuspended:
		out.ExecutionSuspended = &ExecutionSuspendedEvent{Input: e.ExecutionSuspended.Reason}
	case durable.EventKindExecutionResumed:
		out.ExecutionResumed = &ExecutionResumedEvent{Input: e.ExecutionResumed.Reason}
	case durable.EventKindTaskScheduled:
		v := e.TaskScheduled
		out.TaskScheduled = &TaskScheduledEvent{Name: v.Name, Version: v.Version, Input: v.Input}
	case durable.EventKindTaskCompleted:
		v := e.TaskCompleted
		out.TaskCompleted = &TaskCompletedEvent{TaskScheduledID: v.TaskScheduledID, Result: v.Result}
	case durable.EventKindTaskFailed:
		v := e.TaskFailed
		out.TaskFailed = &TaskFailedEvent{
			TaskScheduledID: v.TaskScheduledID,
			FailureDetails:  FailureToWire(v.FailureDetails),
		}
	case durable.EventKindSubOrchestrationCreated:
		v := e.SubOrchestrationCreated
		out.SubOrchestrationInstanceCreated = &SubOrchestrationInstanceCreatedEvent{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}
	case durable.EventKindSubOrchestrationCompleted:
		v := e.SubOrchestrationCompleted
		out.SubOrchestrationInstanceCompleted = &SubOrchestrationInstanceCompletedEvent{
			TaskScheduledID: v.TaskScheduledID,
			Result:          v.Result,
		}
	case durable.EventKindSubOrchestrationFailed:
		v := e.SubOrchestrationFailed
		out.SubOrchestrationInstanceFailed = &SubOrchestrationInstanceFailedEvent{
			TaskScheduledID: v.TaskScheduledID,
			FailureDetails:  FailureToWire(v.FailureDetails),
		}
	case durable.EventKindTimerCreated:
		out.TimerCreated = &TimerCreatedEvent{FireAt: NewTimestamp(e.TimerCreated.FireAt)}
	case durable.EventKindTimerFired:
		out.TimerFired = &TimerFiredEvent{
			FireAt:  NewTimestamp(e.TimerFired.FireAt),
			TimerID: e.TimerFired.TimerID,
		}
	case durable.EventKindEventRaised:
		out.EventRaised = &EventRaisedEvent{Name: e.EventRaised.Name, Input: e.EventRaised.Input}
	case durable.EventKindEventSent:
		v := e.EventSent
		out.EventSent = &EventSentEvent{InstanceID: v.InstanceID, Name: v.Name, Input: v.Input}
	case durable.EventKindContinueAsNew:
		out.ContinueAsNew = &ContinueAsNewEvent{Input: e.ContinueAsNew.Input}
	case durable.EventKindOrchestratorStarted:
		out.OrchestratorStarted = &OrchestratorStartedEvent{}
	case durable.EventKindOrchestratorCompleted:
		out.OrchestratorCompleted = &OrchestratorCompletedEvent{}
	case durable.EventKindGenericEvent:
		out.GenericEvent = &GenericEvent{Data: e.GenericEvent.Data}
	case durable.EventKindHistoryState:
		out.HistoryState = &HistoryStateEvent{
			OrchestrationState: *StateToWire(&e.HistoryState.State, true),
		}
	default:
		return HistoryEvent{}, durable.UnsupportedVariant("history event", e.Kind())
	}
	return out, nil
}

// HistoryEventFromWire is the inverse of HistoryEventToWire.
func HistoryEventFromWire(e HistoryEvent) (durable.HistoryEvent, error) {
	out := durable.HistoryEvent{
		EventID:   e.EventID,
		Timestamp: e.Timestamp.Time(),
	}
	if n := e.variantCount(); n != 1 {
		return durable.HistoryEvent{}, durable.UnsupportedVariant("wire history event", n)
	}

	switch {
	case e.ExecutionStarted != nil:
		v := e.ExecutionStarted
		out.ExecutionStarted = &durable.ExecutionStartedEvent{
			Name:               v.Name,
			Version:            v.Version,
			Input:              v.Input,
			Instance:           instanceFromWire(v.OrchestrationInstance),
			ScheduledStartTime: optionalTime(v.ScheduledStartTime),
			ParentTraceContext: traceFromWire(v.ParentTraceContext),
			Tags:               tagsCopy(v.Tags),
		}
		if p := v.ParentInstance; p != nil {
			out.ExecutionStarted.ParentInstance = &durable.ParentInstanceInfo{
				TaskScheduledID: p.TaskScheduledID,
				Name:            p.Name,
				Version:         p.Version,
				Instance:        instanceFromWire(p.OrchestrationInstance),
			}
		}
	case e.ExecutionCompleted != nil:
		v := e.ExecutionCompleted
		out.ExecutionCompleted = &durable.ExecutionCompletedEvent{
			Status:         durable.OrchestrationStatus(v.OrchestrationStatus),
			Result:         v.Result,
			FailureDetails: FailureFromWire(v.FailureDetails),
		}
	case e.ExecutionTerminated != nil:
		out.ExecutionTerminated = &durable.ExecutionTerminatedEvent{
			Input:   e.ExecutionTerminated.Input,
			Recurse: e.ExecutionTerminated.Recurse,
		}
	case e.ExecutionSuspended != nil:
		out.ExecutionSuspended = &durable.ExecutionSuspendedEvent{Reason: e.ExecutionSuspended.Input}
	case e.ExecutionResumed != nil:
		out.ExecutionResumed = &durable.ExecutionResumedEvent{Reason: e.ExecutionResumed.Input}
	case e.TaskScheduled != nil:
		v := e.TaskScheduled
		out.TaskScheduled = &durable.TaskScheduledEvent{Name: v.Name, Version: v.Version, Input: v.Input}
	case e.TaskCompleted != nil:
		v := e.TaskCompleted
		out.TaskCompleted = &durable.TaskCompletedEvent{TaskScheduledID: v.TaskScheduledID, Result: v.Result}
	case e.TaskFailed != nil:
		v := e.TaskFailed
		out.TaskFailed = &durable.TaskFailedEvent{
			TaskScheduledID: v.TaskScheduledID,
			FailureDetails:  FailureFromWire(v.FailureDetails),
		}
	case e.SubOrchestrationInstanceCreated != nil:
		v := e.SubOrchestrationInstanceCreated
		out.SubOrchestrationCreated = &durable.SubOrchestrationCreatedEvent{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}
	case e.SubOrchestrationInstanceCompleted != nil:
		v := e.SubOrchestrationInstanceCompleted
		out.SubOrchestrationCompleted = &durable.SubOrchestrationCompletedEvent{
			TaskScheduledID: v.TaskScheduledID,
			Result:          v.Result,
		}
	case e.SubOrchestrationInstanceFailed != nil:
		v := e.SubOrchestrationInstanceFailed
		out.SubOrchestrationFailed = &durable.SubOrchestrationFailedEvent{
			TaskScheduledID: v.TaskScheduledID,
			FailureDetails:  FailureFromWire(v.FailureDetails),
		}
	case e.TimerCreated != nil:
		out.TimerCreated = &durable.TimerCreatedEvent{FireAt: e.TimerCreated.FireAt.Time()}
	case e.TimerFired != nil:
		out.TimerFired = &durable.TimerFiredEvent{
			FireAt:  e.TimerFired.FireAt.Time(),
			TimerID: e.TimerFired.TimerID,
		}
	case e.EventRaised != nil:
		out.EventRaised = &durable.EventRaisedEvent{Name: e.EventRaised.Name, Input: e.EventRaised.Input}
	case e.EventSent != nil:
		v := e.EventSent
		out.EventSent = &durable.EventSentEvent{InstanceID: v.InstanceID, Name: v.Name, Input: v.Input}
	case e.ContinueAsNew != nil:
		out.ContinueAsNew = &durable.ContinueAsNewEvent{Input: e.ContinueAsNew.Input}
	case e.OrchestratorStarted != nil:
		out.OrchestratorStarted = &durable.OrchestratorStartedEvent{}
	case e.OrchestratorCompleted != nil:
		out.OrchestratorCompleted = &durable.OrchestratorCompletedEvent{}
	case e.GenericEvent != nil:
		out.GenericEvent = &durable.GenericEvent{Data: e.GenericEvent.Data}
	case e.HistoryState != nil:
		out.HistoryState = &durable.HistoryStateEvent{
			State: *StateFromWire(&e.HistoryState.OrchestrationState),
		}
	}
	return out, nil
}

func (e *HistoryEvent) variantCount() int {
	n := 0
	for _, set := range []bool{
		e.ExecutionStarted != nil,
		e.ExecutionCompleted != nil,
		e.ExecutionTerminated != nil,
		e.TaskScheduled != nil,
		e.TaskCompleted != nil,
		e.TaskFailed != nil,
		e.SubOrchestrationInstanceCreated != nil,
		e.SubOrchestrationInstanceCompleted != nil,
		e.SubOrchestrationInstanceFailed != nil,
		e.TimerCreated != nil,
		e.TimerFired != nil,
		e.OrchestratorStarted != nil,
		e.OrchestratorCompleted != nil,
		e.EventSent != nil,
		e.EventRaised != nil,
		e.GenericEvent != nil,
		e.HistoryState != nil,
		e.ContinueAsNew != nil,
		e.ExecutionSuspended != nil,
		e.ExecutionResumed != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// HistoryToWire maps a history slice, failing on the first unmapped event.
func HistoryToWire(events []durable.HistoryEvent) ([]HistoryEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	out := make([]HistoryEvent, 0, len(events))
	for i := range events {
		e, err := HistoryEventToWire(events[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func HistoryFromWire(events []HistoryEvent) ([]durable.HistoryEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	out := make([]durable.HistoryEvent, 0, len(events))
	for i := range events {
		e, err := HistoryEventFromWire(events[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
