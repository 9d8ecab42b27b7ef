package wire

import (
	durable "github.com/goliatone/go-durable"
)

// ActionToWire maps every orchestrator action variant.
func ActionToWire(a durable.OrchestratorAction) (OrchestratorAction, error) {
	out := OrchestratorAction{ID: a.ID}

	switch a.Kind() {
	case durable.ActionKindScheduleTask:
		v := a.ScheduleTask
		out.ScheduleTask = &ScheduleTaskAction{Name: v.Name, Version: v.Version, Input: v.Input}
	case durable.ActionKindCreateSubOrchestration:
		v := a.CreateSubOrchestration
		out.CreateSubOrchestration = &CreateSubOrchestrationAction{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}
	case durable.ActionKindCreateTimer:
		out.CreateTimer = &CreateTimerAction{FireAt: NewTimestamp(a.CreateTimer.FireAt)}
	case durable.ActionKindSendEvent:
		v := a.SendEvent
		out.SendEvent = &SendEventAction{
			Instance: instanceToWire(v.Instance),
			Name:     v.Name,
			Data:     v.Data,
		}
	case durable.ActionKindCompleteOrchestration:
		v := a.CompleteOrchestration
		carryover, err := HistoryToWire(v.CarryoverEvents)
		if err != nil {
			return OrchestratorAction{}, err
		}
		out.CompleteOrchestration = &CompleteOrchestrationAction{
			OrchestrationStatus: int32(v.Status),
			Result:              v.Result,
			Details:             v.Details,
			NewVersion:          v.NewVersion,
			CarryoverEvents:     carryover,
			FailureDetails:      FailureToWire(v.FailureDetails),
		}
	default:
		return OrchestratorAction{}, durable.UnsupportedVariant("orchestrator action", a.Kind())
	}
	return out, nil
}

// ActionFromWire is the inverse of ActionToWire. Carryover events other than
// EventRaised are not carried into the next generation and are skipped.
func ActionFromWire(a OrchestratorAction) (durable.OrchestratorAction, error) {
	out := durable.OrchestratorAction{ID: a.ID}
	if n := a.variantCount(); n != 1 {
		return durable.OrchestratorAction{}, durable.UnsupportedVariant("wire orchestrator action", n)
	}

	switch {
	case a.ScheduleTask != nil:
		v := a.ScheduleTask
		out.ScheduleTask = &durable.ScheduleTaskAction{Name: v.Name, Version: v.Version, Input: v.Input}
	case a.CreateSubOrchestration != nil:
		v := a.CreateSubOrchestration
		out.CreateSubOrchestration = &durable.CreateSubOrchestrationAction{
			InstanceID: v.InstanceID,
			Name:       v.Name,
			Version:    v.Version,
			Input:      v.Input,
		}
	case a.CreateTimer != nil:
		out.CreateTimer = &durable.CreateTimerAction{FireAt: a.CreateTimer.FireAt.Time()}
	case a.SendEvent != nil:
		v := a.SendEvent
		out.SendEvent = &durable.SendEventAction{
			Instance: instanceFromWire(v.Instance),
			Name:     v.Name,
			Data:     v.Data,
		}
	case a.CompleteOrchestration != nil:
		v := a.CompleteOrchestration
		complete := &durable.CompleteOrchestrationAction{
			Status:         durable.OrchestrationStatus(v.OrchestrationStatus),
			Result:         v.Result,
			Details:        v.Details,
			NewVersion:     v.NewVersion,
			FailureDetails: FailureFromWire(v.FailureDetails),
		}
		for _, e := range v.CarryoverEvents {
			if e.EventRaised == nil {
				continue
			}
			complete.CarryoverEvents = append(complete.CarryoverEvents, durable.HistoryEvent{
				EventID:     e.EventID,
				Timestamp:   e.Timestamp.Time(),
				EventRaised: &durable.EventRaisedEvent{Name: e.EventRaised.Name, Input: e.EventRaised.Input},
			})
		}
		out.CompleteOrchestration = complete
	}
	return out, nil
}

func (a *OrchestratorAction) variantCount() int {
	n := 0
	for _, set := range []bool{
		a.ScheduleTask != nil,
		a.CreateSubOrchestration != nil,
		a.CreateTimer != nil,
		a.SendEvent != nil,
		a.CompleteOrchestration != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func ActionsToWire(actions []durable.OrchestratorAction) ([]OrchestratorAction, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	out := make([]OrchestratorAction, 0, len(actions))
	for i := range actions {
		a, err := ActionToWire(actions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func ActionsFromWire(actions []OrchestratorAction) ([]durable.OrchestratorAction, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	out := make([]durable.OrchestratorAction, 0, len(actions))
	for i := range actions {
		a, err := ActionFromWire(actions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
