package durable

import "time"

// ActionKind discriminates the OrchestratorAction variants.
type ActionKind int

const (
	ActionKindUnknown ActionKind = iota
	ActionKindScheduleTask
	ActionKindCreateSubOrchestration
	ActionKindCreateTimer
	ActionKindSendEvent
	ActionKindCompleteOrchestration
)

func (k ActionKind) String() string {
	switch k {
	case ActionKindScheduleTask:
		return "ScheduleTask"
	case ActionKindCreateSubOrchestration:
		return "CreateSubOrchestration"
	case ActionKindCreateTimer:
		return "CreateTimer"
	case ActionKindSendEvent:
		return "SendEvent"
	case ActionKindCompleteOrchestration:
		return "CompleteOrchestration"
	default:
		return "Unknown"
	}
}

// OrchestratorAction is one decision produced by an orchestrator turn. ID is
// the correlation id later matched by completion events.
type OrchestratorAction struct {
	ID int32

	ScheduleTask           *ScheduleTaskAction
	CreateSubOrchestration *CreateSubOrchestrationAction
	CreateTimer            *CreateTimerAction
	SendEvent              *SendEventAction
	CompleteOrchestration  *CompleteOrchestrationAction
}

// Kind returns the variant of a, or ActionKindUnknown when zero or several
// variants are set.
func (a *OrchestratorAction) Kind() ActionKind {
	if a == nil {
		return ActionKindUnknown
	}
	kind := ActionKindUnknown
	set := 0
	if a.ScheduleTask != nil {
		kind, set = ActionKindScheduleTask, set+1
	}
	if a.CreateSubOrchestration != nil {
		kind, set = ActionKindCreateSubOrchestration, set+1
	}
	if a.CreateTimer != nil {
		kind, set = ActionKindCreateTimer, set+1
	}
	if a.SendEvent != nil {
		kind, set = ActionKindSendEvent, set+1
	}
	if a.CompleteOrchestration != nil {
		kind, set = ActionKindCompleteOrchestration, set+1
	}
	if set != 1 {
		return ActionKindUnknown
	}
	return kind
}

type ScheduleTaskAction struct {
	Name    string
	Version *string
	Input   *string
}

type CreateSubOrchestrationAction struct {
	InstanceID string
	Name       string
	Version    *string
	Input      *string
}

type CreateTimerAction struct {
	FireAt time.Time
}

type SendEventAction struct {
	Instance OrchestrationInstance
	Name     string
	Data     *string
}

type CompleteOrchestrationAction struct {
	Status         OrchestrationStatus
	Result         *string
	Details        *string
	NewVersion     *string
	FailureDetails *FailureDetails
	// CarryoverEvents only ever holds EventRaised events.
	CarryoverEvents []HistoryEvent
}

// ToHistoryEvent converts a scheduling action into the history event the
// engine records for it. The event id is the action's correlation id.
// CompleteOrchestration has no single-event equivalent and reports false.
func (a *OrchestratorAction) ToHistoryEvent(now time.Time) (HistoryEvent, bool) {
	e := HistoryEvent{EventID: a.ID, Timestamp: now}
	switch a.Kind() {
	case ActionKindScheduleTask:
		e.TaskScheduled = &TaskScheduledEvent{
			Name:    a.ScheduleTask.Name,
			Version: a.ScheduleTask.Version,
			Input:   a.ScheduleTask.Input,
		}
	case ActionKindCreateSubOrchestration:
		e.SubOrchestrationCreated = &SubOrchestrationCreatedEvent{
			InstanceID: a.CreateSubOrchestration.InstanceID,
			Name:       a.CreateSubOrchestration.Name,
			Version:    a.CreateSubOrchestration.Version,
			Input:      a.CreateSubOrchestration.Input,
		}
	case ActionKindCreateTimer:
		e.TimerCreated = &TimerCreatedEvent{FireAt: a.CreateTimer.FireAt}
	case ActionKindSendEvent:
		e.EventSent = &EventSentEvent{
			InstanceID: a.SendEvent.Instance.InstanceID,
			Name:       a.SendEvent.Name,
			Input:      a.SendEvent.Data,
		}
	default:
		return HistoryEvent{}, false
	}
	return e, true
}
