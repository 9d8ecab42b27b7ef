package durable

import "time"

// EventKind discriminates the HistoryEvent variants.
type EventKind int

const (
	EventKindUnknown EventKind = iota
	EventKindExecutionStarted
	EventKindExecutionCompleted
	EventKindExecutionTerminated
	EventKindExecutionSuspended
	EventKindExecutionResumed
	EventKindTaskScheduled
	EventKindTaskCompleted
	EventKindTaskFailed
	EventKindSubOrchestrationCreated
	EventKindSubOrchestrationCompleted
	EventKindSubOrchestrationFailed
	EventKindTimerCreated
	EventKindTimerFired
	EventKindEventRaised
	EventKindEventSent
	EventKindContinueAsNew
	EventKindOrchestratorStarted
	EventKindOrchestratorCompleted
	EventKindGenericEvent
	EventKindHistoryState
)

var eventKindNames = [...]string{
	EventKindUnknown:                   "Unknown",
	EventKindExecutionStarted:          "ExecutionStarted",
	EventKindExecutionCompleted:        "ExecutionCompleted",
	EventKindExecutionTerminated:       "ExecutionTerminated",
	EventKindExecutionSuspended:        "ExecutionSuspended",
	EventKindExecutionResumed:          "ExecutionResumed",
	EventKindTaskScheduled:             "TaskScheduled",
	EventKindTaskCompleted:             "TaskCompleted",
	EventKindTaskFailed:                "TaskFailed",
	EventKindSubOrchestrationCreated:   "SubOrchestrationInstanceCreated",
	EventKindSubOrchestrationCompleted: "SubOrchestrationInstanceCompleted",
	EventKindSubOrchestrationFailed:    "SubOrchestrationInstanceFailed",
	EventKindTimerCreated:              "TimerCreated",
	EventKindTimerFired:                "TimerFired",
	EventKindEventRaised:               "EventRaised",
	EventKindEventSent:                 "EventSent",
	EventKindContinueAsNew:             "ContinueAsNew",
	EventKindOrchestratorStarted:       "OrchestratorStarted",
	EventKindOrchestratorCompleted:     "OrchestratorCompleted",
	EventKindGenericEvent:              "GenericEvent",
	EventKindHistoryState:              "HistoryState",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return eventKindNames[EventKindUnknown]
	}
	return eventKindNames[k]
}

// HistoryEvent is one entry of an orchestration history. Exactly one variant
// pointer is set; the event id is assigned by the engine (-1 when not yet
// assigned).
type HistoryEvent struct {
	EventID   int32
	Timestamp time.Time

	ExecutionStarted          *ExecutionStartedEvent
	ExecutionCompleted        *ExecutionCompletedEvent
	ExecutionTerminated       *ExecutionTerminatedEvent
	ExecutionSuspended        *ExecutionSuspendedEvent
	ExecutionResumed          *ExecutionResumedEvent
	TaskScheduled             *TaskScheduledEvent
	TaskCompleted             *TaskCompletedEvent
	TaskFailed                *TaskFailedEvent
	SubOrchestrationCreated   *SubOrchestrationCreatedEvent
	SubOrchestrationCompleted *SubOrchestrationCompletedEvent
	SubOrchestrationFailed    *SubOrchestrationFailedEvent
	TimerCreated              *TimerCreatedEvent
	TimerFired                *TimerFiredEvent
	EventRaised               *EventRaisedEvent
	EventSent                 *EventSentEvent
	ContinueAsNew             *ContinueAsNewEvent
	OrchestratorStarted       *OrchestratorStartedEvent
	OrchestratorCompleted     *OrchestratorCompletedEvent
	GenericEvent              *GenericEvent
	HistoryState              *HistoryStateEvent
}

// Kind returns the variant of e, or EventKindUnknown when zero or several
// variants are set.
func (e *HistoryEvent) Kind() EventKind {
	if e == nil {
		return EventKindUnknown
	}
	kind := EventKindUnknown
	set := 0
	mark := func(ok bool, k EventKind) {
		if ok {
			kind = k
			set++
		}
	}
	mark(e.ExecutionStarted != nil, EventKindExecutionStarted)
	mark(e.ExecutionCompleted != nil, EventKindExecutionCompleted)
	mark(e.ExecutionTerminated != nil, EventKindExecutionTerminated)
	mark(e.ExecutionSuspended != nil, EventKindExecutionSuspended)
	mark(e.ExecutionResumed != nil, EventKindExecutionResumed)
	mark(e.TaskScheduled != nil, EventKindTaskScheduled)
	mark(e.TaskCompleted != nil, EventKindTaskCompleted)
	mark(e.TaskFailed != nil, EventKindTaskFailed)
	mark(e.SubOrchestrationCreated != nil, EventKindSubOrchestrationCreated)
	mark(e.SubOrchestrationCompleted != nil, EventKindSubOrchestrationCompleted)
	mark(e.SubOrchestrationFailed != nil, EventKindSubOrchestrationFailed)
	mark(e.TimerCreated != nil, EventKindTimerCreated)
	mark(e.TimerFired != nil, EventKindTimerFired)
	mark(e.EventRaised != nil, EventKindEventRaised)
	mark(e.EventSent != nil, EventKindEventSent)
	mark(e.ContinueAsNew != nil, EventKindContinueAsNew)
	mark(e.OrchestratorStarted != nil, EventKindOrchestratorStarted)
	mark(e.OrchestratorCompleted != nil, EventKindOrchestratorCompleted)
	mark(e.GenericEvent != nil, EventKindGenericEvent)
	mark(e.HistoryState != nil, EventKindHistoryState)
	if set != 1 {
		return EventKindUnknown
	}
	return kind
}

// ParentInstanceInfo links a sub-orchestration to the orchestration that created it.
type ParentInstanceInfo struct {
	TaskScheduledID int32
	Name            *string
	Version         *string
	Instance        OrchestrationInstance
}

type ExecutionStartedEvent struct {
	Name               string
	Version            *string
	Input              *string
	Instance           OrchestrationInstance
	ParentInstance     *ParentInstanceInfo
	ScheduledStartTime *time.Time
	ParentTraceContext *TraceContext
	Tags               map[string]string
}

type ExecutionCompletedEvent struct {
	Status         OrchestrationStatus
	Result         *string
	FailureDetails *FailureDetails
}

type ExecutionTerminatedEvent struct {
	Input   *string
	Recurse bool
}

type ExecutionSuspendedEvent struct {
	Reason *string
}

type ExecutionResumedEvent struct {
	Reason *string
}

type TaskScheduledEvent struct {
	Name    string
	Version *string
	Input   *string
}

type TaskCompletedEvent struct {
	TaskScheduledID int32
	Result          *string
}

type TaskFailedEvent struct {
	TaskScheduledID int32
	FailureDetails  *FailureDetails
}

type SubOrchestrationCreatedEvent struct {
	InstanceID string
	Name       string
	Version    *string
	Input      *string
}

type SubOrchestrationCompletedEvent struct {
	TaskScheduledID int32
	Result          *string
}

type SubOrchestrationFailedEvent struct {
	TaskScheduledID int32
	FailureDetails  *FailureDetails
}

type TimerCreatedEvent struct {
	FireAt time.Time
}

type TimerFiredEvent struct {
	FireAt  time.Time
	TimerID int32
}

type EventRaisedEvent struct {
	Name  string
	Input *string
}

type EventSentEvent struct {
	InstanceID string
	Name       string
	Input      *string
}

type ContinueAsNewEvent struct {
	Input *string
}

type OrchestratorStartedEvent struct{}

type OrchestratorCompletedEvent struct{}

type GenericEvent struct {
	Data *string
}

type HistoryStateEvent struct {
	State OrchestrationState
}

// NewExecutionStartedEvent builds the start event the engine records for a new instance.
func NewExecutionStartedEvent(name string, instance OrchestrationInstance, input *string, scheduledStart *time.Time) HistoryEvent {
	return HistoryEvent{
		EventID:   -1,
		Timestamp: time.Now().UTC(),
		ExecutionStarted: &ExecutionStartedEvent{
			Name:               name,
			Input:              input,
			Instance:           instance,
			ScheduledStartTime: scheduledStart,
		},
	}
}

// NewEventRaisedEvent builds an external event message payload.
func NewEventRaisedEvent(name string, input *string) HistoryEvent {
	return HistoryEvent{
		EventID:     -1,
		Timestamp:   time.Now().UTC(),
		EventRaised: &EventRaisedEvent{Name: name, Input: input},
	}
}
