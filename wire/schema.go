package wire

import "time"

// Timestamp is the single canonical wire timestamp.
type Timestamp struct {
	Seconds int64 `cbor:"1,keyasint,omitempty" json:"seconds,omitempty"`
	Nanos   int32 `cbor:"2,keyasint,omitempty" json:"nanos,omitempty"`
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the timestamp in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

func optionalTimestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}

func optionalTime(ts *Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time()
	return &t
}

type OrchestrationInstance struct {
	InstanceID  string `cbor:"1,keyasint,omitempty"`
	ExecutionID string `cbor:"2,keyasint,omitempty"`
}

type TaskFailureDetails struct {
	ErrorType      string              `cbor:"1,keyasint,omitempty" json:"errorType,omitempty"`
	ErrorMessage   string              `cbor:"2,keyasint,omitempty" json:"errorMessage,omitempty"`
	StackTrace     *string             `cbor:"3,keyasint,omitempty" json:"stackTrace,omitempty"`
	InnerFailure   *TaskFailureDetails `cbor:"4,keyasint,omitempty" json:"innerFailure,omitempty"`
	IsNonRetriable bool                `cbor:"5,keyasint,omitempty" json:"isNonRetriable,omitempty"`
}

type TraceContext struct {
	TraceParent string  `cbor:"1,keyasint,omitempty"`
	TraceState  *string `cbor:"2,keyasint,omitempty"`
}

type ParentInstanceInfo struct {
	TaskScheduledID       int32                 `cbor:"1,keyasint"`
	Name                  *string               `cbor:"2,keyasint,omitempty"`
	Version               *string               `cbor:"3,keyasint,omitempty"`
	OrchestrationInstance OrchestrationInstance `cbor:"4,keyasint"`
}

type OrchestrationState struct {
	InstanceID           string              `cbor:"1,keyasint,omitempty" json:"instanceId"`
	ExecutionID          string              `cbor:"2,keyasint,omitempty" json:"executionId,omitempty"`
	Name                 string              `cbor:"3,keyasint,omitempty" json:"name"`
	Version              *string             `cbor:"4,keyasint,omitempty" json:"version,omitempty"`
	OrchestrationStatus  int32               `cbor:"5,keyasint" json:"status"`
	ScheduledStartTime   *Timestamp          `cbor:"6,keyasint,omitempty" json:"scheduledStartTimestamp,omitempty"`
	CreatedTimestamp     Timestamp           `cbor:"7,keyasint" json:"createdTimestamp"`
	LastUpdatedTimestamp Timestamp           `cbor:"8,keyasint" json:"lastUpdatedTimestamp"`
	Input                *string             `cbor:"9,keyasint,omitempty" json:"input,omitempty"`
	Output               *string             `cbor:"10,keyasint,omitempty" json:"output,omitempty"`
	CustomStatus         *string             `cbor:"11,keyasint,omitempty" json:"customStatus,omitempty"`
	FailureDetails       *TaskFailureDetails `cbor:"12,keyasint,omitempty" json:"failureDetails,omitempty"`
}

// HistoryEvent carries exactly one variant field.
type HistoryEvent struct {
	EventID   int32     `cbor:"1,keyasint"`
	Timestamp Timestamp `cbor:"2,keyasint"`

	ExecutionStarted                  *ExecutionStartedEvent                  `cbor:"10,keyasint,omitempty"`
	ExecutionCompleted                *ExecutionCompletedEvent                `cbor:"11,keyasint,omitempty"`
	ExecutionTerminated               *ExecutionTerminatedEvent               `cbor:"12,keyasint,omitempty"`
	TaskScheduled                     *TaskScheduledEvent                     `cbor:"13,keyasint,omitempty"`
	TaskCompleted                     *TaskCompletedEvent                     `cbor:"14,keyasint,omitempty"`
	TaskFailed                        *TaskFailedEvent                        `cbor:"15,keyasint,omitempty"`
	SubOrchestrationInstanceCreated   *SubOrchestrationInstanceCreatedEvent   `cbor:"16,keyasint,omitempty"`
	SubOrchestrationInstanceCompleted *SubOrchestrationInstanceCompletedEvent `cbor:"17,keyasint,omitempty"`
	SubOrchestrationInstanceFailed    *SubOrchestrationInstanceFailedEvent    `cbor:"18,keyasint,omitempty"`
	TimerCreated                      *TimerCreatedEvent                      `cbor:"19,keyasint,omitempty"`
	TimerFired                        *TimerFiredEvent                        `cbor:"20,keyasint,omitempty"`
	OrchestratorStarted               *OrchestratorStartedEvent               `cbor:"21,keyasint,omitempty"`
	OrchestratorCompleted             *OrchestratorCompletedEvent             `cbor:"22,keyasint,omitempty"`
	EventSent                         *EventSentEvent                         `cbor:"23,keyasint,omitempty"`
	EventRaised                       *EventRaisedEvent                       `cbor:"24,keyasint,omitempty"`
	GenericEvent                      *GenericEvent                           `cbor:"25,keyasint,omitempty"`
	HistoryState                      *HistoryStateEvent                      `cbor:"26,keyasint,omitempty"`
	ContinueAsNew                     *ContinueAsNewEvent                     `cbor:"27,keyasint,omitempty"`
	ExecutionSuspended                *ExecutionSuspendedEvent                `cbor:"28,keyasint,omitempty"`
	ExecutionResumed                  *ExecutionResumedEvent                  `cbor:"29,keyasint,omitempty"`
}

type ExecutionStartedEvent struct {
	Name                  string                `cbor:"1,keyasint,omitempty"`
	Version               *string               `cbor:"2,keyasint,omitempty"`
	Input                 *string               `cbor:"3,keyasint,omitempty"`
	OrchestrationInstance OrchestrationInstance `cbor:"4,keyasint"`
	ParentInstance        *ParentInstanceInfo   `cbor:"5,keyasint,omitempty"`
	ScheduledStartTime    *Timestamp            `cbor:"6,keyasint,omitempty"`
	ParentTraceContext    *TraceContext         `cbor:"7,keyasint,omitempty"`
	// nil encodes as CBOR null and empty as an empty map, so both survive
	Tags map[string]string `cbor:"8,keyasint"`
}

type ExecutionCompletedEvent struct {
	OrchestrationStatus int32               `cbor:"1,keyasint"`
	Result              *string             `cbor:"2,keyasint,omitempty"`
	FailureDetails      *TaskFailureDetails `cbor:"3,keyasint,omitempty"`
}

type ExecutionTerminatedEvent struct {
	Input   *string `cbor:"1,keyasint,omitempty"`
	Recurse bool    `cbor:"2,keyasint,omitempty"`
}

type ExecutionSuspendedEvent struct {
	Input *string `cbor:"1,keyasint,omitempty"`
}

type ExecutionResumedEvent struct {
	Input *string `cbor:"1,keyasint,omitempty"`
}

type TaskScheduledEvent struct {
	Name    string  `cbor:"1,keyasint,omitempty"`
	Version *string `cbor:"2,keyasint,omitempty"`
	Input   *string `cbor:"3,keyasint,omitempty"`
}

type TaskCompletedEvent struct {
	TaskScheduledID int32   `cbor:"1,keyasint"`
	Result          *string `cbor:"2,keyasint,omitempty"`
}

type TaskFailedEvent struct {
	TaskScheduledID int32               `cbor:"1,keyasint"`
	FailureDetails  *TaskFailureDetails `cbor:"2,keyasint,omitempty"`
}

type SubOrchestrationInstanceCreatedEvent struct {
	InstanceID string  `cbor:"1,keyasint,omitempty"`
	Name       string  `cbor:"2,keyasint,omitempty"`
	Version    *string `cbor:"3,keyasint,omitempty"`
	Input      *string `cbor:"4,keyasint,omitempty"`
}

type SubOrchestrationInstanceCompletedEvent struct {
	TaskScheduledID int32   `cbor:"1,keyasint"`
	Result          *string `cbor:"2,keyasint,omitempty"`
}

type SubOrchestrationInstanceFailedEvent struct {
	TaskScheduledID int32               `cbor:"1,keyasint"`
	FailureDetails  *TaskFailureDetails `cbor:"2,keyasint,omitempty"`
}

type TimerCreatedEvent struct {
	FireAt Timestamp `cbor:"1,keyasint"`
}

type TimerFiredEvent struct {
	FireAt  Timestamp `cbor:"1,keyasint"`
	TimerID int32     `cbor:"2,keyasint"`
}

type OrchestratorStartedEvent struct{}

type OrchestratorCompletedEvent struct{}

type EventSentEvent struct {
	InstanceID string  `cbor:"1,keyasint,omitempty"`
	Name       string  `cbor:"2,keyasint,omitempty"`
	Input      *string `cbor:"3,keyasint,omitempty"`
}

type EventRaisedEvent struct {
	Name  string  `cbor:"1,keyasint,omitempty"`
	Input *string `cbor:"2,keyasint,omitempty"`
}

type GenericEvent struct {
	Data *string `cbor:"1,keyasint,omitempty"`
}

type HistoryStateEvent struct {
	OrchestrationState OrchestrationState `cbor:"1,keyasint"`
}

type ContinueAsNewEvent struct {
	Input *string `cbor:"1,keyasint,omitempty"`
}

// OrchestratorAction carries exactly one variant field.
type OrchestratorAction struct {
	ID int32 `cbor:"1,keyasint"`

	ScheduleTask           *ScheduleTaskAction           `cbor:"10,keyasint,omitempty"`
	CreateSubOrchestration *CreateSubOrchestrationAction `cbor:"11,keyasint,omitempty"`
	CreateTimer            *CreateTimerAction            `cbor:"12,keyasint,omitempty"`
	SendEvent              *SendEventAction              `cbor:"13,keyasint,omitempty"`
	CompleteOrchestration  *CompleteOrchestrationAction  `cbor:"14,keyasint,omitempty"`
}

type ScheduleTaskAction struct {
	Name    string  `cbor:"1,keyasint,omitempty"`
	Version *string `cbor:"2,keyasint,omitempty"`
	Input   *string `cbor:"3,keyasint,omitempty"`
}

type CreateSubOrchestrationAction struct {
	InstanceID string  `cbor:"1,keyasint,omitempty"`
	Name       string  `cbor:"2,keyasint,omitempty"`
	Version    *string `cbor:"3,keyasint,omitempty"`
	Input      *string `cbor:"4,keyasint,omitempty"`
}

type CreateTimerAction struct {
	FireAt Timestamp `cbor:"1,keyasint"`
}

type SendEventAction struct {
	Instance OrchestrationInstance `cbor:"1,keyasint"`
	Name     string                `cbor:"2,keyasint,omitempty"`
	Data     *string               `cbor:"3,keyasint,omitempty"`
}

type CompleteOrchestrationAction struct {
	OrchestrationStatus int32               `cbor:"1,keyasint"`
	Result              *string             `cbor:"2,keyasint,omitempty"`
	Details             *string             `cbor:"3,keyasint,omitempty"`
	NewVersion          *string             `cbor:"4,keyasint,omitempty"`
	CarryoverEvents     []HistoryEvent      `cbor:"5,keyasint,omitempty"`
	FailureDetails      *TaskFailureDetails `cbor:"6,keyasint,omitempty"`
}

// OrchestratorEntityParameters carries the reorder window in nanoseconds.
type OrchestratorEntityParameters struct {
	EntityMessageReorderWindow int64 `cbor:"1,keyasint,omitempty"`
}

type OrchestratorRequest struct {
	InstanceID       string                        `cbor:"1,keyasint,omitempty"`
	ExecutionID      *string                       `cbor:"2,keyasint,omitempty"`
	PastEvents       []HistoryEvent                `cbor:"3,keyasint,omitempty"`
	NewEvents        []HistoryEvent                `cbor:"4,keyasint,omitempty"`
	EntityParameters *OrchestratorEntityParameters `cbor:"5,keyasint,omitempty"`
}

type OrchestratorResponse struct {
	InstanceID   string               `cbor:"1,keyasint,omitempty"`
	Actions      []OrchestratorAction `cbor:"2,keyasint,omitempty"`
	CustomStatus *string              `cbor:"3,keyasint,omitempty"`
}

type ActivityRequest struct {
	Name                  string                `cbor:"1,keyasint,omitempty"`
	Version               *string               `cbor:"2,keyasint,omitempty"`
	Input                 *string               `cbor:"3,keyasint,omitempty"`
	OrchestrationInstance OrchestrationInstance `cbor:"4,keyasint"`
	TaskID                int32                 `cbor:"5,keyasint"`
}

type ActivityResponse struct {
	InstanceID     string              `cbor:"1,keyasint,omitempty"`
	TaskID         int32               `cbor:"2,keyasint"`
	Result         *string             `cbor:"3,keyasint,omitempty"`
	FailureDetails *TaskFailureDetails `cbor:"4,keyasint,omitempty"`
}

type OperationRequest struct {
	Operation string  `cbor:"1,keyasint,omitempty"`
	RequestID string  `cbor:"2,keyasint,omitempty"`
	Input     *string `cbor:"3,keyasint,omitempty"`
}

type EntityBatchRequest struct {
	InstanceID  string             `cbor:"1,keyasint,omitempty"`
	EntityState *string            `cbor:"2,keyasint,omitempty"`
	Operations  []OperationRequest `cbor:"3,keyasint,omitempty"`
}

// OperationResult carries either Success or Failure.
type OperationResult struct {
	Success *OperationResultSuccess `cbor:"1,keyasint,omitempty"`
	Failure *OperationResultFailure `cbor:"2,keyasint,omitempty"`
}

type OperationResultSuccess struct {
	Result *string `cbor:"1,keyasint,omitempty"`
}

type OperationResultFailure struct {
	FailureDetails *TaskFailureDetails `cbor:"1,keyasint,omitempty"`
}

type OperationAction struct {
	ID                    int32                        `cbor:"1,keyasint"`
	SendSignal            *SendSignalAction            `cbor:"2,keyasint,omitempty"`
	StartNewOrchestration *StartNewOrchestrationAction `cbor:"3,keyasint,omitempty"`
}

type SendSignalAction struct {
	InstanceID    string     `cbor:"1,keyasint,omitempty"`
	Name          string     `cbor:"2,keyasint,omitempty"`
	Input         *string    `cbor:"3,keyasint,omitempty"`
	ScheduledTime *Timestamp `cbor:"4,keyasint,omitempty"`
}

type StartNewOrchestrationAction struct {
	InstanceID string  `cbor:"1,keyasint,omitempty"`
	Name       string  `cbor:"2,keyasint,omitempty"`
	Version    *string `cbor:"3,keyasint,omitempty"`
	Input      *string `cbor:"4,keyasint,omitempty"`
}

type EntityBatchResult struct {
	Results        []OperationResult   `cbor:"1,keyasint,omitempty"`
	Actions        []OperationAction   `cbor:"2,keyasint,omitempty"`
	EntityState    *string             `cbor:"3,keyasint,omitempty"`
	FailureDetails *TaskFailureDetails `cbor:"4,keyasint,omitempty"`
}
