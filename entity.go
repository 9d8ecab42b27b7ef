package durable

import "time"

// EntityBatchRequest is an ordered list of operations against one entity.
type EntityBatchRequest struct {
	InstanceID  string
	EntityState *string
	Operations  []OperationRequest
}

type OperationRequest struct {
	Operation string
	RequestID string
	Input     *string
}

// EntityBatchResult pairs each operation with its result, in request order.
// A non-nil FailureDetails means the whole batch failed.
type EntityBatchResult struct {
	Results        []OperationResult
	Actions        []OperationAction
	EntityState    *string
	FailureDetails *FailureDetails
}

// OperationResult is either a success (Result, possibly nil) or a failure.
type OperationResult struct {
	Result         *string
	FailureDetails *FailureDetails
}

func (r OperationResult) Failed() bool {
	return r.FailureDetails != nil
}

// OperationAction is a side effect requested by an entity operation. Exactly
// one variant is set.
type OperationAction struct {
	SendSignal            *SendSignalAction
	StartNewOrchestration *StartNewOrchestrationAction
}

type SendSignalAction struct {
	InstanceID    string
	Name          string
	Input         *string
	ScheduledTime *time.Time
}

type StartNewOrchestrationAction struct {
	InstanceID string
	Name       string
	Version    *string
	Input      *string
}

// EntityParameters configures entity messaging for orchestrations.
type EntityParameters struct {
	MessageReorderWindow time.Duration
}
