// Package durable holds the object model shared by the sidecar protocol server
// and the dispatch bridge: orchestration identity and state, the closed history
// and action sum types, entity batches and structured failures.
package durable

import (
	"fmt"
	"time"
)

// OrchestrationInstance identifies one run of one orchestration.
type OrchestrationInstance struct {
	InstanceID  string `json:"instanceId"`
	ExecutionID string `json:"executionId,omitempty"`
}

func (i OrchestrationInstance) String() string {
	if i.ExecutionID == "" {
		return i.InstanceID
	}
	return i.InstanceID + ":" + i.ExecutionID
}

// OrchestrationStatus is the runtime status of an orchestration instance.
// Values are part of the wire contract and must not be reordered.
type OrchestrationStatus int32

const (
	StatusRunning OrchestrationStatus = iota
	StatusCompleted
	StatusContinuedAsNew
	StatusFailed
	StatusCanceled
	StatusTerminated
	StatusPending
	StatusSuspended
)

var statusNames = map[OrchestrationStatus]string{
	StatusRunning:        "Running",
	StatusCompleted:      "Completed",
	StatusContinuedAsNew: "ContinuedAsNew",
	StatusFailed:         "Failed",
	StatusCanceled:       "Canceled",
	StatusTerminated:     "Terminated",
	StatusPending:        "Pending",
	StatusSuspended:      "Suspended",
}

func (s OrchestrationStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrchestrationStatus(%d)", int32(s))
}

// IsTerminal reports whether no further history will be appended.
func (s OrchestrationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusTerminated:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s OrchestrationStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseOrchestrationStatus resolves a status from its name (case sensitive).
func ParseOrchestrationStatus(name string) (OrchestrationStatus, bool) {
	for status, n := range statusNames {
		if n == name {
			return status, true
		}
	}
	return 0, false
}

// OrchestrationState is the engine's current view of one instance.
type OrchestrationState struct {
	Instance           OrchestrationInstance
	Name               string
	Version            *string
	Status             OrchestrationStatus
	CreatedTime        time.Time
	LastUpdatedTime    time.Time
	ScheduledStartTime *time.Time
	Input              *string
	Output             *string
	CustomStatus       *string
	FailureDetails     *FailureDetails
}

// TraceContext carries distributed tracing parent information.
type TraceContext struct {
	TraceParent string
	TraceState  *string
}

// TaskMessage is a history event addressed to an instance, submitted to the engine.
type TaskMessage struct {
	Instance OrchestrationInstance
	Event    HistoryEvent
}
