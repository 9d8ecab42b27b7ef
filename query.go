package durable

import "time"

// OrchestrationQuery filters instances for paged listing.
type OrchestrationQuery struct {
	RuntimeStatus         []OrchestrationStatus
	CreatedTimeFrom       *time.Time
	CreatedTimeTo         *time.Time
	TaskHubNames          []string
	InstanceIDPrefix      *string
	PageSize              int
	ContinuationToken     *string
	FetchInputsAndOutputs bool
}

// Normalize replaces empty filter lists with nil; engines treat an empty list
// as "match nothing" while clients commonly send it meaning "no filter".
func (q OrchestrationQuery) Normalize() OrchestrationQuery {
	if len(q.RuntimeStatus) == 0 {
		q.RuntimeStatus = nil
	}
	if len(q.TaskHubNames) == 0 {
		q.TaskHubNames = nil
	}
	return q
}

type OrchestrationQueryResult struct {
	States            []OrchestrationState
	ContinuationToken *string
}

// PurgeInstanceFilter selects instances to purge by creation time and status.
type PurgeInstanceFilter struct {
	CreatedTimeFrom time.Time
	CreatedTimeTo   *time.Time
	RuntimeStatus   []OrchestrationStatus
}

type PurgeResult struct {
	DeletedInstanceCount int
}
