package sidecar

import (
	"strings"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/wire"
)

// Empty is the request and response of methods without fields.
type Empty struct{}

type CreateTaskHubRequest struct {
	RecreateIfExists bool `json:"recreateIfExists,omitempty"`
}

type StartInstanceRequest struct {
	InstanceID              string     `json:"instanceId,omitempty"`
	Name                    string     `json:"name"`
	Version                 *string    `json:"version,omitempty"`
	Input                   *string    `json:"input,omitempty"`
	ScheduledStartTimestamp *time.Time `json:"scheduledStartTimestamp,omitempty"`
}

func (r StartInstanceRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return durable.NewError(durable.ErrInvalidRequest, "orchestration name required", nil, nil)
	}
	return nil
}

type StartInstanceResponse struct {
	InstanceID string `json:"instanceId"`
}

type RaiseEventRequest struct {
	InstanceID string  `json:"instanceId"`
	Name       string  `json:"name"`
	Input      *string `json:"input,omitempty"`
}

func (r RaiseEventRequest) Validate() error {
	if err := requireInstanceID(r.InstanceID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return durable.NewError(durable.ErrInvalidRequest, "event name required", nil,
			map[string]any{"instance_id": r.InstanceID})
	}
	return nil
}

type TerminateRequest struct {
	InstanceID string `json:"instanceId"`
	Output     string `json:"output,omitempty"`
}

func (r TerminateRequest) Validate() error {
	return requireInstanceID(r.InstanceID)
}

// InstanceReasonRequest is shared by suspend, resume and rewind.
type InstanceReasonRequest struct {
	InstanceID string `json:"instanceId"`
	Reason     string `json:"reason,omitempty"`
}

func (r InstanceReasonRequest) Validate() error {
	return requireInstanceID(r.InstanceID)
}

type GetInstanceRequest struct {
	InstanceID          string `json:"instanceId"`
	GetInputsAndOutputs bool   `json:"getInputsAndOutputs,omitempty"`
}

func (r GetInstanceRequest) Validate() error {
	return requireInstanceID(r.InstanceID)
}

type GetInstanceResponse struct {
	Exists             bool                     `json:"exists"`
	OrchestrationState *wire.OrchestrationState `json:"orchestrationState,omitempty"`
}

type InstanceQuery struct {
	RuntimeStatus         []durable.OrchestrationStatus `json:"runtimeStatus,omitempty"`
	CreatedTimeFrom       *time.Time                    `json:"createdTimeFrom,omitempty"`
	CreatedTimeTo         *time.Time                    `json:"createdTimeTo,omitempty"`
	TaskHubNames          []string                      `json:"taskHubNames,omitempty"`
	InstanceIDPrefix      *string                       `json:"instanceIdPrefix,omitempty"`
	MaxInstanceCount      int                           `json:"maxInstanceCount,omitempty"`
	ContinuationToken     *string                       `json:"continuationToken,omitempty"`
	FetchInputsAndOutputs bool                          `json:"fetchInputsAndOutputs,omitempty"`
}

type QueryInstancesRequest struct {
	Query InstanceQuery `json:"query"`
}

func (r QueryInstancesRequest) Validate() error {
	if r.Query.MaxInstanceCount < 0 {
		return durable.NewError(durable.ErrInvalidRequest, "max instance count must not be negative", nil,
			map[string]any{"max_instance_count": r.Query.MaxInstanceCount})
	}
	for _, status := range r.Query.RuntimeStatus {
		if !status.Valid() {
			return durable.UnsupportedVariant("orchestration status", status)
		}
	}
	return nil
}

// toQuery converts the request to an engine query. Empty filter lists mean
// no filter.
func (q InstanceQuery) toQuery() durable.OrchestrationQuery {
	return durable.OrchestrationQuery{
		RuntimeStatus:         q.RuntimeStatus,
		CreatedTimeFrom:       q.CreatedTimeFrom,
		CreatedTimeTo:         q.CreatedTimeTo,
		TaskHubNames:          q.TaskHubNames,
		InstanceIDPrefix:      q.InstanceIDPrefix,
		PageSize:              q.MaxInstanceCount,
		ContinuationToken:     q.ContinuationToken,
		FetchInputsAndOutputs: q.FetchInputsAndOutputs,
	}.Normalize()
}

type QueryInstancesResponse struct {
	OrchestrationState []wire.OrchestrationState `json:"orchestrationState"`
	ContinuationToken  *string                   `json:"continuationToken,omitempty"`
}

type PurgeInstanceFilter struct {
	CreatedTimeFrom time.Time                     `json:"createdTimeFrom"`
	CreatedTimeTo   *time.Time                    `json:"createdTimeTo,omitempty"`
	RuntimeStatus   []durable.OrchestrationStatus `json:"runtimeStatus,omitempty"`
}

// PurgeInstancesRequest selects either one instance or a filter.
type PurgeInstancesRequest struct {
	InstanceID          *string              `json:"instanceId,omitempty"`
	PurgeInstanceFilter *PurgeInstanceFilter `json:"purgeInstanceFilter,omitempty"`
}

func (r PurgeInstancesRequest) Validate() error {
	byID := r.InstanceID != nil
	byFilter := r.PurgeInstanceFilter != nil
	switch {
	case byID && byFilter:
		return durable.NewError(durable.ErrInvalidRequest, "purge request must not set both instance id and filter", nil, nil)
	case !byID && !byFilter:
		return durable.NewError(durable.ErrInvalidRequest, "purge request requires an instance id or a filter", nil, nil)
	case byID:
		return requireInstanceID(*r.InstanceID)
	}
	if r.PurgeInstanceFilter.CreatedTimeFrom.IsZero() {
		return durable.NewError(durable.ErrInvalidRequest, "purge filter requires createdTimeFrom", nil, nil)
	}
	return nil
}

type PurgeInstancesResponse struct {
	DeletedInstanceCount int `json:"deletedInstanceCount"`
}

func requireInstanceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return durable.NewError(durable.ErrInvalidRequest, "instance id required", nil, nil)
	}
	return nil
}
