package durable

import (
	"context"
	"reflect"
	"sync"
)

// Well-known DispatchContext property names.
const (
	PropertyRuntimeState       = "runtime_state"
	PropertyInstance           = "instance"
	PropertyFunctionName       = "function_name"
	PropertyTaskScheduled      = "task_scheduled"
	PropertyEntityBatchRequest = "entity_batch_request"
	PropertyOrchestratorResult = "orchestrator_result"
	PropertyEntityBatchResult  = "entity_batch_result"
	PropertyActivityResult     = "activity_result"
)

// OrchestrationRuntimeState is what the engine hands to an orchestrator turn.
type OrchestrationRuntimeState struct {
	Name             string
	PastEvents       []HistoryEvent
	NewEvents        []HistoryEvent
	EntityParameters *EntityParameters
}

// ExecutionStarted returns the ExecutionStarted event from past or new events.
func (s *OrchestrationRuntimeState) ExecutionStarted() (*ExecutionStartedEvent, bool) {
	if s == nil {
		return nil, false
	}
	for _, events := range [][]HistoryEvent{s.PastEvents, s.NewEvents} {
		for i := range events {
			if events[i].ExecutionStarted != nil {
				return events[i].ExecutionStarted, true
			}
		}
	}
	return nil, false
}

// IsReplaying reports whether the turn replays previously recorded history.
func (s *OrchestrationRuntimeState) IsReplaying() bool {
	return s != nil && len(s.PastEvents) > 0
}

// OrchestratorExecutionResult is the outcome of an orchestrator turn.
type OrchestratorExecutionResult struct {
	Actions      []OrchestratorAction
	CustomStatus *string
}

// Completion returns the CompleteOrchestration action of the turn, if any.
func (r *OrchestratorExecutionResult) Completion() *CompleteOrchestrationAction {
	if r == nil {
		return nil
	}
	for i := range r.Actions {
		if c := r.Actions[i].CompleteOrchestration; c != nil {
			return c
		}
	}
	return nil
}

// Failed reports whether the turn completed the orchestration as failed.
func (r *OrchestratorExecutionResult) Failed() bool {
	c := r.Completion()
	return c != nil && c.Status == StatusFailed
}

// NewFailedOrchestratorResult completes the orchestration as failed.
func NewFailedOrchestratorResult(details *FailureDetails) *OrchestratorExecutionResult {
	return &OrchestratorExecutionResult{
		Actions: []OrchestratorAction{{
			ID: -1,
			CompleteOrchestration: &CompleteOrchestrationAction{
				Status:         StatusFailed,
				FailureDetails: details,
			},
		}},
	}
}

// ActivityExecutionResult holds the TaskCompleted or TaskFailed response event.
type ActivityExecutionResult struct {
	ResponseEvent HistoryEvent
}

func (r *ActivityExecutionResult) Failed() bool {
	return r != nil && r.ResponseEvent.TaskFailed != nil
}

// DispatchContext is the property bag shared between the engine and the
// dispatch middleware for one work item.
type DispatchContext struct {
	mu         sync.RWMutex
	properties map[string]any
}

func NewDispatchContext() *DispatchContext {
	return &DispatchContext{properties: make(map[string]any)}
}

func (d *DispatchContext) SetProperty(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.properties == nil {
		d.properties = make(map[string]any)
	}
	d.properties[name] = value
}

func (d *DispatchContext) Property(name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.properties[name]
	return v, ok
}

// GetProperty returns the named property when it holds a non-nil T. A
// typed nil pointer, map, slice or func counts as absent.
func GetProperty[T any](d *DispatchContext, name string) (T, bool) {
	var zero T
	v, ok := d.Property(name)
	if !ok || isNil(v) {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

type dispatchContextKey struct{}

func ContextWithDispatch(ctx context.Context, d *DispatchContext) context.Context {
	return context.WithValue(ctx, dispatchContextKey{}, d)
}

func DispatchFromContext(ctx context.Context) *DispatchContext {
	if d, ok := ctx.Value(dispatchContextKey{}).(*DispatchContext); ok {
		return d
	}
	return nil
}
