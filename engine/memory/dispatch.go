package memory

import (
	"context"
	"sort"

	durable "github.com/goliatone/go-durable"
)

// RunFunc executes one work item, typically a bridge pipeline.
type RunFunc func(ctx context.Context, dc *durable.DispatchContext) error

// DispatchOrchestrator runs one orchestrator turn and commits the result run
// leaves in the dispatch context. An error from run, including an abort,
// leaves the instance untouched.
func (b *Backend) DispatchOrchestrator(ctx context.Context, instanceID string, run RunFunc) (*durable.OrchestratorExecutionResult, error) {
	instance, state, err := b.WorkItem(instanceID)
	if err != nil {
		return nil, err
	}

	dc := durable.NewDispatchContext()
	dc.SetProperty(durable.PropertyInstance, instance)
	dc.SetProperty(durable.PropertyRuntimeState, state)
	dc.SetProperty(durable.PropertyFunctionName, state.Name)

	if err := run(ctx, dc); err != nil {
		return nil, err
	}

	result, ok := durable.GetProperty[*durable.OrchestratorExecutionResult](dc, durable.PropertyOrchestratorResult)
	if !ok {
		return nil, durable.NewError(durable.ErrMissingProperty, "orchestrator turn produced no result", nil,
			map[string]any{"instance_id": instanceID, "property": durable.PropertyOrchestratorResult})
	}
	if err := b.Commit(instanceID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// PendingActivities lists scheduled tasks that have no completion or failure
// in the history or inbox of the instance.
func (b *Backend) PendingActivities(instanceID string) []durable.HistoryEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.instances[instanceID]
	if !ok {
		return nil
	}

	answered := map[int32]bool{}
	for _, events := range [][]durable.HistoryEvent{rec.history, rec.inbox} {
		for _, e := range events {
			switch {
			case e.TaskCompleted != nil:
				answered[e.TaskCompleted.TaskScheduledID] = true
			case e.TaskFailed != nil:
				answered[e.TaskFailed.TaskScheduledID] = true
			}
		}
	}

	var pending []durable.HistoryEvent
	for _, e := range rec.history {
		if e.TaskScheduled != nil && !answered[e.EventID] {
			pending = append(pending, cloneEvent(e))
		}
	}
	return pending
}

// DispatchActivity runs one scheduled task and queues the response event for
// the next orchestrator turn.
func (b *Backend) DispatchActivity(ctx context.Context, instanceID string, scheduled durable.HistoryEvent, run RunFunc) (*durable.ActivityExecutionResult, error) {
	b.mu.RLock()
	rec, ok := b.instances[instanceID]
	var instance durable.OrchestrationInstance
	if ok {
		instance = rec.state.Instance
	}
	b.mu.RUnlock()
	if !ok {
		return nil, instanceNotFound(instanceID)
	}

	dc := durable.NewDispatchContext()
	dc.SetProperty(durable.PropertyInstance, instance)
	dc.SetProperty(durable.PropertyTaskScheduled, scheduled)

	if err := run(ctx, dc); err != nil {
		return nil, err
	}

	result, ok := durable.GetProperty[*durable.ActivityExecutionResult](dc, durable.PropertyActivityResult)
	if !ok {
		return nil, durable.NewError(durable.ErrMissingProperty, "activity produced no result", nil,
			map[string]any{"instance_id": instanceID, "property": durable.PropertyActivityResult})
	}
	if err := b.SendMessage(ctx, durable.TaskMessage{Instance: instance, Event: result.ResponseEvent}); err != nil {
		return nil, err
	}
	return result, nil
}

// Runnable lists, sorted by id, the instances with queued messages that are
// neither suspended nor finished.
func (b *Backend) Runnable() []string {
	return b.ids(func(rec *record) bool { return len(rec.inbox) > 0 })
}

// Active lists, sorted by id, the instances that are neither suspended nor
// finished.
func (b *Backend) Active() []string {
	return b.ids(func(*record) bool { return true })
}

// Changed returns a channel closed by the next state change.
func (b *Backend) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

func (b *Backend) ids(match func(*record) bool) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ids []string
	for id, rec := range b.instances {
		status := rec.state.Status
		if status.IsTerminal() || status == durable.StatusSuspended || !match(rec) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
