// Package memory is an in-memory engine backend. It keeps instance state and
// history in maps, supports every optional capability and hands orchestrator
// work items to a dispatch bridge. It does not schedule or replay work.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	ErrCodeInstanceExists    = "INSTANCE_EXISTS"
	ErrCodeInvalidToken      = "INVALID_CONTINUATION_TOKEN"
	ErrCodeInvalidTransition = "INVALID_STATUS_TRANSITION"

	DefaultPageSize = 100
)

type record struct {
	state   durable.OrchestrationState
	history []durable.HistoryEvent
	inbox   []durable.HistoryEvent
}

// Backend is a thread-safe in-memory engine.Backend.
type Backend struct {
	mu        sync.RWMutex
	hub       string
	created   bool
	instances map[string]*record
	changed   chan struct{}
	now       func() time.Time
}

var (
	_ engine.Backend     = (*Backend)(nil)
	_ engine.QueryClient = (*Backend)(nil)
	_ engine.PurgeClient = (*Backend)(nil)
)

type Option func(*Backend)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates an empty backend for the named task hub.
func New(hub string, opts ...Option) *Backend {
	b := &Backend{
		hub:       hub,
		instances: make(map[string]*record),
		changed:   make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Hub returns the task hub name.
func (b *Backend) Hub() string {
	return b.hub
}

func (b *Backend) CreateTaskHub(_ context.Context, recreateIfExists bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created && recreateIfExists {
		b.instances = make(map[string]*record)
		b.notifyLocked()
	}
	b.created = true
	return nil
}

func (b *Backend) DeleteTaskHub(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances = make(map[string]*record)
	b.created = false
	b.notifyLocked()
	return nil
}

// TaskHubExists reports whether CreateTaskHub ran since the last delete.
func (b *Backend) TaskHubExists() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.created
}

// CreateOrchestration records a new pending instance. An existing instance
// may only be replaced once it reached a terminal status.
func (b *Backend) CreateOrchestration(_ context.Context, msg durable.TaskMessage) error {
	started := msg.Event.ExecutionStarted
	if msg.Event.Kind() != durable.EventKindExecutionStarted {
		return durable.NewError(durable.ErrInvalidRequest, "create requires an execution started event", nil, nil)
	}
	id := msg.Instance.InstanceID
	if id == "" {
		return durable.NewError(durable.ErrInvalidRequest, "instance id required", nil, nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.instances[id]; ok && !existing.state.Status.IsTerminal() {
		return errors.New(fmt.Sprintf("instance %q already exists", id), errors.CategoryConflict).
			WithTextCode(ErrCodeInstanceExists).
			WithMetadata(map[string]any{"instance_id": id, "status": existing.state.Status.String()})
	}

	instance := msg.Instance
	if instance.ExecutionID == "" {
		instance.ExecutionID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	now := b.now().UTC()
	event := cloneEvent(msg.Event)
	event.ExecutionStarted.Instance = instance

	b.instances[id] = &record{
		state: durable.OrchestrationState{
			Instance:           instance,
			Name:               started.Name,
			Version:            started.Version,
			Status:             durable.StatusPending,
			CreatedTime:        now,
			LastUpdatedTime:    now,
			ScheduledStartTime: started.ScheduledStartTime,
			Input:              started.Input,
		},
		inbox: []durable.HistoryEvent{event},
	}
	b.notifyLocked()
	return nil
}

// SendMessage queues an event for an existing instance.
func (b *Backend) SendMessage(_ context.Context, msg durable.TaskMessage) error {
	if msg.Event.Kind() == durable.EventKindUnknown {
		return durable.UnsupportedVariant("history event", msg.Event.Kind())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.lookupLocked(msg.Instance.InstanceID)
	if err != nil {
		return err
	}
	rec.inbox = append(rec.inbox, cloneEvent(msg.Event))
	rec.state.LastUpdatedTime = b.now().UTC()
	b.notifyLocked()
	return nil
}

func (b *Backend) Terminate(_ context.Context, instanceID, reason string) error {
	return b.transition(instanceID, func(rec *record) error {
		if rec.state.Status.IsTerminal() {
			return nil
		}
		rec.state.Status = durable.StatusTerminated
		rec.state.Output = optionalString(reason)
		rec.history = append(rec.history, durable.HistoryEvent{
			EventID:   -1,
			Timestamp: b.now().UTC(),
			ExecutionTerminated: &durable.ExecutionTerminatedEvent{
				Input: optionalString(reason),
			},
		})
		return nil
	})
}

func (b *Backend) Suspend(_ context.Context, instanceID, reason string) error {
	return b.transition(instanceID, func(rec *record) error {
		switch rec.state.Status {
		case durable.StatusSuspended:
			return nil
		case durable.StatusRunning, durable.StatusPending:
		default:
			return invalidTransition(instanceID, rec.state.Status, durable.StatusSuspended)
		}
		rec.state.Status = durable.StatusSuspended
		rec.history = append(rec.history, durable.HistoryEvent{
			EventID:            -1,
			Timestamp:          b.now().UTC(),
			ExecutionSuspended: &durable.ExecutionSuspendedEvent{Reason: optionalString(reason)},
		})
		return nil
	})
}

func (b *Backend) Resume(_ context.Context, instanceID, reason string) error {
	return b.transition(instanceID, func(rec *record) error {
		switch rec.state.Status {
		case durable.StatusRunning:
			return nil
		case durable.StatusSuspended:
		default:
			return invalidTransition(instanceID, rec.state.Status, durable.StatusRunning)
		}
		rec.state.Status = durable.StatusRunning
		rec.history = append(rec.history, durable.HistoryEvent{
			EventID:          -1,
			Timestamp:        b.now().UTC(),
			ExecutionResumed: &durable.ExecutionResumedEvent{Reason: optionalString(reason)},
		})
		return nil
	})
}

// Rewind returns a failed instance to running and clears its failure.
func (b *Backend) Rewind(_ context.Context, instanceID, _ string) error {
	return b.transition(instanceID, func(rec *record) error {
		if rec.state.Status != durable.StatusFailed {
			return invalidTransition(instanceID, rec.state.Status, durable.StatusRunning)
		}
		rec.state.Status = durable.StatusRunning
		rec.state.FailureDetails = nil
		rec.state.Output = nil
		return nil
	})
}

func (b *Backend) GetState(_ context.Context, instanceID string) (*durable.OrchestrationState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.instances[instanceID]
	if !ok {
		return nil, nil
	}
	state := cloneState(rec.state)
	return &state, nil
}

// WaitForOrchestration blocks until the instance is terminal or ctx is done.
func (b *Backend) WaitForOrchestration(ctx context.Context, instanceID string) (*durable.OrchestrationState, error) {
	for {
		b.mu.RLock()
		rec, ok := b.instances[instanceID]
		var state durable.OrchestrationState
		if ok {
			state = cloneState(rec.state)
		}
		changed := b.changed
		b.mu.RUnlock()

		if !ok {
			return nil, instanceNotFound(instanceID)
		}
		if state.Status.IsTerminal() {
			return &state, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// QueryInstances lists instances ordered by creation time then id. The
// continuation token is the decimal offset of the next page.
func (b *Backend) QueryInstances(_ context.Context, query durable.OrchestrationQuery) (*durable.OrchestrationQueryResult, error) {
	query = query.Normalize()

	offset := 0
	if query.ContinuationToken != nil && *query.ContinuationToken != "" {
		n, err := strconv.Atoi(*query.ContinuationToken)
		if err != nil || n < 0 {
			return nil, errors.New("invalid continuation token", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidToken).
				WithMetadata(map[string]any{"token": *query.ContinuationToken})
		}
		offset = n
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	b.mu.RLock()
	matches := make([]durable.OrchestrationState, 0, len(b.instances))
	if b.hubMatches(query.TaskHubNames) {
		for _, rec := range b.instances {
			if queryMatches(query, rec.state) {
				matches = append(matches, cloneState(rec.state))
			}
		}
	}
	b.mu.RUnlock()

	sortStates(matches)

	result := &durable.OrchestrationQueryResult{}
	if offset >= len(matches) {
		return result, nil
	}
	end := offset + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	page := matches[offset:end]
	if !query.FetchInputsAndOutputs {
		for i := range page {
			page[i].Input = nil
			page[i].Output = nil
			page[i].CustomStatus = nil
		}
	}
	result.States = page
	if end < len(matches) {
		token := strconv.Itoa(end)
		result.ContinuationToken = &token
	}
	return result, nil
}

// PurgeInstance deletes a terminal instance. Missing or running instances
// count as zero deletions.
func (b *Backend) PurgeInstance(_ context.Context, instanceID string) (*durable.PurgeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.instances[instanceID]
	if !ok || !rec.state.Status.IsTerminal() {
		return &durable.PurgeResult{}, nil
	}
	delete(b.instances, instanceID)
	b.notifyLocked()
	return &durable.PurgeResult{DeletedInstanceCount: 1}, nil
}

// PurgeInstances deletes terminal instances matching filter.
func (b *Backend) PurgeInstances(_ context.Context, filter durable.PurgeInstanceFilter) (*durable.PurgeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	deleted := 0
	for id, rec := range b.instances {
		if !purgeMatches(filter, rec.state) {
			continue
		}
		delete(b.instances, id)
		deleted++
	}
	if deleted > 0 {
		b.notifyLocked()
	}
	return &durable.PurgeResult{DeletedInstanceCount: deleted}, nil
}

// History returns a copy of the committed history of an instance.
func (b *Backend) History(instanceID string) []durable.HistoryEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.instances[instanceID]
	if !ok {
		return nil
	}
	return cloneEvents(rec.history)
}

// WorkItem returns the orchestrator work item for an instance: the committed
// history as past events and the queued messages as new events.
func (b *Backend) WorkItem(instanceID string) (durable.OrchestrationInstance, *durable.OrchestrationRuntimeState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.instances[instanceID]
	if !ok {
		return durable.OrchestrationInstance{}, nil, instanceNotFound(instanceID)
	}
	return rec.state.Instance, &durable.OrchestrationRuntimeState{
		Name:       rec.state.Name,
		PastEvents: cloneEvents(rec.history),
		NewEvents:  cloneEvents(rec.inbox),
	}, nil
}

// Commit applies an orchestrator turn: queued messages move to history, each
// scheduling action is recorded, and a completion action sets the final
// status. A turn without completion leaves the instance running.
func (b *Backend) Commit(instanceID string, result *durable.OrchestratorExecutionResult) error {
	if result == nil {
		return durable.NewError(durable.ErrInvalidRequest, "orchestrator result required", nil, nil)
	}
	return b.transition(instanceID, func(rec *record) error {
		now := b.now().UTC()
		rec.history = append(rec.history, rec.inbox...)
		rec.inbox = nil

		for i := range result.Actions {
			action := result.Actions[i]
			if event, ok := action.ToHistoryEvent(now); ok {
				rec.history = append(rec.history, event)
			}
		}
		rec.state.CustomStatus = result.CustomStatus

		complete := result.Completion()
		if complete == nil {
			if rec.state.Status == durable.StatusPending {
				rec.state.Status = durable.StatusRunning
			}
			return nil
		}
		rec.state.Status = complete.Status
		rec.state.Output = complete.Result
		rec.state.FailureDetails = complete.FailureDetails
		rec.history = append(rec.history, durable.HistoryEvent{
			EventID:   -1,
			Timestamp: now,
			ExecutionCompleted: &durable.ExecutionCompletedEvent{
				Status:         complete.Status,
				Result:         complete.Result,
				FailureDetails: complete.FailureDetails,
			},
		})
		return nil
	})
}

// SetStatus forces an instance into status. It exists for hosts and tests
// that drive instances without a worker.
func (b *Backend) SetStatus(instanceID string, status durable.OrchestrationStatus, output *string, failure *durable.FailureDetails) error {
	if !status.Valid() {
		return durable.UnsupportedVariant("orchestration status", status)
	}
	return b.transition(instanceID, func(rec *record) error {
		rec.state.Status = status
		rec.state.Output = output
		rec.state.FailureDetails = failure
		return nil
	})
}

func (b *Backend) transition(instanceID string, fn func(*record) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.lookupLocked(instanceID)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	rec.state.LastUpdatedTime = b.now().UTC()
	b.notifyLocked()
	return nil
}

func (b *Backend) lookupLocked(instanceID string) (*record, error) {
	rec, ok := b.instances[instanceID]
	if !ok {
		return nil, instanceNotFound(instanceID)
	}
	return rec, nil
}

// notifyLocked wakes every waiter. Callers hold b.mu for writing.
func (b *Backend) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Backend) hubMatches(names []string) bool {
	if names == nil {
		return true
	}
	for _, name := range names {
		if strings.EqualFold(name, b.hub) {
			return true
		}
	}
	return false
}

func queryMatches(q durable.OrchestrationQuery, s durable.OrchestrationState) bool {
	if q.RuntimeStatus != nil && !containsStatus(q.RuntimeStatus, s.Status) {
		return false
	}
	if q.CreatedTimeFrom != nil && s.CreatedTime.Before(*q.CreatedTimeFrom) {
		return false
	}
	if q.CreatedTimeTo != nil && s.CreatedTime.After(*q.CreatedTimeTo) {
		return false
	}
	if q.InstanceIDPrefix != nil && !strings.HasPrefix(s.Instance.InstanceID, *q.InstanceIDPrefix) {
		return false
	}
	return true
}

func purgeMatches(f durable.PurgeInstanceFilter, s durable.OrchestrationState) bool {
	if !s.Status.IsTerminal() {
		return false
	}
	if s.CreatedTime.Before(f.CreatedTimeFrom) {
		return false
	}
	if f.CreatedTimeTo != nil && s.CreatedTime.After(*f.CreatedTimeTo) {
		return false
	}
	if len(f.RuntimeStatus) > 0 && !containsStatus(f.RuntimeStatus, s.Status) {
		return false
	}
	return true
}

func containsStatus(list []durable.OrchestrationStatus, s durable.OrchestrationStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortStates(states []durable.OrchestrationState) {
	sort.Slice(states, func(i, j int) bool {
		if !states[i].CreatedTime.Equal(states[j].CreatedTime) {
			return states[i].CreatedTime.Before(states[j].CreatedTime)
		}
		return states[i].Instance.InstanceID < states[j].Instance.InstanceID
	})
}

func instanceNotFound(instanceID string) error {
	return durable.NewError(durable.ErrInstanceNotFound,
		fmt.Sprintf("instance %q not found", instanceID), nil,
		map[string]any{"instance_id": instanceID})
}

func invalidTransition(instanceID string, from, to durable.OrchestrationStatus) error {
	return errors.New(fmt.Sprintf("instance %q cannot move from %s to %s", instanceID, from, to), errors.CategoryConflict).
		WithTextCode(ErrCodeInvalidTransition).
		WithMetadata(map[string]any{"instance_id": instanceID, "from": from.String(), "to": to.String()})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneState(s durable.OrchestrationState) durable.OrchestrationState {
	if s.FailureDetails != nil {
		fd := *s.FailureDetails
		s.FailureDetails = &fd
	}
	return s
}

func cloneEvent(e durable.HistoryEvent) durable.HistoryEvent {
	if e.ExecutionStarted != nil {
		started := *e.ExecutionStarted
		e.ExecutionStarted = &started
	}
	return e
}

func cloneEvents(in []durable.HistoryEvent) []durable.HistoryEvent {
	if len(in) == 0 {
		return nil
	}
	out := make([]durable.HistoryEvent, len(in))
	for i, e := range in {
		out[i] = cloneEvent(e)
	}
	return out
}
