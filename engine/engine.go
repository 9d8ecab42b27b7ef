// Package engine declares the narrow slice of an orchestration engine the
// sidecar consumes, and routes requests to a backend by task hub and
// connection name.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	durable "github.com/goliatone/go-durable"
)

// Service manages the task hub of one backend.
type Service interface {
	CreateTaskHub(ctx context.Context, recreateIfExists bool) error
	DeleteTaskHub(ctx context.Context) error
}

// Client submits messages to instances and reads their state.
type Client interface {
	CreateOrchestration(ctx context.Context, msg durable.TaskMessage) error
	SendMessage(ctx context.Context, msg durable.TaskMessage) error
	Terminate(ctx context.Context, instanceID, reason string) error
	Suspend(ctx context.Context, instanceID, reason string) error
	Resume(ctx context.Context, instanceID, reason string) error
	Rewind(ctx context.Context, instanceID, reason string) error
	// GetState returns nil without error when the instance does not exist.
	GetState(ctx context.Context, instanceID string) (*durable.OrchestrationState, error)
	// WaitForOrchestration blocks until the instance reaches a terminal
	// status or ctx is done.
	WaitForOrchestration(ctx context.Context, instanceID string) (*durable.OrchestrationState, error)
}

// QueryClient is an optional capability for paged instance listing.
type QueryClient interface {
	QueryInstances(ctx context.Context, query durable.OrchestrationQuery) (*durable.OrchestrationQueryResult, error)
}

// PurgeClient is an optional capability for deleting instance history.
type PurgeClient interface {
	PurgeInstance(ctx context.Context, instanceID string) (*durable.PurgeResult, error)
	PurgeInstances(ctx context.Context, filter durable.PurgeInstanceFilter) (*durable.PurgeResult, error)
}

// Backend is one configured engine connection.
type Backend interface {
	Service
	Client
}

// Provider resolves the backend serving a task hub and connection name.
// Empty values select the default for that dimension.
type Provider interface {
	Backend(taskHub, connection string) (Backend, error)
}

// Key identifies a backend registration.
type Key struct {
	TaskHub    string
	Connection string
}

func (k Key) String() string {
	if k.Connection == "" {
		return k.TaskHub
	}
	return k.TaskHub + "@" + k.Connection
}

func normalizeKey(taskHub, connection string) Key {
	return Key{
		TaskHub:    strings.ToLower(strings.TrimSpace(taskHub)),
		Connection: strings.ToLower(strings.TrimSpace(connection)),
	}
}

// Registry is a thread-safe Provider backed by explicit registrations.
// Lookups are case-insensitive. A request that names only a task hub
// matches that hub's registration without a connection; a request naming
// nothing gets the default backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[Key]Backend
	fallback Backend
}

// NewRegistry creates a registry whose default backend is fallback.
func NewRegistry(fallback Backend) *Registry {
	return &Registry{
		backends: make(map[Key]Backend),
		fallback: fallback,
	}
}

// Register binds backend to a task hub and connection name.
func (r *Registry) Register(taskHub, connection string, backend Backend) error {
	if backend == nil {
		return durable.NewError(durable.ErrInvalidRequest, "backend required", nil, nil)
	}
	key := normalizeKey(taskHub, connection)
	if key.TaskHub == "" && key.Connection == "" {
		r.mu.Lock()
		r.fallback = backend
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[key]; exists {
		return durable.NewError(durable.ErrInvalidRequest,
			fmt.Sprintf("task hub %q already registered", key.String()), nil,
			map[string]any{"task_hub": taskHub, "connection": connection})
	}
	r.backends[key] = backend
	return nil
}

// Backend implements Provider.
func (r *Registry) Backend(taskHub, connection string) (Backend, error) {
	key := normalizeKey(taskHub, connection)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if key.TaskHub == "" && key.Connection == "" {
		if r.fallback == nil {
			return nil, durable.NewError(durable.ErrTaskHubNotFound, "no default task hub configured", nil, nil)
		}
		return r.fallback, nil
	}
	if b, ok := r.backends[key]; ok {
		return b, nil
	}
	return nil, durable.NewError(durable.ErrTaskHubNotFound,
		fmt.Sprintf("task hub %q is not configured", key.String()), nil,
		map[string]any{"task_hub": taskHub, "connection": connection})
}

// Keys returns the registered keys sorted by task hub then connection.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.backends))
	for k := range r.backends {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TaskHub != keys[j].TaskHub {
			return keys[i].TaskHub < keys[j].TaskHub
		}
		return keys[i].Connection < keys[j].Connection
	})
	return keys
}

// Default returns the default backend, or nil.
func (r *Registry) Default() Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}
