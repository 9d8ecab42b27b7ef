package durable

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// FunctionKind is the role a registered function plays in a task hub.
type FunctionKind int

const (
	FunctionKindOrchestrator FunctionKind = iota + 1
	FunctionKindActivity
	FunctionKindEntity
)

func (k FunctionKind) String() string {
	switch k {
	case FunctionKindOrchestrator:
		return "orchestrator"
	case FunctionKindActivity:
		return "activity"
	case FunctionKindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// Executor runs a worker function. The trigger is one base64 encoded message;
// the returned value must be one base64 encoded string.
type Executor interface {
	Invoke(ctx context.Context, trigger string) (any, error)
}

// ExecutorFunc is an adapter that lets you use a function as an Executor
type ExecutorFunc func(ctx context.Context, trigger string) (any, error)

func (f ExecutorFunc) Invoke(ctx context.Context, trigger string) (any, error) {
	return f(ctx, trigger)
}

// RegisteredFunctionInfo maps a function name to its executor.
type RegisteredFunctionInfo struct {
	Name     string
	Kind     FunctionKind
	Executor Executor
}

// FunctionRegistry is populated once at startup and read-only after Freeze.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[FunctionKind]map[string]RegisteredFunctionInfo
	frozen    bool
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[FunctionKind]map[string]RegisteredFunctionInfo),
	}
}

func (r *FunctionRegistry) Register(kind FunctionKind, name string, executor Executor) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("function name cannot be empty", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidRequest)
	}
	if executor == nil {
		return errors.New("executor cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidRequest).
			WithMetadata(map[string]any{"function": name})
	}
	if kind < FunctionKindOrchestrator || kind > FunctionKindEntity {
		return errors.New("unknown function kind", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidRequest).
			WithMetadata(map[string]any{"function": name, "kind": int(kind)})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return NewError(ErrRegistryFrozen, "cannot register functions after registry has been frozen", nil,
			map[string]any{"function": name})
	}

	byName := r.functions[kind]
	if byName == nil {
		byName = make(map[string]RegisteredFunctionInfo)
		r.functions[kind] = byName
	}
	key := strings.ToLower(name)
	if _, exists := byName[key]; exists {
		return NewError(ErrDuplicateFunction, fmt.Sprintf("%s %q already registered", kind, name), nil,
			map[string]any{"function": name, "kind": kind.String()})
	}
	byName[key] = RegisteredFunctionInfo{Name: name, Kind: kind, Executor: executor}
	return nil
}

func (r *FunctionRegistry) RegisterOrchestrator(name string, executor Executor) error {
	return r.Register(FunctionKindOrchestrator, name, executor)
}

func (r *FunctionRegistry) RegisterActivity(name string, executor Executor) error {
	return r.Register(FunctionKindActivity, name, executor)
}

func (r *FunctionRegistry) RegisterEntity(name string, executor Executor) error {
	return r.Register(FunctionKindEntity, name, executor)
}

// Freeze makes the registry read-only.
func (r *FunctionRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *FunctionRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup finds a function by kind and case-insensitive name.
func (r *FunctionRegistry) Lookup(kind FunctionKind, name string) (RegisteredFunctionInfo, bool) {
	if r == nil {
		return RegisteredFunctionInfo{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.functions[kind][strings.ToLower(strings.TrimSpace(name))]
	return info, ok
}

// Names lists the registered names of one kind in sorted order.
func (r *FunctionRegistry) Names(kind FunctionKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions[kind]))
	for _, info := range r.functions[kind] {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}
