package durable

import (
	"context"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop() Executor {
	return ExecutorFunc(func(context.Context, string) (any, error) { return "", nil })
}

func TestRegisterAndLookupIgnoreCase(t *testing.T) {
	r := NewFunctionRegistry()
	require.NoError(t, r.RegisterOrchestrator("SayHello", noop()))
	require.NoError(t, r.RegisterActivity("Add", noop()))
	require.NoError(t, r.RegisterEntity("Counter", noop()))

	info, ok := r.Lookup(FunctionKindOrchestrator, "sayhello")
	require.True(t, ok)
	assert.Equal(t, "SayHello", info.Name)
	assert.Equal(t, FunctionKindOrchestrator, info.Kind)

	_, ok = r.Lookup(FunctionKindOrchestrator, "  SAYHELLO ")
	assert.True(t, ok)

	_, ok = r.Lookup(FunctionKindActivity, "SayHello")
	assert.False(t, ok, "lookups are scoped by kind")

	var nilRegistry *FunctionRegistry
	_, ok = nilRegistry.Lookup(FunctionKindActivity, "Add")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAcrossCase(t *testing.T) {
	r := NewFunctionRegistry()
	require.NoError(t, r.RegisterActivity("Add", noop()))

	err := r.RegisterActivity("ADD", noop())
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeDuplicateFunction))
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	require.NoError(t, r.RegisterOrchestrator("Add", noop()), "same name under another kind is allowed")
}

func TestRegisterValidatesInput(t *testing.T) {
	tests := []struct {
		name     string
		kind     FunctionKind
		function string
		executor Executor
	}{
		{name: "empty name", kind: FunctionKindActivity, function: " ", executor: noop()},
		{name: "nil executor", kind: FunctionKindActivity, function: "Add"},
		{name: "unknown kind", kind: FunctionKind(42), function: "Add", executor: noop()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFunctionRegistry().Register(tt.kind, tt.function, tt.executor)
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeInvalidRequest))
		})
	}
}

func TestFreezeMakesRegistryReadOnly(t *testing.T) {
	r := NewFunctionRegistry()
	require.NoError(t, r.RegisterActivity("Add", noop()))
	assert.False(t, r.Frozen())

	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.RegisterActivity("Multiply", noop())
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeRegistryFrozen))

	_, ok := r.Lookup(FunctionKindActivity, "add")
	assert.True(t, ok, "lookups still work after freeze")
}

func TestNamesAreSortedPerKind(t *testing.T) {
	r := NewFunctionRegistry()
	require.NoError(t, r.RegisterActivity("Multiply", noop()))
	require.NoError(t, r.RegisterActivity("Add", noop()))
	require.NoError(t, r.RegisterOrchestrator("Sum", noop()))

	assert.Equal(t, []string{"Add", "Multiply"}, r.Names(FunctionKindActivity))
	assert.Equal(t, []string{"Sum"}, r.Names(FunctionKindOrchestrator))
	assert.Empty(t, r.Names(FunctionKindEntity))
}

func TestFunctionKindString(t *testing.T) {
	assert.Equal(t, "orchestrator", FunctionKindOrchestrator.String())
	assert.Equal(t, "activity", FunctionKindActivity.String())
	assert.Equal(t, "entity", FunctionKindEntity.String())
	assert.Equal(t, "unknown", FunctionKind(0).String())
}
