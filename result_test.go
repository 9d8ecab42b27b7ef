package durable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProperty(t *testing.T) {
	dc := NewDispatchContext()
	dc.SetProperty(PropertyFunctionName, "Sum")
	dc.SetProperty(PropertyRuntimeState, &OrchestrationRuntimeState{Name: "Sum"})

	name, ok := GetProperty[string](dc, PropertyFunctionName)
	require.True(t, ok)
	assert.Equal(t, "Sum", name)

	state, ok := GetProperty[*OrchestrationRuntimeState](dc, PropertyRuntimeState)
	require.True(t, ok)
	assert.Equal(t, "Sum", state.Name)

	_, ok = GetProperty[int](dc, PropertyFunctionName)
	assert.False(t, ok, "type mismatch")

	_, ok = GetProperty[string](dc, PropertyTaskScheduled)
	assert.False(t, ok, "absent")
}

func TestGetPropertyTreatsNilAsAbsent(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "untyped nil", value: nil},
		{name: "nil runtime state", value: (*OrchestrationRuntimeState)(nil)},
		{name: "nil batch", value: (*EntityBatchRequest)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := NewDispatchContext()
			dc.SetProperty(PropertyRuntimeState, tt.value)

			state, ok := GetProperty[*OrchestrationRuntimeState](dc, PropertyRuntimeState)
			assert.False(t, ok)
			assert.Nil(t, state)

			_, present := dc.Property(PropertyRuntimeState)
			assert.True(t, present, "the raw property is still recorded")
		})
	}

	var missing *DispatchContext
	_, ok := GetProperty[string](missing, PropertyFunctionName)
	assert.False(t, ok)
}

func TestDispatchContextTravelsWithContext(t *testing.T) {
	dc := NewDispatchContext()
	ctx := ContextWithDispatch(context.Background(), dc)
	assert.Same(t, dc, DispatchFromContext(ctx))
	assert.Nil(t, DispatchFromContext(context.Background()))
}

func TestRuntimeStateExecutionStarted(t *testing.T) {
	started := &ExecutionStartedEvent{Name: "Sum"}
	state := &OrchestrationRuntimeState{
		PastEvents: []HistoryEvent{{EventID: -1, OrchestratorStarted: &OrchestratorStartedEvent{}}},
		NewEvents:  []HistoryEvent{{EventID: -1, ExecutionStarted: started}},
	}

	got, ok := state.ExecutionStarted()
	require.True(t, ok)
	assert.Same(t, started, got)
	assert.True(t, state.IsReplaying())

	var empty *OrchestrationRuntimeState
	_, ok = empty.ExecutionStarted()
	assert.False(t, ok)
	assert.False(t, empty.IsReplaying())
}

func TestFailedOrchestratorResult(t *testing.T) {
	details := &FailureDetails{ErrorType: "DispatchFailure", ErrorMessage: "missing", IsNonRetriable: true}
	result := NewFailedOrchestratorResult(details)

	require.NotNil(t, result.Completion())
	assert.True(t, result.Failed())
	assert.Same(t, details, result.Completion().FailureDetails)

	var none *OrchestratorExecutionResult
	assert.Nil(t, none.Completion())
	assert.False(t, none.Failed())
}

func TestFailureDetailsIsCausedBy(t *testing.T) {
	chain := &FailureDetails{
		ErrorType:    "Microsoft.Azure.WebJobs.FunctionFailedException",
		ErrorMessage: "orchestrator failed",
		Inner: &FailureDetails{
			ErrorType:    "System.OutOfMemoryException",
			ErrorMessage: "out of memory",
		},
	}

	assert.True(t, chain.IsCausedBy("OutOfMemoryException"), "namespace suffix on an inner failure")
	assert.True(t, chain.IsCausedBy("System.OutOfMemoryException"), "exact match")
	assert.True(t, chain.IsCausedBy("FunctionFailedException"))
	assert.False(t, chain.IsCausedBy("MemoryException"), "suffix must start at a namespace boundary")
	assert.False(t, chain.IsCausedBy("TimeoutException"))
	assert.Equal(t, 2, chain.Depth())

	var none *FailureDetails
	assert.False(t, none.IsCausedBy("OutOfMemoryException"))
	assert.Zero(t, none.Depth())
}
