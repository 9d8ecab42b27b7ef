package dispatcher

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine/memory"
	"github.com/goliatone/go-durable/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func quiet() durable.Logger { return durable.NewFmtLogger(io.Discard) }

func startSum(t *testing.T, b *memory.Backend, id string) {
	t.Helper()
	instance := durable.OrchestrationInstance{InstanceID: id}
	require.NoError(t, b.CreateOrchestration(context.Background(), durable.TaskMessage{
		Instance: instance,
		Event:    durable.NewExecutionStartedEvent("Sum", instance, strPtr(`[1,2]`), nil),
	}))
}

// sumTurn schedules Add on the first turn and completes with its result on
// the next one.
func sumTurn(_ context.Context, dc *durable.DispatchContext) error {
	state, _ := durable.GetProperty[*durable.OrchestrationRuntimeState](dc, durable.PropertyRuntimeState)
	for _, e := range state.NewEvents {
		if e.TaskCompleted != nil {
			dc.SetProperty(durable.PropertyOrchestratorResult, &durable.OrchestratorExecutionResult{
				Actions: []durable.OrchestratorAction{{
					ID: 2,
					CompleteOrchestration: &durable.CompleteOrchestrationAction{
						Status: durable.StatusCompleted,
						Result: e.TaskCompleted.Result,
					},
				}},
			})
			return nil
		}
	}
	dc.SetProperty(durable.PropertyOrchestratorResult, &durable.OrchestratorExecutionResult{
		Actions: []durable.OrchestratorAction{{ID: 1, ScheduleTask: &durable.ScheduleTaskAction{Name: "Add"}}},
	})
	return nil
}

func addActivity(_ context.Context, dc *durable.DispatchContext) error {
	scheduled, _ := durable.GetProperty[durable.HistoryEvent](dc, durable.PropertyTaskScheduled)
	dc.SetProperty(durable.PropertyActivityResult, &durable.ActivityExecutionResult{
		ResponseEvent: durable.HistoryEvent{
			EventID:       -1,
			TaskCompleted: &durable.TaskCompletedEvent{TaskScheduledID: scheduled.EventID, Result: strPtr("3")},
		},
	})
	return nil
}

func TestDrainOnceRunsInstanceToCompletion(t *testing.T) {
	backend := memory.New("TestHub")
	startSum(t, backend, "abc")
	d := New(backend, sumTurn, addActivity, WithLogger(quiet()))

	done, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	require.Len(t, backend.PendingActivities("abc"), 1)

	done, err = d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done, "activity then second turn")

	state, err := backend.GetState(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, durable.StatusCompleted, state.Status)
	assert.Equal(t, "3", *state.Output)
	assert.Empty(t, backend.Runnable())
	assert.EqualValues(t, 3, d.Dispatched())
}

func TestDrainOnceLeavesAbortedWorkQueued(t *testing.T) {
	backend := memory.New("TestHub")
	startSum(t, backend, "abc")
	abort := func(context.Context, *durable.DispatchContext) error {
		return &durable.AbortError{Reason: "worker host unavailable"}
	}
	d := New(backend, abort, addActivity, WithLogger(quiet()))

	done, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.EqualValues(t, 1, d.Aborted())
	assert.Equal(t, []string{"abc"}, backend.Runnable())
}

func TestDrainOnceReportsFailures(t *testing.T) {
	backend := memory.New("TestHub")
	startSum(t, backend, "a")
	startSum(t, backend, "b")
	calls := 0
	failing := func(context.Context, *durable.DispatchContext) error {
		calls++
		return fmt.Errorf("commit rejected")
	}

	d := New(backend, failing, addActivity, WithLogger(quiet()))
	_, err := d.DrainOnce(context.Background())
	require.Error(t, err)
	assert.True(t, durable.HasErrorCode(err, ErrCodeDispatchFailed))
	assert.Equal(t, 2, calls)

	calls = 0
	d = New(backend, failing, addActivity, WithLogger(quiet()), WithExitOnError())
	_, err = d.DrainOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunDrainsUntilShutdown(t *testing.T) {
	backend := memory.New("TestHub")
	shutdown := runner.NewManualShutdown()
	d := New(backend, sumTurn, addActivity, WithLogger(quiet()), WithShutdown(shutdown), WithItemTimeout(time.Second))

	result := make(chan error, 1)
	go func() { result <- d.Run(context.Background()) }()

	startSum(t, backend, "abc")
	state, err := backend.WaitForOrchestration(waitCtx(t), "abc")
	require.NoError(t, err)
	assert.Equal(t, durable.StatusCompleted, state.Status)

	shutdown.Cancel(nil)
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after shutdown")
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	backend := memory.New("TestHub")
	d := New(backend, sumTurn, addActivity, WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
