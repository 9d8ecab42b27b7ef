package wire

import (
	"strings"
	"testing"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

var (
	ts1 = time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)
	ts2 = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
)

func fullFailure() *durable.FailureDetails {
	return &durable.FailureDetails{
		ErrorType:    "App.OuterError",
		ErrorMessage: "outer",
		StackTrace:   strPtr("at Outer()"),
		Inner: &durable.FailureDetails{
			ErrorType:      "App.InnerError",
			ErrorMessage:   "inner",
			IsNonRetriable: true,
			Inner: &durable.FailureDetails{
				ErrorType:    "OutOfMemory",
				ErrorMessage: "root",
			},
		},
	}
}

func historyCases() map[string]durable.HistoryEvent {
	ev := func(id int32, set func(*durable.HistoryEvent)) durable.HistoryEvent {
		e := durable.HistoryEvent{EventID: id, Timestamp: ts1}
		set(&e)
		return e
	}
	return map[string]durable.HistoryEvent{
		"execution started full": ev(0, func(e *durable.HistoryEvent) {
			e.ExecutionStarted = &durable.ExecutionStartedEvent{
				Name:     "Sum",
				Version:  strPtr("1.0"),
				Input:    strPtr("[1,2]"),
				Instance: durable.OrchestrationInstance{InstanceID: "abc", ExecutionID: "e1"},
				ParentInstance: &durable.ParentInstanceInfo{
					TaskScheduledID: 4,
					Name:            strPtr("Parent"),
					Version:         strPtr("2"),
					Instance:        durable.OrchestrationInstance{InstanceID: "parent", ExecutionID: "pe"},
				},
				ScheduledStartTime: timePtr(ts2),
				ParentTraceContext: &durable.TraceContext{TraceParent: "00-abc-def-01", TraceState: strPtr("k=v")},
				Tags:               map[string]string{"team": "core"},
			}
		}),
		"execution started minimal": ev(0, func(e *durable.HistoryEvent) {
			e.ExecutionStarted = &durable.ExecutionStartedEvent{Name: "Sum"}
		}),
		"execution started empty tags": ev(0, func(e *durable.HistoryEvent) {
			e.ExecutionStarted = &durable.ExecutionStartedEvent{Name: "Sum", Tags: map[string]string{}}
		}),
		"execution completed": ev(9, func(e *durable.HistoryEvent) {
			e.ExecutionCompleted = &durable.ExecutionCompletedEvent{
				Status:         durable.StatusFailed,
				Result:         strPtr("oops"),
				FailureDetails: fullFailure(),
			}
		}),
		"execution completed minimal": ev(9, func(e *durable.HistoryEvent) {
			e.ExecutionCompleted = &durable.ExecutionCompletedEvent{Status: durable.StatusCompleted}
		}),
		"execution terminated": ev(3, func(e *durable.HistoryEvent) {
			e.ExecutionTerminated = &durable.ExecutionTerminatedEvent{Input: strPtr("bye"), Recurse: true}
		}),
		"execution terminated minimal": ev(3, func(e *durable.HistoryEvent) {
			e.ExecutionTerminated = &durable.ExecutionTerminatedEvent{}
		}),
		"execution suspended": ev(4, func(e *durable.HistoryEvent) {
			e.ExecutionSuspended = &durable.ExecutionSuspendedEvent{Reason: strPtr("pause")}
		}),
		"execution resumed": ev(5, func(e *durable.HistoryEvent) {
			e.ExecutionResumed = &durable.ExecutionResumedEvent{}
		}),
		"task scheduled": ev(1, func(e *durable.HistoryEvent) {
			e.TaskScheduled = &durable.TaskScheduledEvent{Name: "Add", Version: strPtr("v"), Input: strPtr("[1,2]")}
		}),
		"task scheduled minimal": ev(1, func(e *durable.HistoryEvent) {
			e.TaskScheduled = &durable.TaskScheduledEvent{Name: "Add"}
		}),
		"task completed": ev(2, func(e *durable.HistoryEvent) {
			e.TaskCompleted = &durable.TaskCompletedEvent{TaskScheduledID: 1, Result: strPtr("3")}
		}),
		"task completed minimal": ev(-1, func(e *durable.HistoryEvent) {
			e.TaskCompleted = &durable.TaskCompletedEvent{TaskScheduledID: 1}
		}),
		"task failed": ev(2, func(e *durable.HistoryEvent) {
			e.TaskFailed = &durable.TaskFailedEvent{TaskScheduledID: 1, FailureDetails: fullFailure()}
		}),
		"task failed minimal": ev(2, func(e *durable.HistoryEvent) {
			e.TaskFailed = &durable.TaskFailedEvent{TaskScheduledID: 1}
		}),
		"sub orchestration created": ev(6, func(e *durable.HistoryEvent) {
			e.SubOrchestrationCreated = &durable.SubOrchestrationCreatedEvent{
				InstanceID: "child", Name: "Child", Version: strPtr("1"), Input: strPtr("{}"),
			}
		}),
		"sub orchestration completed": ev(7, func(e *durable.HistoryEvent) {
			e.SubOrchestrationCompleted = &durable.SubOrchestrationCompletedEvent{TaskScheduledID: 6, Result: strPtr("ok")}
		}),
		"sub orchestration failed": ev(7, func(e *durable.HistoryEvent) {
			e.SubOrchestrationFailed = &durable.SubOrchestrationFailedEvent{TaskScheduledID: 6, FailureDetails: fullFailure()}
		}),
		"timer created": ev(8, func(e *durable.HistoryEvent) {
			e.TimerCreated = &durable.TimerCreatedEvent{FireAt: ts2}
		}),
		"timer fired": ev(10, func(e *durable.HistoryEvent) {
			e.TimerFired = &durable.TimerFiredEvent{FireAt: ts2, TimerID: 8}
		}),
		"event raised": ev(11, func(e *durable.HistoryEvent) {
			e.EventRaised = &durable.EventRaisedEvent{Name: "approve", Input: strPtr("true")}
		}),
		"event raised minimal": ev(11, func(e *durable.HistoryEvent) {
			e.EventRaised = &durable.EventRaisedEvent{Name: "approve"}
		}),
		"event sent": ev(12, func(e *durable.HistoryEvent) {
			e.EventSent = &durable.EventSentEvent{InstanceID: "other", Name: "ping", Input: strPtr("1")}
		}),
		"continue as new": ev(13, func(e *durable.HistoryEvent) {
			e.ContinueAsNew = &durable.ContinueAsNewEvent{Input: strPtr("next")}
		}),
		"orchestrator started": ev(14, func(e *durable.HistoryEvent) {
			e.OrchestratorStarted = &durable.OrchestratorStartedEvent{}
		}),
		"orchestrator completed": ev(15, func(e *durable.HistoryEvent) {
			e.OrchestratorCompleted = &durable.OrchestratorCompletedEvent{}
		}),
		"generic event": ev(16, func(e *durable.HistoryEvent) {
			e.GenericEvent = &durable.GenericEvent{Data: strPtr("blob")}
		}),
		"generic event minimal": ev(16, func(e *durable.HistoryEvent) {
			e.GenericEvent = &durable.GenericEvent{}
		}),
		"history state": ev(17, func(e *durable.HistoryEvent) {
			e.HistoryState = &durable.HistoryStateEvent{State: durable.OrchestrationState{
				Instance:           durable.OrchestrationInstance{InstanceID: "abc", ExecutionID: "e1"},
				Name:               "Sum",
				Version:            strPtr("1"),
				Status:             durable.StatusRunning,
				CreatedTime:        ts1,
				LastUpdatedTime:    ts2,
				ScheduledStartTime: timePtr(ts2),
				Input:              strPtr("[1,2]"),
				Output:             strPtr("3"),
				CustomStatus:       strPtr("busy"),
				FailureDetails:     fullFailure(),
			}}
		}),
	}
}

func TestHistoryEventRoundTrip(t *testing.T) {
	for name, event := range historyCases() {
		t.Run(name, func(t *testing.T) {
			msg, err := HistoryEventToWire(event)
			require.NoError(t, err)

			encoded, err := EncodeBase64(&msg)
			require.NoError(t, err)

			var decoded HistoryEvent
			require.NoError(t, DecodeBase64(encoded, &decoded))

			back, err := HistoryEventFromWire(decoded)
			require.NoError(t, err)
			assert.Equal(t, event, back)
			assert.Equal(t, event.Kind(), back.Kind())
		})
	}
}

func TestHistoryCasesCoverEveryKind(t *testing.T) {
	seen := map[durable.EventKind]bool{}
	for _, event := range historyCases() {
		seen[event.Kind()] = true
	}
	for kind := durable.EventKindExecutionStarted; kind <= durable.EventKindHistoryState; kind++ {
		assert.True(t, seen[kind], "missing case for %s", kind)
	}
}

func actionCases() map[string]durable.OrchestratorAction {
	return map[string]durable.OrchestratorAction{
		"schedule task": {ID: 1, ScheduleTask: &durable.ScheduleTaskAction{
			Name: "Add", Version: strPtr("1"), Input: strPtr("[1,2]"),
		}},
		"schedule task minimal": {ID: 0, ScheduleTask: &durable.ScheduleTaskAction{Name: "Add"}},
		"create sub orchestration": {ID: 2, CreateSubOrchestration: &durable.CreateSubOrchestrationAction{
			InstanceID: "child", Name: "Child", Version: strPtr("2"), Input: strPtr("{}"),
		}},
		"create sub orchestration minimal": {ID: 2, CreateSubOrchestration: &durable.CreateSubOrchestrationAction{Name: "Child"}},
		"create timer":                     {ID: 3, CreateTimer: &durable.CreateTimerAction{FireAt: ts2}},
		"send event": {ID: 4, SendEvent: &durable.SendEventAction{
			Instance: durable.OrchestrationInstance{InstanceID: "other", ExecutionID: "x"},
			Name:     "ping",
			Data:     strPtr("1"),
		}},
		"send event minimal": {ID: 4, SendEvent: &durable.SendEventAction{Name: "ping"}},
		"complete orchestration": {ID: 5, CompleteOrchestration: &durable.CompleteOrchestrationAction{
			Status:         durable.StatusContinuedAsNew,
			Result:         strPtr("next"),
			Details:        strPtr("details"),
			NewVersion:     strPtr("3"),
			FailureDetails: fullFailure(),
			CarryoverEvents: []durable.HistoryEvent{
				{EventID: 20, Timestamp: ts1, EventRaised: &durable.EventRaisedEvent{Name: "approve", Input: strPtr("yes")}},
			},
		}},
		"complete orchestration minimal": {ID: 5, CompleteOrchestration: &durable.CompleteOrchestrationAction{
			Status: durable.StatusCompleted,
		}},
	}
}

func TestActionRoundTrip(t *testing.T) {
	for name, action := range actionCases() {
		t.Run(name, func(t *testing.T) {
			msg, err := ActionToWire(action)
			require.NoError(t, err)

			encoded, err := EncodeBase64(&msg)
			require.NoError(t, err)

			var decoded OrchestratorAction
			require.NoError(t, DecodeBase64(encoded, &decoded))

			back, err := ActionFromWire(decoded)
			require.NoError(t, err)
			assert.Equal(t, action, back)
		})
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	state := &durable.OrchestrationRuntimeState{
		PastEvents: []durable.HistoryEvent{historyCases()["execution started full"], historyCases()["task scheduled"]},
		NewEvents:  []durable.HistoryEvent{historyCases()["task completed"]},
	}
	req, err := NewOrchestratorRequest(durable.OrchestrationInstance{InstanceID: "abc", ExecutionID: "e1"}, state)
	require.NoError(t, err)

	encoded, err := EncodeBase64(req)
	require.NoError(t, err)

	var first, second OrchestratorRequest
	require.NoError(t, DecodeBase64(encoded, &first))
	require.NoError(t, DecodeBase64(encoded, &second))
	assert.Equal(t, first, second)
	assert.Equal(t, *req, first)
}

func TestEncodeBase64IsDeterministic(t *testing.T) {
	msg, err := HistoryEventToWire(historyCases()["execution started full"])
	require.NoError(t, err)

	first, err := EncodeBase64(&msg)
	require.NoError(t, err)
	second, err := EncodeBase64(&msg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	raw, err := Marshal(&msg)
	require.NoError(t, err)
	assert.Len(t, first, (len(raw)+2)/3*4)
}

func TestEncodeBase64LargePayload(t *testing.T) {
	input := strings.Repeat("x", 2<<20)
	msg, err := HistoryEventToWire(durable.HistoryEvent{
		EventID:       1,
		Timestamp:     ts1,
		TaskScheduled: &durable.TaskScheduledEvent{Name: "Big", Input: &input},
	})
	require.NoError(t, err)

	encoded, err := EncodeBase64(&msg)
	require.NoError(t, err)

	var decoded HistoryEvent
	require.NoError(t, DecodeBase64(encoded, &decoded))
	require.NotNil(t, decoded.TaskScheduled)
	assert.Equal(t, input, *decoded.TaskScheduled.Input)
}

func TestUnsupportedVariantIsFatal(t *testing.T) {
	_, err := HistoryEventToWire(durable.HistoryEvent{EventID: 1})
	require.Error(t, err)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))

	both := durable.HistoryEvent{
		TaskScheduled: &durable.TaskScheduledEvent{Name: "a"},
		TimerFired:    &durable.TimerFiredEvent{},
	}
	_, err = HistoryEventToWire(both)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))

	_, err = HistoryToWire([]durable.HistoryEvent{historyCases()["task scheduled"], {}})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))

	_, err = ActionToWire(durable.OrchestratorAction{ID: 1})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))

	_, err = HistoryEventFromWire(HistoryEvent{EventID: 1})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))

	_, err = ActionFromWire(OrchestratorAction{ID: 1})
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeUnsupportedVariant))
}

func TestCarryoverKeepsOnlyRaisedEvents(t *testing.T) {
	msg := OrchestratorAction{
		ID: 1,
		CompleteOrchestration: &CompleteOrchestrationAction{
			OrchestrationStatus: int32(durable.StatusContinuedAsNew),
			CarryoverEvents: []HistoryEvent{
				{EventID: 1, EventRaised: &EventRaisedEvent{Name: "keep"}},
				{EventID: 2, TimerFired: &TimerFiredEvent{TimerID: 3}},
			},
		},
	}

	action, err := ActionFromWire(msg)
	require.NoError(t, err)
	require.Len(t, action.CompleteOrchestration.CarryoverEvents, 1)
	assert.Equal(t, "keep", action.CompleteOrchestration.CarryoverEvents[0].EventRaised.Name)
}

func TestFailureChainPreserved(t *testing.T) {
	back := FailureFromWire(FailureToWire(fullFailure()))
	assert.Equal(t, fullFailure(), back)
	assert.Equal(t, 3, back.Depth())
	assert.True(t, back.Inner.IsNonRetriable)
	assert.True(t, back.IsCausedBy("OutOfMemory"))
	assert.Nil(t, FailureToWire(nil))
}

func TestDecodeBase64RejectsBadInput(t *testing.T) {
	var msg OrchestratorResponse
	err := DecodeBase64("", &msg)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeProtocolViolation))

	err = DecodeBase64("not base64!!", &msg)
	assert.True(t, durable.HasErrorCode(err, durable.ErrCodeProtocolViolation))

	err = DecodeBase64("aGVsbG8=", &msg)
	assert.True(t, durable.HasErrorCode(err, ErrCodeDecode))
}

func TestEntityBatchRoundTrip(t *testing.T) {
	result := &durable.EntityBatchResult{
		Results: []durable.OperationResult{
			{Result: strPtr("1")},
			{},
			{FailureDetails: &durable.FailureDetails{ErrorType: "Bad", ErrorMessage: "nope"}},
		},
		Actions: []durable.OperationAction{
			{SendSignal: &durable.SendSignalAction{InstanceID: "@counter@a", Name: "add", Input: strPtr("1"), ScheduledTime: timePtr(ts2)}},
			{StartNewOrchestration: &durable.StartNewOrchestrationAction{InstanceID: "o1", Name: "Sum", Version: strPtr("1")}},
		},
		EntityState: strPtr("5"),
	}

	msg, err := EntityBatchResultToWire(result)
	require.NoError(t, err)
	encoded, err := EncodeBase64(msg)
	require.NoError(t, err)

	var decoded EntityBatchResult
	require.NoError(t, DecodeBase64(encoded, &decoded))
	back, err := EntityBatchResultFromWire(&decoded)
	require.NoError(t, err)
	assert.Equal(t, result, back)

	req := &durable.EntityBatchRequest{
		InstanceID:  "@counter@a",
		EntityState: strPtr("4"),
		Operations:  []durable.OperationRequest{{Operation: "add", RequestID: "r1", Input: strPtr("1")}},
	}
	assert.Equal(t, req, EntityBatchRequestFromWire(EntityBatchRequestToWire(req)))
}

func TestActivityResponseToEvent(t *testing.T) {
	completed := ActivityResponseToEvent(&ActivityResponse{InstanceID: "abc", TaskID: 4, Result: strPtr("3")}, ts1)
	require.NotNil(t, completed.TaskCompleted)
	assert.Equal(t, int32(-1), completed.EventID)
	assert.Equal(t, int32(4), completed.TaskCompleted.TaskScheduledID)

	failed := ActivityResponseToEvent(&ActivityResponse{
		TaskID:         4,
		FailureDetails: &TaskFailureDetails{ErrorType: "Boom", ErrorMessage: "bad"},
	}, ts1)
	require.NotNil(t, failed.TaskFailed)
	assert.Equal(t, "Boom", failed.TaskFailed.FailureDetails.ErrorType)
}
