package bridge

import (
	"context"
	"fmt"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/wire"
)

// CallActivity runs one activity out of process and stores a
// *durable.ActivityExecutionResult under PropertyActivityResult. The
// scheduled task is read from PropertyTaskScheduled as a durable.HistoryEvent;
// without it there is no task to answer and an error is returned.
func (b *Bridge) CallActivity(ctx context.Context, dc *durable.DispatchContext, _ func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	scheduled, ok := durable.GetProperty[durable.HistoryEvent](dc, durable.PropertyTaskScheduled)
	if !ok || scheduled.TaskScheduled == nil {
		return durable.NewError(durable.ErrMissingProperty,
			"an activity was scheduled but no task scheduled event was found", nil,
			map[string]any{"property": durable.PropertyTaskScheduled})
	}
	name := scheduled.TaskScheduled.Name
	taskID := scheduled.EventID

	fail := func(details *durable.FailureDetails) error {
		dc.SetProperty(durable.PropertyActivityResult, &durable.ActivityExecutionResult{
			ResponseEvent: durable.HistoryEvent{
				EventID:   -1,
				Timestamp: b.now().UTC(),
				TaskFailed: &durable.TaskFailedEvent{
					TaskScheduledID: taskID,
					FailureDetails:  details,
				},
			},
		})
		return nil
	}

	instance, ok := durable.GetProperty[durable.OrchestrationInstance](dc, durable.PropertyInstance)
	if !ok || instance.InstanceID == "" {
		return fail(dispatchFailure(fmt.Sprintf("function %s could not execute because instance id metadata was missing", name)))
	}
	w := workItem{kind: durable.FunctionKindActivity, function: name, instanceID: instance.InstanceID, taskEventID: taskID}

	function, ok := b.registry.Lookup(durable.FunctionKindActivity, name)
	if !ok {
		msg := b.unknownFunctionMessage(durable.FunctionKindActivity, name)
		b.trace(ctx, w, nil).Warn(msg)
		return fail(dispatchFailure(msg))
	}

	b.trace(ctx, w, map[string]any{
		"is_replay": false,
		"input":     b.ioTrace(scheduled.TaskScheduled.Input),
	}).Info("function starting")

	req, err := wire.NewActivityRequest(instance, scheduled)
	if err != nil {
		return err
	}
	trigger, err := wire.EncodeBase64(req)
	if err != nil {
		b.trace(ctx, w, map[string]any{"error": err.Error()}).Error("activity request encoding failed")
		return err
	}

	value, err := b.invoke(ctx, w, function.Executor, trigger)
	if err != nil {
		abort, message := b.classifyInvokeError(ctx, err)
		if abort != nil {
			return b.abort(ctx, w, abort)
		}
		details, _ := ParseLegacyError(message)
		b.trace(ctx, w, map[string]any{"details": details.String()}).Error("function failed")
		return fail(details)
	}

	response, violation := b.decodeActivityResponse(value, taskID)
	if violation != nil {
		b.trace(ctx, w, map[string]any{"details": violation.ErrorMessage}).Error("function failed")
		return fail(violation)
	}

	if response.TaskFailed != nil {
		b.trace(ctx, w, map[string]any{"details": response.TaskFailed.FailureDetails.String()}).Error("function failed")
	} else {
		b.trace(ctx, w, map[string]any{
			"output":           b.ioTrace(response.TaskCompleted.Result),
			"continued_as_new": false,
		}).Info("function completed")
	}

	dc.SetProperty(durable.PropertyActivityResult, &durable.ActivityExecutionResult{ResponseEvent: response})
	return nil
}

func (b *Bridge) decodeActivityResponse(value any, taskID int32) (durable.HistoryEvent, *durable.FailureDetails) {
	encoded, violation := responsePayload(value)
	if violation != nil {
		return durable.HistoryEvent{}, violation
	}
	var resp wire.ActivityResponse
	if err := wire.DecodeBase64(encoded, &resp); err != nil {
		return durable.HistoryEvent{}, protocolViolation("worker response could not be decoded: " + err.Error())
	}
	if resp.TaskID != taskID {
		return durable.HistoryEvent{}, protocolViolation(fmt.Sprintf("worker answered task %d while dispatching task %d", resp.TaskID, taskID))
	}
	return wire.ActivityResponseToEvent(&resp, b.now().UTC()), nil
}
