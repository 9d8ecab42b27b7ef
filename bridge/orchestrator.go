package bridge

import (
	"context"
	"fmt"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/wire"
)

// CallOrchestrator runs one orchestrator turn out of process and stores a
// *durable.OrchestratorExecutionResult under PropertyOrchestratorResult.
// It returns an *durable.AbortError when the turn must be redelivered, and
// an encoding error when the history cannot be represented on the wire.
// next is never called.
func (b *Bridge) CallOrchestrator(ctx context.Context, dc *durable.DispatchContext, _ func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fail := func(details *durable.FailureDetails) error {
		dc.SetProperty(durable.PropertyOrchestratorResult, durable.NewFailedOrchestratorResult(details))
		return nil
	}

	state, ok := durable.GetProperty[*durable.OrchestrationRuntimeState](dc, durable.PropertyRuntimeState)
	if !ok {
		return fail(dispatchFailure("orchestration runtime state was missing"))
	}
	instance, ok := durable.GetProperty[durable.OrchestrationInstance](dc, durable.PropertyInstance)
	if !ok || instance.InstanceID == "" {
		return fail(dispatchFailure("instance id metadata was missing"))
	}

	name := state.Name
	startEvent, hasStart := state.ExecutionStarted()
	if name == "" && hasStart {
		name = startEvent.Name
	}
	w := workItem{kind: durable.FunctionKindOrchestrator, function: name, instanceID: instance.InstanceID, taskEventID: -1}

	function, ok := b.registry.Lookup(durable.FunctionKindOrchestrator, name)
	if !ok {
		msg := b.unknownFunctionMessage(durable.FunctionKindOrchestrator, name)
		b.trace(ctx, w, nil).Warn(msg)
		return fail(dispatchFailure(msg))
	}
	if !hasStart {
		return fail(dispatchFailure("execution started event was missing from runtime state"))
	}

	replaying := state.IsReplaying()
	input := "(replay)"
	if !replaying {
		input = b.ioTrace(startEvent.Input)
	}
	b.trace(ctx, w, map[string]any{"is_replay": replaying, "input": input}).Info("function starting")

	req, err := wire.NewOrchestratorRequest(instance, state)
	if err != nil {
		b.trace(ctx, w, map[string]any{"error": err.Error()}).Error("orchestrator request encoding failed")
		return err
	}
	trigger, err := wire.EncodeBase64(req)
	if err != nil {
		b.trace(ctx, w, map[string]any{"error": err.Error()}).Error("orchestrator request encoding failed")
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

	result, violation := decodeOrchestratorResponse(value, instance.InstanceID)
	if violation != nil {
		b.trace(ctx, w, map[string]any{"details": violation.ErrorMessage}).Error("function failed")
		return fail(violation)
	}

	completion := result.Completion()
	switch {
	case completion == nil:
		b.trace(ctx, w, map[string]any{"actions": len(result.Actions)}).Info("function awaited")
	case completion.Status == durable.StatusFailed:
		if isPlatformFailure(completion.FailureDetails) {
			return b.abort(ctx, w, &durable.AbortError{
				Reason: "the worker reported a platform failure: " + completion.FailureDetails.String(),
			})
		}
		b.trace(ctx, w, map[string]any{"details": completion.FailureDetails.String()}).Error("function failed")
	default:
		b.trace(ctx, w, map[string]any{
			"output":           b.ioTrace(completion.Result),
			"continued_as_new": completion.Status == durable.StatusContinuedAsNew,
		}).Info("function completed")
	}

	dc.SetProperty(durable.PropertyOrchestratorResult, result)
	return nil
}

func decodeOrchestratorResponse(value any, instanceID string) (*durable.OrchestratorExecutionResult, *durable.FailureDetails) {
	encoded, violation := responsePayload(value)
	if violation != nil {
		return nil, violation
	}
	var resp wire.OrchestratorResponse
	if err := wire.DecodeBase64(encoded, &resp); err != nil {
		return nil, protocolViolation("worker response could not be decoded: " + err.Error())
	}
	if resp.InstanceID != "" && resp.InstanceID != instanceID {
		return nil, protocolViolation(fmt.Sprintf("worker responded for instance %q while dispatching %q", resp.InstanceID, instanceID))
	}
	result, err := wire.OrchestratorResponseFromWire(&resp)
	if err != nil {
		return nil, protocolViolation("worker response contains an unsupported action: " + err.Error())
	}

	seen := make(map[int32]struct{}, len(result.Actions))
	for i := range result.Actions {
		action := &result.Actions[i]
		if action.Kind() == durable.ActionKindCompleteOrchestration {
			continue
		}
		if _, dup := seen[action.ID]; dup {
			return nil, protocolViolation(fmt.Sprintf("worker reused action id %d", action.ID))
		}
		seen[action.ID] = struct{}{}
	}
	return result, nil
}
