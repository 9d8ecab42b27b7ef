package bridge

import (
	"context"
	"fmt"
	"strings"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/wire"
)

// EntityName extracts the entity name from an instance id of the form
// "@name@key".
func EntityName(instanceID string) (string, bool) {
	if !strings.HasPrefix(instanceID, "@") {
		return "", false
	}
	name, _, ok := strings.Cut(instanceID[1:], "@")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// CallEntity runs one entity batch out of process and stores a
// *durable.EntityBatchResult under PropertyEntityBatchResult. The function
// name is PropertyFunctionName when set, otherwise the name encoded in the
// entity instance id.
func (b *Bridge) CallEntity(ctx context.Context, dc *durable.DispatchContext, _ func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fail := func(details *durable.FailureDetails) error {
		dc.SetProperty(durable.PropertyEntityBatchResult, &durable.EntityBatchResult{FailureDetails: details})
		return nil
	}

	batch, ok := durable.GetProperty[*durable.EntityBatchRequest](dc, durable.PropertyEntityBatchRequest)
	if !ok {
		return fail(dispatchFailure("entity batch request was missing"))
	}
	if batch.InstanceID == "" {
		return fail(dispatchFailure("entity batch request has no instance id"))
	}

	name, _ := durable.GetProperty[string](dc, durable.PropertyFunctionName)
	if name == "" {
		name, _ = EntityName(batch.InstanceID)
	}
	w := workItem{kind: durable.FunctionKindEntity, function: name, instanceID: batch.InstanceID, taskEventID: -1}

	function, ok := b.registry.Lookup(durable.FunctionKindEntity, name)
	if !ok {
		msg := b.unknownFunctionMessage(durable.FunctionKindEntity, name)
		b.trace(ctx, w, nil).Warn(msg)
		return fail(dispatchFailure(msg))
	}

	b.trace(ctx, w, map[string]any{
		"is_replay":  false,
		"operations": len(batch.Operations),
		"input":      b.ioTrace(batch.EntityState),
	}).Info("function starting")

	trigger, err := wire.EncodeBase64(wire.EntityBatchRequestToWire(batch))
	if err != nil {
		b.trace(ctx, w, map[string]any{"error": err.Error()}).Error("entity batch encoding failed")
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

	result, violation := decodeEntityResult(value, len(batch.Operations))
	if violation != nil {
		b.trace(ctx, w, map[string]any{"details": violation.ErrorMessage}).Error("function failed")
		return fail(violation)
	}

	if result.FailureDetails != nil {
		b.trace(ctx, w, map[string]any{"details": result.FailureDetails.String()}).Error("function failed")
	} else {
		failed := 0
		for _, r := range result.Results {
			if r.Failed() {
				failed++
			}
		}
		b.trace(ctx, w, map[string]any{
			"results":           len(result.Results),
			"failed_operations": failed,
			"output":            b.ioTrace(result.EntityState),
		}).Info("function completed")
	}

	dc.SetProperty(durable.PropertyEntityBatchResult, result)
	return nil
}

// decodeEntityResult accepts fewer results than operations; the engine
// redelivers the remainder.
func decodeEntityResult(value any, operations int) (*durable.EntityBatchResult, *durable.FailureDetails) {
	encoded, violation := responsePayload(value)
	if violation != nil {
		return nil, violation
	}
	var resp wire.EntityBatchResult
	if err := wire.DecodeBase64(encoded, &resp); err != nil {
		return nil, protocolViolation("worker response could not be decoded: " + err.Error())
	}
	result, err := wire.EntityBatchResultFromWire(&resp)
	if err != nil {
		return nil, protocolViolation("worker response contains an unsupported result: " + err.Error())
	}
	if len(result.Results) > operations {
		return nil, protocolViolation(fmt.Sprintf("worker returned %d results for %d operations", len(result.Results), operations))
	}
	return result, nil
}
