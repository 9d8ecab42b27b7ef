package wire

import durable "github.com/goliatone/go-durable"

// FailureToWire maps the full inner chain.
func FailureToWire(f *durable.FailureDetails) *TaskFailureDetails {
	if f == nil {
		return nil
	}
	return &TaskFailureDetails{
		ErrorType:      f.ErrorType,
		ErrorMessage:   f.ErrorMessage,
		StackTrace:     f.StackTrace,
		InnerFailure:   FailureToWire(f.Inner),
		IsNonRetriable: f.IsNonRetriable,
	}
}

func FailureFromWire(f *TaskFailureDetails) *durable.FailureDetails {
	if f == nil {
		return nil
	}
	return &durable.FailureDetails{
		ErrorType:      f.ErrorType,
		ErrorMessage:   f.ErrorMessage,
		StackTrace:     f.StackTrace,
		Inner:          FailureFromWire(f.InnerFailure),
		IsNonRetriable: f.IsNonRetriable,
	}
}

func instanceToWire(i durable.OrchestrationInstance) OrchestrationInstance {
	return OrchestrationInstance{InstanceID: i.InstanceID, ExecutionID: i.ExecutionID}
}

func instanceFromWire(i OrchestrationInstance) durable.OrchestrationInstance {
	return durable.OrchestrationInstance{InstanceID: i.InstanceID, ExecutionID: i.ExecutionID}
}

func traceToWire(t *durable.TraceContext) *TraceContext {
	if t == nil {
		return nil
	}
	return &TraceContext{TraceParent: t.TraceParent, TraceState: t.TraceState}
}

func traceFromWire(t *TraceContext) *durable.TraceContext {
	if t == nil {
		return nil
	}
	return &durable.TraceContext{TraceParent: t.TraceParent, TraceState: t.TraceState}
}

func tagsCopy(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
