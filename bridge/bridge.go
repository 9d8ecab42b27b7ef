// Package bridge adapts engine work items to out-of-process worker
// invocations. Each work item (orchestrator turn, entity batch, activity call)
// is encoded with the wire codec, handed to the registered executor as one
// base64 string, and the worker's base64 response is decoded and stored back
// in the dispatch context.
package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/runner"
)

// Error types used for failures the bridge records on behalf of the
// framework. Application failures keep the worker's own error type.
const (
	ErrorTypeDispatchFailure   = "DispatchFailure"
	ErrorTypeProtocolViolation = "ProtocolViolation"
)

// platformErrorTypes mark failures of the worker host itself. A failed
// completion caused by one of them is aborted and redelivered.
var platformErrorTypes = []string{"OutOfMemoryException", "OutOfMemoryError"}

// Middleware is one stage of the engine dispatch pipeline.
type Middleware func(ctx context.Context, dc *durable.DispatchContext, next func(context.Context) error) error

// Bridge is stateless between work items and safe for concurrent use.
type Bridge struct {
	registry  *durable.FunctionRegistry
	logger    durable.Logger
	hubName   string
	shutdown  runner.ShutdownSignal
	now       func() time.Time
	traceIO   bool
	onPanic   durable.PanicLogger
	abortHook func(*durable.AbortError)
}

type Option func(*Bridge)

func WithLogger(logger durable.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithHubName(hub string) Option {
	return func(b *Bridge) {
		b.hubName = hub
	}
}

// WithShutdown sets the host shutdown signal observed while a worker runs.
func WithShutdown(signal runner.ShutdownSignal) Option {
	return func(b *Bridge) {
		if signal != nil {
			b.shutdown = signal
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

// WithTraceInputsOutputs logs raw payloads instead of their sizes.
func WithTraceInputsOutputs(enabled bool) Option {
	return func(b *Bridge) {
		b.traceIO = enabled
	}
}

// WithAbortHook is called for every aborted work item.
func WithAbortHook(fn func(*durable.AbortError)) Option {
	return func(b *Bridge) {
		b.abortHook = fn
	}
}

func New(registry *durable.FunctionRegistry, opts ...Option) *Bridge {
	b := &Bridge{
		registry: registry,
		logger:   durable.NewFmtLogger(nil),
		shutdown: runner.NeverShutdown(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.registry == nil {
		b.registry = durable.NewFunctionRegistry()
	}
	b.onPanic = durable.LoggerPanicLogger(b.logger)
	return b
}

// OrchestratorMiddleware returns CallOrchestrator as a pipeline stage.
func (b *Bridge) OrchestratorMiddleware() Middleware { return b.CallOrchestrator }

func (b *Bridge) EntityMiddleware() Middleware { return b.CallEntity }

func (b *Bridge) ActivityMiddleware() Middleware { return b.CallActivity }

// workItem carries the trace identity of one dispatch.
type workItem struct {
	kind        durable.FunctionKind
	function    string
	instanceID  string
	taskEventID int32
}

func (b *Bridge) trace(ctx context.Context, w workItem, extra map[string]any) durable.Logger {
	fields := map[string]any{
		"hub":         b.hubName,
		"function":    w.function,
		"instance_id": w.instanceID,
		"kind":        w.kind.String(),
	}
	if w.kind == durable.FunctionKindActivity {
		fields["task_event_id"] = w.taskEventID
	}
	for k, v := range extra {
		fields[k] = v
	}
	return durable.WithLoggerFields(b.logger.WithContext(ctx), fields)
}

// ioTrace renders a payload for logs, or only its size unless raw tracing
// is enabled.
func (b *Bridge) ioTrace(payload *string) string {
	if payload == nil {
		return "(null)"
	}
	if b.traceIO {
		return *payload
	}
	return fmt.Sprintf("(%d bytes)", len(*payload))
}

// invoke runs the executor and waits for it, the caller's context or the
// host shutdown signal, whichever comes first.
func (b *Bridge) invoke(ctx context.Context, w workItem, executor durable.Executor, trigger string) (any, error) {
	invokeCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if done := b.shutdown.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				cancel(b.shutdownCause())
			case <-stop:
			}
		}()
	}

	type outcome struct {
		value any
		err   error
	}
	result := make(chan outcome, 1)
	go func() {
		value, err := durable.InvokeSafely(invokeCtx, w.function, executor, trigger, b.onPanic, map[string]any{
			"hub":         b.hubName,
			"instance_id": w.instanceID,
			"kind":        w.kind.String(),
		})
		result <- outcome{value: value, err: err}
	}()

	select {
	case out := <-result:
		if out.err != nil && invokeCtx.Err() != nil {
			return nil, context.Cause(invokeCtx)
		}
		return out.value, out.err
	case <-invokeCtx.Done():
		return nil, context.Cause(invokeCtx)
	}
}

func (b *Bridge) shutdownCause() error {
	if cause := b.shutdown.CancelCause(); cause != nil {
		return cause
	}
	return runner.ErrShutdown
}

// classifyInvokeError decides whether a failed invocation is an application
// failure to record or a host failure to abort. It returns the abort error
// or the worker's failure message.
func (b *Bridge) classifyInvokeError(ctx context.Context, err error) (*durable.AbortError, string) {
	if runner.Fired(b.shutdown) {
		return &durable.AbortError{Reason: "the host is shutting down", Cause: err}, ""
	}
	if ctx.Err() != nil {
		return &durable.AbortError{Reason: "the dispatch was cancelled", Cause: err}, ""
	}
	var invocation *durable.InvocationError
	if stderrors.As(err, &invocation) {
		return nil, invocation.Message
	}
	return &durable.AbortError{Reason: "unhandled error in the executor host", Cause: err}, ""
}

func (b *Bridge) abort(ctx context.Context, w workItem, abort *durable.AbortError) error {
	b.trace(ctx, w, map[string]any{"reason": abort.Error()}).Warn("function aborted")
	if b.abortHook != nil {
		b.abortHook(abort)
	}
	return abort
}

// responsePayload checks the invocation result shape: one non-empty string.
func responsePayload(value any) (string, *durable.FailureDetails) {
	encoded, ok := value.(string)
	if !ok {
		return "", protocolViolation(fmt.Sprintf("worker returned %T instead of a base64 string", value))
	}
	if strings.TrimSpace(encoded) == "" {
		return "", protocolViolation("worker returned an empty response")
	}
	return encoded, nil
}

func protocolViolation(message string) *durable.FailureDetails {
	return &durable.FailureDetails{
		ErrorType:      ErrorTypeProtocolViolation,
		ErrorMessage:   message,
		IsNonRetriable: true,
	}
}

func dispatchFailure(message string) *durable.FailureDetails {
	return &durable.FailureDetails{
		ErrorType:      ErrorTypeDispatchFailure,
		ErrorMessage:   message,
		IsNonRetriable: true,
	}
}

// unknownFunctionMessage lists the registered functions of the same kind.
func (b *Bridge) unknownFunctionMessage(kind durable.FunctionKind, name string) string {
	msg := fmt.Sprintf("the function '%s' doesn't exist, is disabled, or is not an %s function. ", name, kind)
	known := b.registry.Names(kind)
	if len(known) == 0 {
		return msg + fmt.Sprintf("No %s functions are currently registered!", kind)
	}
	return msg + fmt.Sprintf("The following are the known %s functions: '%s'.", kind, strings.Join(known, "', '"))
}

func isPlatformFailure(details *durable.FailureDetails) bool {
	if details == nil {
		return false
	}
	for _, errorType := range platformErrorTypes {
		if details.Inner.IsCausedBy(errorType) {
			return true
		}
	}
	return false
}
