// Package sidecar implements the control and query surface that worker
// processes call: task hub management, instance lifecycle, state lookups,
// waits, queries and purges. Every call resolves its backend from the
// request headers; the server keeps no per-connection state.
package sidecar

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-durable/runner"
	"github.com/goliatone/go-durable/wire"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Routing headers.
const (
	HeaderTaskHub        = "Durable-TaskHub"
	HeaderConnectionName = "Durable-ConnectionName"
)

// Method names.
const (
	MethodHello                     = "sidecar.hello"
	MethodCreateTaskHub             = "taskhub.create"
	MethodDeleteTaskHub             = "taskhub.delete"
	MethodStartInstance             = "instance.start"
	MethodRaiseEvent                = "instance.raise_event"
	MethodTerminateInstance         = "instance.terminate"
	MethodSuspendInstance           = "instance.suspend"
	MethodResumeInstance            = "instance.resume"
	MethodRewindInstance            = "instance.rewind"
	MethodGetInstance               = "instance.get"
	MethodWaitForInstanceStart      = "instance.wait_start"
	MethodWaitForInstanceCompletion = "instance.wait_completion"
	MethodQueryInstances            = "instance.query"
	MethodPurgeInstances            = "instance.purge"
)

// Server handles sidecar protocol calls against the backends of a provider.
type Server struct {
	provider    engine.Provider
	logger      durable.Logger
	waitBackoff runner.RetryStrategy
	sleep       runner.SleepFunc
	newID       func() string
}

type Option func(*Server)

func WithLogger(logger durable.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWaitStartBackoff overrides the poll schedule of WaitForInstanceStart.
func WithWaitStartBackoff(strategy runner.RetryStrategy) Option {
	return func(s *Server) {
		if strategy != nil {
			s.waitBackoff = strategy
		}
	}
}

// WithSleep overrides how WaitForInstanceStart waits between polls.
func WithSleep(sleep runner.SleepFunc) Option {
	return func(s *Server) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithIDGenerator overrides the instance id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(provider engine.Provider, opts ...Option) *Server {
	s := &Server{
		provider:    provider,
		logger:      durable.NewFmtLogger(nil),
		waitBackoff: runner.WaitForStartBackoff(),
		sleep:       runner.SleepContext,
		newID:       NewInstanceID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewInstanceID returns a random UUID without dashes.
func NewInstanceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Hello is a liveness probe.
func (s *Server) Hello(context.Context, rpc.RequestMeta, Empty) (Empty, error) {
	return Empty{}, nil
}

func (s *Server) CreateTaskHub(ctx context.Context, meta rpc.RequestMeta, req CreateTaskHubRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.CreateTaskHub(ctx, req.RecreateIfExists); err != nil {
		return Empty{}, engineError("create task hub", err)
	}
	return Empty{}, nil
}

func (s *Server) DeleteTaskHub(ctx context.Context, meta rpc.RequestMeta, _ Empty) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.DeleteTaskHub(ctx); err != nil {
		return Empty{}, engineError("delete task hub", err)
	}
	return Empty{}, nil
}

// StartInstance creates an orchestration instance. A missing instance id is
// generated; the execution id is always fresh.
func (s *Server) StartInstance(ctx context.Context, meta rpc.RequestMeta, req StartInstanceRequest) (StartInstanceResponse, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return StartInstanceResponse{}, err
	}

	instance := durable.OrchestrationInstance{
		InstanceID:  req.InstanceID,
		ExecutionID: uuid.NewString(),
	}
	if instance.InstanceID == "" {
		instance.InstanceID = s.newID()
	}

	event := durable.NewExecutionStartedEvent(req.Name, instance, req.Input, req.ScheduledStartTimestamp)
	event.ExecutionStarted.Version = req.Version

	if err := backend.CreateOrchestration(ctx, durable.TaskMessage{Instance: instance, Event: event}); err != nil {
		return StartInstanceResponse{}, engineError("start instance", err)
	}

	s.log(ctx, meta, map[string]any{
		"instance_id": instance.InstanceID,
		"name":        req.Name,
	}).Info("orchestration instance started")

	return StartInstanceResponse{InstanceID: instance.InstanceID}, nil
}

func (s *Server) RaiseEvent(ctx context.Context, meta rpc.RequestMeta, req RaiseEventRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	msg := durable.TaskMessage{
		Instance: durable.OrchestrationInstance{InstanceID: req.InstanceID},
		Event:    durable.NewEventRaisedEvent(req.Name, req.Input),
	}
	if err := backend.SendMessage(ctx, msg); err != nil {
		return Empty{}, engineError("raise event", err)
	}
	return Empty{}, nil
}

func (s *Server) TerminateInstance(ctx context.Context, meta rpc.RequestMeta, req TerminateRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.Terminate(ctx, req.InstanceID, req.Output); err != nil {
		return Empty{}, engineError("terminate instance", err)
	}
	s.log(ctx, meta, map[string]any{"instance_id": req.InstanceID}).Info("orchestration instance terminated")
	return Empty{}, nil
}

func (s *Server) SuspendInstance(ctx context.Context, meta rpc.RequestMeta, req InstanceReasonRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.Suspend(ctx, req.InstanceID, req.Reason); err != nil {
		return Empty{}, engineError("suspend instance", err)
	}
	return Empty{}, nil
}

func (s *Server) ResumeInstance(ctx context.Context, meta rpc.RequestMeta, req InstanceReasonRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.Resume(ctx, req.InstanceID, req.Reason); err != nil {
		return Empty{}, engineError("resume instance", err)
	}
	return Empty{}, nil
}

func (s *Server) RewindInstance(ctx context.Context, meta rpc.RequestMeta, req InstanceReasonRequest) (Empty, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return Empty{}, err
	}
	if err := backend.Rewind(ctx, req.InstanceID, req.Reason); err != nil {
		return Empty{}, engineError("rewind instance", err)
	}
	return Empty{}, nil
}

func (s *Server) GetInstance(ctx context.Context, meta rpc.RequestMeta, req GetInstanceRequest) (GetInstanceResponse, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return GetInstanceResponse{}, err
	}
	state, err := backend.GetState(ctx, req.InstanceID)
	if err != nil {
		return GetInstanceResponse{}, engineError("get instance", err)
	}
	return instanceResponse(state, req.GetInputsAndOutputs), nil
}

// WaitForInstanceStart polls until the instance exists and has left the
// pending status. Only ctx ends the wait otherwise.
func (s *Server) WaitForInstanceStart(ctx context.Context, meta rpc.RequestMeta, req GetInstanceRequest) (GetInstanceResponse, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return GetInstanceResponse{}, err
	}

	var state *durable.OrchestrationState
	polls, err := runner.Poll(ctx, s.waitBackoff, s.sleep, func(ctx context.Context) (bool, error) {
		current, err := backend.GetState(ctx, req.InstanceID)
		if err != nil {
			return false, engineError("get instance", err)
		}
		if current != nil && current.Status != durable.StatusPending {
			state = current
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return GetInstanceResponse{}, err
	}

	s.log(ctx, meta, map[string]any{
		"instance_id": req.InstanceID,
		"polls":       polls,
	}).Debug("orchestration instance started running")

	return instanceResponse(state, req.GetInputsAndOutputs), nil
}

// WaitForInstanceCompletion blocks until the instance reaches a terminal
// status or ctx is done.
func (s *Server) WaitForInstanceCompletion(ctx context.Context, meta rpc.RequestMeta, req GetInstanceRequest) (GetInstanceResponse, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return GetInstanceResponse{}, err
	}
	state, err := backend.WaitForOrchestration(ctx, req.InstanceID)
	if err != nil {
		return GetInstanceResponse{}, engineError("wait for instance", err)
	}
	return instanceResponse(state, req.GetInputsAndOutputs), nil
}

func (s *Server) QueryInstances(ctx context.Context, meta rpc.RequestMeta, req QueryInstancesRequest) (QueryInstancesResponse, error) {
	backend, err := s.backend(meta)
	if err != nil {
		return QueryInstancesResponse{}, err
	}
	client, ok := backend.(engine.QueryClient)
	if !ok {
		return QueryInstancesResponse{}, durable.CapabilityNotSupported("instance query", backend)
	}

	result, err := client.QueryInstances(ctx, req.Query.toQuery())
	if err != nil {
		return QueryInstancesResponse{}, engineError("query instances", err)
	}

	out := QueryInstancesResponse{
		OrchestrationState: make([]wire.OrchestrationState, 0, len(result.States)),
		ContinuationToken:  result.ContinuationToken,
	}
	for i := range result.States {
		out.OrchestrationState = append(out.OrchestrationState,
			*wire.StateToWire(&result.States[i], req.Query.FetchInputsAndOutputs))
	}
	return out, nil
}

func (s *Server) PurgeInstances(ctx context.Context, meta rpc.RequestMeta, req PurgeInstancesRequest) (PurgeInstancesResponse, error) {
	if err := req.Validate(); err != nil {
		return PurgeInstancesResponse{}, err
	}
	backend, err := s.backend(meta)
	if err != nil {
		return PurgeInstancesResponse{}, err
	}
	client, ok := backend.(engine.PurgeClient)
	if !ok {
		return PurgeInstancesResponse{}, durable.CapabilityNotSupported("instance purge", backend)
	}

	var result *durable.PurgeResult
	if req.InstanceID != nil {
		result, err = client.PurgeInstance(ctx, *req.InstanceID)
	} else {
		f := req.PurgeInstanceFilter
		result, err = client.PurgeInstances(ctx, durable.PurgeInstanceFilter{
			CreatedTimeFrom: f.CreatedTimeFrom,
			CreatedTimeTo:   f.CreatedTimeTo,
			RuntimeStatus:   f.RuntimeStatus,
		})
	}
	if err != nil {
		return PurgeInstancesResponse{}, engineError("purge instances", err)
	}

	s.log(ctx, meta, map[string]any{"deleted": result.DeletedInstanceCount}).Info("orchestration instances purged")
	return PurgeInstancesResponse{DeletedInstanceCount: result.DeletedInstanceCount}, nil
}

func (s *Server) backend(meta rpc.RequestMeta) (engine.Backend, error) {
	if s.provider == nil {
		return nil, durable.NewError(durable.ErrTaskHubNotFound, "no engine provider configured", nil, nil)
	}
	return s.provider.Backend(meta.Header(HeaderTaskHub), meta.Header(HeaderConnectionName))
}

func (s *Server) log(ctx context.Context, meta rpc.RequestMeta, fields map[string]any) durable.Logger {
	if hub := meta.Header(HeaderTaskHub); hub != "" {
		fields["task_hub"] = hub
	}
	if meta.RequestID != "" {
		fields["request_id"] = meta.RequestID
	}
	return durable.WithLoggerFields(s.logger.WithContext(ctx), fields)
}

func instanceResponse(state *durable.OrchestrationState, includeIO bool) GetInstanceResponse {
	if state == nil {
		return GetInstanceResponse{Exists: false}
	}
	return GetInstanceResponse{
		Exists:             true,
		OrchestrationState: wire.StateToWire(state, includeIO),
	}
}

// engineError classifies an error returned by a backend. Categorized errors
// and context errors pass through; anything else is an engine failure.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ge *errors.Error
	if errors.As(err, &ge) {
		return err
	}
	return durable.NewError(durable.ErrEngineFailure, fmt.Sprintf("%s failed", op), err,
		map[string]any{"operation": op})
}

// RPCEndpoints exposes the protocol methods for registration on an rpc.Server.
func (s *Server) RPCEndpoints() []rpc.EndpointDefinition {
	return []rpc.EndpointDefinition{
		endpoint(rpc.EndpointSpec{
			Method:     MethodHello,
			Kind:       rpc.MethodKindQuery,
			Idempotent: true,
			Summary:    "Liveness probe",
			Tags:       []string{"sidecar"},
		}, s.Hello),
		endpoint(rpc.EndpointSpec{
			Method:  MethodCreateTaskHub,
			Kind:    rpc.MethodKindCommand,
			Summary: "Create the task hub",
			Tags:    []string{"taskhub"},
		}, s.CreateTaskHub),
		endpoint(rpc.EndpointSpec{
			Method:  MethodDeleteTaskHub,
			Kind:    rpc.MethodKindCommand,
			Summary: "Delete the task hub",
			Tags:    []string{"taskhub"},
		}, s.DeleteTaskHub),
		endpoint(rpc.EndpointSpec{
			Method:      MethodStartInstance,
			Kind:        rpc.MethodKindCommand,
			Summary:     "Start an orchestration instance",
			Description: "Schedules a new orchestration and returns its instance id.",
			Tags:        []string{"instance"},
		}, s.StartInstance),
		endpoint(rpc.EndpointSpec{
			Method:  MethodRaiseEvent,
			Kind:    rpc.MethodKindCommand,
			Summary: "Raise an external event",
			Tags:    []string{"instance"},
		}, s.RaiseEvent),
		endpoint(rpc.EndpointSpec{
			Method:     MethodTerminateInstance,
			Kind:       rpc.MethodKindCommand,
			Idempotent: true,
			Summary:    "Terminate an instance",
			Tags:       []string{"instance"},
		}, s.TerminateInstance),
		endpoint(rpc.EndpointSpec{
			Method:  MethodSuspendInstance,
			Kind:    rpc.MethodKindCommand,
			Summary: "Suspend an instance",
			Tags:    []string{"instance"},
		}, s.SuspendInstance),
		endpoint(rpc.EndpointSpec{
			Method:  MethodResumeInstance,
			Kind:    rpc.MethodKindCommand,
			Summary: "Resume a suspended instance",
			Tags:    []string{"instance"},
		}, s.ResumeInstance),
		endpoint(rpc.EndpointSpec{
			Method:  MethodRewindInstance,
			Kind:    rpc.MethodKindCommand,
			Summary: "Rewind a failed instance",
			Tags:    []string{"instance"},
		}, s.RewindInstance),
		endpoint(rpc.EndpointSpec{
			Method:     MethodGetInstance,
			Kind:       rpc.MethodKindQuery,
			Idempotent: true,
			Summary:    "Get instance state",
			Tags:       []string{"instance", "read"},
		}, s.GetInstance),
		endpoint(rpc.EndpointSpec{
			Method:      MethodWaitForInstanceStart,
			Kind:        rpc.MethodKindQuery,
			Idempotent:  true,
			Summary:     "Wait for an instance to start",
			Description: "Polls until the instance leaves the pending status.",
			Tags:        []string{"instance", "read"},
		}, s.WaitForInstanceStart),
		endpoint(rpc.EndpointSpec{
			Method:      MethodWaitForInstanceCompletion,
			Kind:        rpc.MethodKindQuery,
			Idempotent:  true,
			Summary:     "Wait for an instance to complete",
			Description: "Blocks until the instance reaches a terminal status.",
			Tags:        []string{"instance", "read"},
		}, s.WaitForInstanceCompletion),
		endpoint(rpc.EndpointSpec{
			Method:     MethodQueryInstances,
			Kind:       rpc.MethodKindQuery,
			Idempotent: true,
			Summary:    "Query instances",
			Tags:       []string{"instance", "read"},
		}, s.QueryInstances),
		endpoint(rpc.EndpointSpec{
			Method:  MethodPurgeInstances,
			Kind:    rpc.MethodKindCommand,
			Summary: "Purge instance history",
			Tags:    []string{"instance", "maintenance"},
		}, s.PurgeInstances),
	}
}

// blockingMethods wait on instance progress and run without a call timeout.
var blockingMethods = map[string]bool{
	MethodWaitForInstanceStart:      true,
	MethodWaitForInstanceCompletion: true,
}

func endpoint[Req any, Res any](spec rpc.EndpointSpec, fn func(context.Context, rpc.RequestMeta, Req) (Res, error)) rpc.EndpointDefinition {
	if spec.Timeout == 0 && !blockingMethods[spec.Method] {
		spec.Timeout = DefaultCallTimeout
	}
	return rpc.NewEndpoint[Req, Res](spec, func(ctx context.Context, req rpc.RequestEnvelope[Req]) (rpc.ResponseEnvelope[Res], error) {
		res, err := fn(ctx, req.Meta, req.Data)
		if err != nil {
			return rpc.ResponseEnvelope[Res]{}, err
		}
		return rpc.ResponseEnvelope[Res]{Data: res}, nil
	})
}

// DefaultCallTimeout bounds every call except the blocking waits.
const DefaultCallTimeout = 30 * time.Second

// NewRPCServer registers s on a new rpc.Server with logging, validation and
// endpoint timeouts.
func NewRPCServer(s *Server, logger durable.Logger, opts ...rpc.Option) (*rpc.Server, error) {
	base := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithPanicRecovery(),
		rpc.WithMiddleware(
			rpc.LoggingMiddleware(logger),
			rpc.ValidationMiddleware(),
			rpc.TimeoutMiddleware(0),
		),
	}
	server := rpc.NewServer(append(base, opts...)...)
	if err := server.RegisterProvider(s); err != nil {
		return nil, err
	}
	return server, nil
}
