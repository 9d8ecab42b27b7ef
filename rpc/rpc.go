// Package rpc is the method registry behind the sidecar control surface.
// Endpoints are typed request/response pairs addressed by method name;
// transports decode into the envelope a method expects and call Invoke.
package rpc

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-errors"
)

const (
	ErrCodeMethodNotFound   = "RPC_METHOD_NOT_FOUND"
	ErrCodeMethodRequired   = "RPC_METHOD_REQUIRED"
	ErrCodeDuplicateMethod  = "RPC_DUPLICATE_METHOD"
	ErrCodeInvalidParams    = "RPC_INVALID_PARAMS"
	ErrCodeInvokePanic      = "RPC_INVOKE_PANIC"
	ErrCodeServerNotDefined = "RPC_SERVER_NOT_CONFIGURED"
)

// Endpoint is the listing entry of a registered method.
type Endpoint struct {
	Method       string        `json:"method"`
	Kind         MethodKind    `json:"kind"`
	RequestType  string        `json:"requestType,omitempty"`
	ResponseType string        `json:"responseType,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	Idempotent   bool          `json:"idempotent"`
	Summary      string        `json:"summary,omitempty"`
	Description  string        `json:"description,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
}

type endpointEntry struct {
	endpoint Endpoint
	newReq   func() any
	invoke   func(context.Context, any) (any, error)
}

type Option func(*Server)

// WithLogger receives recovered panics.
func WithLogger(logger durable.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPanicRecovery turns handler panics into RPC_INVOKE_PANIC errors.
// Without it a panicking handler panics the caller.
func WithPanicRecovery() Option {
	return func(s *Server) {
		s.recoverPanics = true
	}
}

// WithMiddleware appends invoke middleware in registration order.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		for _, m := range mw {
			if m != nil {
				s.middleware = append(s.middleware, m)
			}
		}
	}
}

// Server holds registered endpoints and the middleware applied to every
// invoke.
type Server struct {
	mu            sync.RWMutex
	endpoints     map[string]endpointEntry
	middleware    []Middleware
	logger        durable.Logger
	recoverPanics bool
}

func NewServer(opts ...Option) *Server {
	server := &Server{
		endpoints: make(map[string]endpointEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.logger = durable.NormalizeLogger(server.logger)
	return server
}

// Register stores endpoint definitions in order. It stops at the first
// definition without a method or with a method already taken.
func (s *Server) Register(defs ...EndpointDefinition) error {
	if s == nil {
		return errors.New("rpc server not configured", errors.CategoryInternal).
			WithTextCode(ErrCodeServerNotDefined)
	}
	for _, def := range defs {
		if err := s.register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterProvider registers every endpoint a provider exposes.
func (s *Server) RegisterProvider(provider EndpointsProvider) error {
	if provider == nil {
		return nil
	}
	return s.Register(provider.RPCEndpoints()...)
}

func (s *Server) register(def EndpointDefinition) error {
	if def == nil {
		return errors.New("rpc endpoint definition required", errors.CategoryBadInput).
			WithTextCode(ErrCodeMethodRequired)
	}
	spec := def.Spec()
	if spec.Method == "" {
		return errors.New("rpc method required", errors.CategoryBadInput).
			WithTextCode(ErrCodeMethodRequired)
	}
	kind := spec.Kind
	if kind == "" {
		kind = MethodKindQuery
	}

	entry := endpointEntry{
		endpoint: Endpoint{
			Method:       spec.Method,
			Kind:         kind,
			RequestType:  typeName(def.RequestType()),
			ResponseType: typeName(def.ResponseType()),
			Timeout:      spec.Timeout,
			Idempotent:   spec.Idempotent,
			Summary:      spec.Summary,
			Description:  spec.Description,
			Tags:         cloneStrings(spec.Tags),
		},
		newReq: def.NewRequest,
		invoke: def.Invoke,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[spec.Method]; exists {
		return errors.New(fmt.Sprintf("rpc method %q already registered", spec.Method), errors.CategoryConflict).
			WithTextCode(ErrCodeDuplicateMethod).
			WithMetadata(map[string]any{"method": spec.Method})
	}
	s.endpoints[spec.Method] = entry
	return nil
}

// Invoke executes a registered method. payload should already be decoded
// into the method's request envelope.
func (s *Server) Invoke(ctx context.Context, method string, payload any) (out any, err error) {
	if s == nil {
		return nil, errors.New("rpc server not configured", errors.CategoryInternal).
			WithTextCode(ErrCodeServerNotDefined)
	}
	if method == "" {
		return nil, errors.New("rpc method required", errors.CategoryBadInput).
			WithTextCode(ErrCodeMethodRequired)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.RLock()
	entry, ok := s.endpoints[method]
	middleware := slices.Clone(s.middleware)
	s.mu.RUnlock()
	if !ok {
		return nil, methodNotFound(method)
	}

	if s.recoverPanics {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			durable.WithLoggerFields(s.logger, map[string]any{
				"method": method,
				"panic":  fmt.Sprint(p),
			}).Error("rpc handler panicked")
			out = nil
			err = errors.New(fmt.Sprintf("rpc invoke panic for method %q: %v", method, p), errors.CategoryInternal).
				WithTextCode(ErrCodeInvokePanic).
				WithMetadata(map[string]any{"method": method})
		}()
	}

	req := InvokeRequest{
		Method:   method,
		Endpoint: cloneEndpoint(entry.endpoint),
		Payload:  payload,
	}
	return applyMiddleware(middleware, entry.invoke)(ctx, req)
}

// Endpoint returns the listing entry for method.
func (s *Server) Endpoint(method string) (Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.endpoints[method]
	if !ok {
		return Endpoint{}, false
	}
	return cloneEndpoint(entry.endpoint), true
}

// Endpoints lists every method sorted by name.
func (s *Server) Endpoints() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Endpoint, 0, len(s.endpoints))
	for _, entry := range s.endpoints {
		out = append(out, cloneEndpoint(entry.endpoint))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Method < out[j].Method
	})
	return out
}

// NewRequestForMethod returns an empty request envelope for transports to
// decode into.
func (s *Server) NewRequestForMethod(method string) (any, error) {
	if method == "" {
		return nil, errors.New("rpc method required", errors.CategoryBadInput).
			WithTextCode(ErrCodeMethodRequired)
	}

	s.mu.RLock()
	entry, ok := s.endpoints[method]
	s.mu.RUnlock()
	if !ok {
		return nil, methodNotFound(method)
	}
	return entry.newReq(), nil
}

func methodNotFound(method string) *errors.Error {
	return errors.New(fmt.Sprintf("rpc method %q not found", method), errors.CategoryNotFound).
		WithTextCode(ErrCodeMethodNotFound).
		WithMetadata(map[string]any{"method": method})
}

// payloadValue accepts the envelope by value, by pointer, or nil.
func payloadValue(method string, msgType reflect.Type, payload any) (reflect.Value, error) {
	if payload == nil {
		return reflect.Zero(msgType), nil
	}
	value := reflect.ValueOf(payload)
	if value.Type().AssignableTo(msgType) {
		return value, nil
	}
	if msgType.Kind() == reflect.Ptr && value.Type().AssignableTo(msgType.Elem()) {
		ptr := reflect.New(msgType.Elem())
		ptr.Elem().Set(value)
		return ptr, nil
	}
	return reflect.Value{}, invalidPayload(method, msgType, value.Type())
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return slices.Clone(values)
}

func cloneEndpoint(endpoint Endpoint) Endpoint {
	endpoint.Tags = cloneStrings(endpoint.Tags)
	return endpoint
}
