package rpc

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// RequestMeta carries transport metadata that handlers use for routing.
type RequestMeta struct {
	RequestID     string            `json:"requestId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// Header returns a header value by case-insensitive name.
func (m RequestMeta) Header(name string) string {
	if len(m.Headers) == 0 {
		return ""
	}
	if v, ok := m.Headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// RequestEnvelope is the canonical method request shape for transport adapters.
type RequestEnvelope[T any] struct {
	Data T           `json:"data"`
	Meta RequestMeta `json:"meta,omitempty"`
}

// mergeHeaders lets transports inject headers without knowing T.
func (r *RequestEnvelope[T]) mergeHeaders(headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	if r.Meta.Headers == nil {
		r.Meta.Headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		r.Meta.Headers[strings.ToLower(k)] = v
	}
}

func (r RequestEnvelope[T]) meta() RequestMeta {
	return r.Meta
}

func (r RequestEnvelope[T]) data() any {
	return r.Data
}

type headerMerger interface {
	mergeHeaders(map[string]string)
}

type envelope interface {
	meta() RequestMeta
	data() any
}

// Error is a transport-friendly error envelope.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Category  string         `json:"category,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ResponseEnvelope is the canonical method response shape for transport adapters.
type ResponseEnvelope[T any] struct {
	Data  T      `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MethodKind describes endpoint invocation shape.
type MethodKind string

const (
	MethodKindCommand MethodKind = "command"
	MethodKindQuery   MethodKind = "query"
)

// EndpointSpec declares endpoint metadata independent from the handler.
type EndpointSpec struct {
	Method      string
	Kind        MethodKind
	Timeout     time.Duration
	Idempotent  bool
	Summary     string
	Description string
	Tags        []string
}

// EndpointDefinition is the explicit endpoint contract registered in the RPC server.
type EndpointDefinition interface {
	Spec() EndpointSpec
	NewRequest() any
	RequestType() reflect.Type
	ResponseType() reflect.Type
	Invoke(context.Context, any) (any, error)
}

// EndpointsProvider exposes a group of endpoint definitions.
type EndpointsProvider interface {
	RPCEndpoints() []EndpointDefinition
}

type endpointDefinition struct {
	spec    EndpointSpec
	reqType reflect.Type
	resType reflect.Type
	invoke  func(context.Context, any) (any, error)
}

func (d *endpointDefinition) Spec() EndpointSpec {
	spec := d.spec
	spec.Tags = cloneStrings(spec.Tags)
	return spec
}

func (d *endpointDefinition) NewRequest() any {
	return reflect.New(d.reqType.Elem()).Interface()
}

func (d *endpointDefinition) RequestType() reflect.Type {
	return d.reqType
}

func (d *endpointDefinition) ResponseType() reflect.Type {
	return d.resType
}

func (d *endpointDefinition) Invoke(ctx context.Context, req any) (any, error) {
	return d.invoke(ctx, req)
}

// NewEndpoint builds an explicit typed endpoint definition.
func NewEndpoint[Req any, Res any](
	spec EndpointSpec,
	handler func(context.Context, RequestEnvelope[Req]) (ResponseEnvelope[Res], error),
) EndpointDefinition {
	reqPtrType := reflect.TypeFor[*RequestEnvelope[Req]]()
	resEnvelopeType := reflect.TypeFor[ResponseEnvelope[Res]]()

	return &endpointDefinition{
		spec:    spec,
		reqType: reqPtrType,
		resType: resEnvelopeType,
		invoke: func(ctx context.Context, payload any) (any, error) {
			reqValue, err := payloadValue(spec.Method, reqPtrType, payload)
			if err != nil {
				return nil, err
			}
			typedReq, ok := reqValue.Interface().(*RequestEnvelope[Req])
			if !ok || typedReq == nil {
				typedReq = &RequestEnvelope[Req]{}
			}
			return handler(ctx, *typedReq)
		},
	}
}

func invalidPayload(method string, expected, got reflect.Type) *errors.Error {
	return errors.New("invalid request payload", errors.CategoryBadInput).
		WithTextCode(ErrCodeInvalidParams).
		WithMetadata(map[string]any{
			"method":   method,
			"expected": expected.String(),
			"got":      got.String(),
		})
}
