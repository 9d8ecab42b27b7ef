package rpc

import (
	"context"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-errors"
)

// InvokeRequest carries method metadata and payload through middleware.
type InvokeRequest struct {
	Method   string
	Endpoint Endpoint
	Payload  any
}

// InvokeHandler executes one RPC invoke step in a middleware chain.
type InvokeHandler func(context.Context, InvokeRequest) (any, error)

// Middleware wraps invoke execution with cross-cutting behavior.
type Middleware func(next InvokeHandler) InvokeHandler

func applyMiddleware(middleware []Middleware, invoke func(context.Context, any) (any, error)) InvokeHandler {
	handler := func(ctx context.Context, req InvokeRequest) (any, error) {
		return invoke(ctx, req.Payload)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		current := middleware[i]
		if current == nil {
			continue
		}
		handler = current(handler)
	}
	return handler
}

// TimeoutMiddleware bounds each invoke by the endpoint timeout. Endpoints
// without a timeout use fallback; a zero fallback leaves them unbounded.
func TimeoutMiddleware(fallback time.Duration) Middleware {
	return func(next InvokeHandler) InvokeHandler {
		return func(ctx context.Context, req InvokeRequest) (any, error) {
			timeout := req.Endpoint.Timeout
			if timeout <= 0 {
				timeout = fallback
			}
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// ValidationMiddleware runs durable.ValidateMessage on the envelope data
// before the handler sees it.
func ValidationMiddleware() Middleware {
	return func(next InvokeHandler) InvokeHandler {
		return func(ctx context.Context, req InvokeRequest) (any, error) {
			env, ok := req.Payload.(envelope)
			if !ok {
				return next(ctx, req)
			}
			data := env.data()
			if durable.IsNilMessage(data) {
				return next(ctx, req)
			}
			if err := durable.ValidateMessage(data); err != nil {
				return nil, errors.Wrap(err, errors.CategoryValidation, "rpc request validation failed").
					WithTextCode(ErrCodeInvalidParams).
					WithMetadata(map[string]any{"method": req.Method})
			}
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware traces every invoke with its duration and outcome.
func LoggingMiddleware(logger durable.Logger) Middleware {
	logger = durable.NormalizeLogger(logger)
	return func(next InvokeHandler) InvokeHandler {
		return func(ctx context.Context, req InvokeRequest) (any, error) {
			fields := map[string]any{"method": req.Method}
			if env, ok := req.Payload.(envelope); ok {
				if id := env.meta().RequestID; id != "" {
					fields["request_id"] = id
				}
			}
			started := time.Now()
			out, err := next(ctx, req)
			fields["duration"] = time.Since(started).String()

			if err != nil {
				fields["error"] = err.Error()
				durable.WithLoggerFields(logger.WithContext(ctx), fields).Warn("rpc invoke failed")
				return out, err
			}
			durable.WithLoggerFields(logger.WithContext(ctx), fields).Debug("rpc invoke completed")
			return out, nil
		}
	}
}
