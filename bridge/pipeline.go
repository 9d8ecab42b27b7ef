package bridge

import (
	"context"
	"sync"

	durable "github.com/goliatone/go-durable"
)

// Pipeline runs dispatch middleware in registration order. The last stage
// receives a next that does nothing.
type Pipeline struct {
	mu         sync.RWMutex
	middleware []Middleware
}

func NewPipeline(middleware ...Middleware) *Pipeline {
	p := &Pipeline{}
	p.Use(middleware...)
	return p
}

func (p *Pipeline) Use(middleware ...Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range middleware {
		if m != nil {
			p.middleware = append(p.middleware, m)
		}
	}
}

// Run dispatches one work item. dc is also reachable from the context passed
// to each stage through durable.DispatchFromContext.
func (p *Pipeline) Run(ctx context.Context, dc *durable.DispatchContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	stages := append([]Middleware(nil), p.middleware...)
	p.mu.RUnlock()

	ctx = durable.ContextWithDispatch(ctx, dc)

	var step func(i int) func(context.Context) error
	step = func(i int) func(context.Context) error {
		return func(ctx context.Context) error {
			if i >= len(stages) {
				return nil
			}
			return stages[i](ctx, dc, step(i+1))
		}
	}
	return step(0)(ctx)
}

// LoggingMiddleware logs each work item and the error, if any, returned by
// later stages.
func LoggingMiddleware(logger durable.Logger) Middleware {
	logger = durable.NormalizeLogger(logger)
	return func(ctx context.Context, dc *durable.DispatchContext, next func(context.Context) error) error {
		fields := map[string]any{}
		if instance, ok := durable.GetProperty[durable.OrchestrationInstance](dc, durable.PropertyInstance); ok {
			fields["instance_id"] = instance.InstanceID
		}
		log := durable.WithLoggerFields(logger.WithContext(ctx), fields)
		log.Debug("dispatching work item")
		err := next(ctx)
		if err != nil {
			if durable.IsAbort(err) {
				log.Warn("work item aborted: %v", err)
			} else {
				log.Error("work item dispatch failed: %v", err)
			}
		}
		return err
	}
}
