// Package dispatcher drains an engine's pending work through the dispatch
// bridge: orchestrator turns for instances with queued messages, then the
// activities those turns scheduled.
package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine/memory"
	"github.com/goliatone/go-durable/runner"
	"github.com/goliatone/go-errors"
)

const ErrCodeDispatchFailed = "DISPATCH_FAILED"

// Source is an engine that exposes its pending work.
type Source interface {
	Runnable() []string
	Active() []string
	Changed() <-chan struct{}
	DispatchOrchestrator(ctx context.Context, instanceID string, run memory.RunFunc) (*durable.OrchestratorExecutionResult, error)
	PendingActivities(instanceID string) []durable.HistoryEvent
	DispatchActivity(ctx context.Context, instanceID string, scheduled durable.HistoryEvent, run memory.RunFunc) (*durable.ActivityExecutionResult, error)
}

var _ Source = (*memory.Backend)(nil)

// Dispatcher runs work items one at a time. Aborted items stay queued and
// are retried after the next engine change.
type Dispatcher struct {
	source       Source
	orchestrator memory.RunFunc
	activity     memory.RunFunc
	logger       durable.Logger
	shutdown     runner.ShutdownSignal
	runnerOpts   []runner.Option
	ExitOnErr    bool

	dispatched atomic.Int64
	aborted    atomic.Int64
}

type Option func(*Dispatcher)

func WithLogger(logger durable.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithShutdown(signal runner.ShutdownSignal) Option {
	return func(d *Dispatcher) {
		if signal != nil {
			d.shutdown = signal
		}
	}
}

// WithItemTimeout bounds each work item.
func WithItemTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.runnerOpts = append(d.runnerOpts, runner.WithTimeout(timeout))
		}
	}
}

// WithExitOnError stops a drain at the first failed work item.
func WithExitOnError() Option {
	return func(d *Dispatcher) {
		d.ExitOnErr = true
	}
}

func New(source Source, orchestrator, activity memory.RunFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:       source,
		orchestrator: orchestrator,
		activity:     activity,
		shutdown:     runner.NeverShutdown(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = durable.NormalizeLogger(d.logger)
	return d
}

// Dispatched reports the completed work items.
func (d *Dispatcher) Dispatched() int64 { return d.dispatched.Load() }

// Aborted reports the work items left queued by an abort.
func (d *Dispatcher) Aborted() int64 { return d.aborted.Load() }

// DrainOnce dispatches every activity pending on an active instance and then
// one turn per runnable instance. It returns the number of completed items
// and the joined non-abort failures.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	done := 0
	var errs error

	step := func(id string, fn func(context.Context) error) bool {
		ok, stop, err := d.settle(ctx, id, d.run(ctx, fn))
		if ok {
			done++
		}
		errs = stderrors.Join(errs, err)
		return stop
	}

	for _, id := range d.source.Active() {
		for _, scheduled := range d.source.PendingActivities(id) {
			stop := step(id, func(ctx context.Context) error {
				_, err := d.source.DispatchActivity(ctx, id, scheduled, d.activity)
				return err
			})
			if stop {
				return done, errs
			}
		}
	}

	for _, id := range d.source.Runnable() {
		stop := step(id, func(ctx context.Context) error {
			_, err := d.source.DispatchOrchestrator(ctx, id, d.orchestrator)
			return err
		})
		if stop {
			return done, errs
		}
	}
	return done, errs
}

// Run drains until ctx is done or the shutdown signal fires, waiting for an
// engine change between passes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		changed := d.source.Changed()
		if _, err := d.DrainOnce(ctx); err != nil {
			durable.WithLoggerFields(d.logger, map[string]any{"error": err.Error()}).Error("dispatch pass failed")
			if d.ExitOnErr {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.shutdown.Done():
			return nil
		case <-changed:
		}
	}
}

// run executes one item through a runner.Handler and returns the item's own
// error, so aborts keep their type.
func (d *Dispatcher) run(ctx context.Context, fn func(context.Context) error) error {
	h := runner.NewHandler(append([]runner.Option{
		runner.WithLogger(d.logger),
		runner.WithErrorHandler(func(error) {}),
	}, d.runnerOpts...)...)

	var itemErr error
	if err := h.Run(ctx, func(ctx context.Context) error {
		itemErr = fn(ctx)
		return itemErr
	}); itemErr == nil {
		return err
	}
	return itemErr
}

// settle classifies a work item outcome: ok when it completed, stop when the
// pass should end. Aborts are counted but not reported as failures.
func (d *Dispatcher) settle(ctx context.Context, instanceID string, err error) (ok, stop bool, failure error) {
	if err == nil {
		d.dispatched.Add(1)
		return true, false, nil
	}
	if durable.IsAbort(err) {
		d.aborted.Add(1)
		durable.WithLoggerFields(d.logger, map[string]any{
			"instance_id": instanceID,
			"error":       err.Error(),
		}).Warn("work item aborted, leaving it queued")
		return false, runner.Fired(d.shutdown) || ctx.Err() != nil, nil
	}

	failure = errors.Wrap(err, errors.CategoryOperation, fmt.Sprintf("dispatch failed for instance %s", instanceID)).
		WithTextCode(ErrCodeDispatchFailed).
		WithMetadata(map[string]any{"instance_id": instanceID})
	return false, d.ExitOnErr || ctx.Err() != nil, failure
}
