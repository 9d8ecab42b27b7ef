package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/bridge"
	"github.com/goliatone/go-durable/config"
	"github.com/goliatone/go-durable/cron"
	"github.com/goliatone/go-durable/dispatcher"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/engine/memory"
	"github.com/goliatone/go-durable/listener"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-durable/runner"
	"github.com/goliatone/go-durable/sidecar"
)

// hub is one task hub served by the host: its engine and the loop feeding
// its work through the bridge.
type hub struct {
	name       string
	connection string
	backend    *memory.Backend
	dispatcher *dispatcher.Dispatcher
	purger     *cron.PurgeScheduler
}

// host wires the engines, the RPC surface and the dispatch loops of one
// sidecar process.
type host struct {
	cfg       config.Config
	logger    durable.Logger
	functions *durable.FunctionRegistry
	shutdown  *runner.ManualShutdown

	engines    *engine.Registry
	hubs       []*hub
	sidecar    *sidecar.Server
	rpc        *listener.Listener
	management *listener.Listener
	scheduler  *cron.Scheduler

	wg      sync.WaitGroup
	runErrs chan error
}

func newHost(cfg config.Config, logger durable.Logger, functions *durable.FunctionRegistry) (*host, error) {
	logger = durable.NormalizeLogger(logger)
	if functions == nil {
		functions = durable.NewFunctionRegistry()
	}
	h := &host{
		cfg:       cfg,
		logger:    logger,
		functions: functions,
		shutdown:  runner.NewManualShutdown(),
		scheduler: cron.NewScheduler(cron.WithLogger(logger)),
		runErrs:   make(chan error, 1),
	}

	defaultHub := memory.New(cfg.HubName)
	h.engines = engine.NewRegistry(defaultHub)
	if err := h.addHub(cfg.HubName, "", defaultHub); err != nil {
		return nil, err
	}
	for _, th := range cfg.TaskHubs {
		if err := h.addHub(th.Name, th.Connection, memory.New(th.Name)); err != nil {
			return nil, err
		}
	}

	h.sidecar = sidecar.New(h.engines, sidecar.WithLogger(logger))
	rpcServer, err := sidecar.NewRPCServer(h.sidecar, logger)
	if err != nil {
		return nil, err
	}
	h.rpc = listener.New(rpc.HTTPHandler(rpcServer),
		listener.WithName("rpc"),
		listener.WithHubName(cfg.HubName),
		listener.WithLogger(logger),
		listener.WithDefaultPort(cfg.Listener.Port),
		listener.WithPortRange(cfg.Listener.MinPort, cfg.Listener.MaxPort),
		listener.WithMaxAttempts(cfg.Listener.MaxAttempts),
	)
	if cfg.Management.Enabled {
		h.management = listener.New(listener.NewManagementHandler(cfg.HubName, h.engines, logger),
			listener.WithName("management"),
			listener.WithHubName(cfg.HubName),
			listener.WithLogger(logger),
			listener.WithDefaultPort(cfg.Management.Port),
			listener.WithPortRange(cfg.Listener.MinPort, cfg.Listener.MaxPort),
			listener.WithMaxAttempts(cfg.Listener.MaxAttempts),
		)
	}
	return h, nil
}

func (h *host) addHub(name, connection string, backend *memory.Backend) error {
	if err := h.engines.Register(name, connection, backend); err != nil {
		return err
	}
	if err := backend.CreateTaskHub(context.Background(), false); err != nil {
		return err
	}

	hubLogger := durable.WithLoggerFields(h.logger, map[string]any{"hub": name})
	b := bridge.New(h.functions,
		bridge.WithLogger(hubLogger),
		bridge.WithHubName(name),
		bridge.WithShutdown(h.shutdown),
		bridge.WithTraceInputsOutputs(h.cfg.Dispatch.TraceInputsOutputs),
	)
	orchestrators := bridge.NewPipeline(bridge.LoggingMiddleware(hubLogger), b.OrchestratorMiddleware())
	activities := bridge.NewPipeline(bridge.LoggingMiddleware(hubLogger), b.ActivityMiddleware())

	entry := &hub{
		name:       name,
		connection: connection,
		backend:    backend,
		dispatcher: dispatcher.New(backend, orchestrators.Run, activities.Run,
			dispatcher.WithLogger(hubLogger),
			dispatcher.WithShutdown(h.shutdown),
		),
	}

	if h.cfg.Retention.Enabled {
		statuses, err := h.cfg.Retention.RuntimeStatuses()
		if err != nil {
			return err
		}
		entry.purger, err = cron.NewPurgeScheduler(h.scheduler, backend, cron.RetentionPolicy{
			Schedule: h.cfg.Retention.Schedule,
			MaxAge:   h.cfg.Retention.MaxAge,
			Statuses: statuses,
		}, cron.WithPurgeLogger(hubLogger))
		if err != nil {
			return err
		}
	}

	h.hubs = append(h.hubs, entry)
	return nil
}

// Start freezes the function registry, opens the endpoints and starts the
// dispatch loops and scheduled jobs.
func (h *host) Start(ctx context.Context) error {
	h.functions.Freeze()

	if err := h.rpc.Start(ctx); err != nil {
		return err
	}
	if h.management != nil {
		if err := h.management.Start(ctx); err != nil {
			_ = h.rpc.Stop(ctx)
			return err
		}
	}

	for _, entry := range h.hubs {
		if entry.purger != nil {
			if _, err := entry.purger.Start(); err != nil {
				return err
			}
		}
		d := entry.dispatcher
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := d.Run(context.WithoutCancel(ctx)); err != nil {
				select {
				case h.runErrs <- err:
				default:
				}
			}
		}()
	}
	if err := h.scheduler.Start(ctx); err != nil {
		return err
	}

	durable.WithLoggerFields(h.logger, map[string]any{
		"rpc":       h.rpc.Address(),
		"functions": len(h.functions.Names(durable.FunctionKindOrchestrator)) + len(h.functions.Names(durable.FunctionKindActivity)),
	}).Info(fmt.Sprintf("sidecar host started with %d task hub(s)", len(h.hubs)))
	return nil
}

// Stop fires the shutdown signal, so in-flight work items abort and stay
// queued, then closes the endpoints and waits for the loops.
func (h *host) Stop(ctx context.Context) error {
	h.shutdown.Cancel(nil)

	var errs error
	if err := h.scheduler.Stop(ctx); err != nil {
		errs = stderrors.Join(errs, err)
	}
	if h.management != nil {
		errs = stderrors.Join(errs, h.management.Stop(ctx))
	}
	errs = stderrors.Join(errs, h.rpc.Stop(ctx))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = stderrors.Join(errs, ctx.Err())
	}
	return errs
}

// Errors reports a dispatch loop that exited with an error.
func (h *host) Errors() <-chan error { return h.runErrs }

func (h *host) lookupHub(name string) *hub {
	for _, entry := range h.hubs {
		if entry.name == name {
			return entry
		}
	}
	return nil
}
