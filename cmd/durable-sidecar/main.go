// Command durable-sidecar hosts the durable execution engine for
// out-of-process workers. It serves the sidecar RPC protocol on a loopback
// port and feeds orchestrator, activity and entity work to registered
// workers through the dispatch bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/config"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-durable/sidecar"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"YAML or JSON configuration file." type:"path" env:"DURABLE_CONFIG"`
	LogLevel  string `help:"Override the configured log level." env:"DURABLE_LOG_LEVEL"`
	LogFormat string `help:"Override the configured log format (console or json)." env:"DURABLE_LOG_FORMAT"`
	HubName   string `help:"Override the default task hub name." env:"DURABLE_HUB_NAME"`
}

// load reads the configuration and applies flag overrides.
func (g *Globals) load() (config.Config, durable.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return cfg, nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	if g.HubName != "" {
		cfg.HubName = g.HubName
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, durable.NewDefaultGlogLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON()), nil
}

type ServeCmd struct {
	Sample bool `help:"Register the in-process Sum/Add sample worker."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}

	functions := durable.NewFunctionRegistry()
	if c.Sample {
		if err := registerSampleWorker(functions); err != nil {
			return err
		}
	}

	h, err := newHost(cfg, logger, functions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-h.Errors():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		return err
	}
	return runErr
}

// DemoCmd runs one sample orchestration end to end and prints its output.
type DemoCmd struct {
	Input   string        `help:"JSON array passed to the Sum orchestration." default:"[1,2]"`
	Timeout time.Duration `help:"How long to wait for completion." default:"10s"`
}

func (c *DemoCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	cfg.Management.Enabled = false
	cfg.Retention.Enabled = false

	output, err := runDemo(cfg, logger, c.Input, c.Timeout)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, output)
	return err
}

// runDemo starts a host with the sample worker, runs Sum over input and
// returns the orchestration output.
func runDemo(cfg config.Config, logger durable.Logger, input string, timeout time.Duration) (string, error) {
	functions := durable.NewFunctionRegistry()
	if err := registerSampleWorker(functions); err != nil {
		return "", err
	}
	h, err := newHost(cfg, logger, functions)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.Start(ctx); err != nil {
		return "", err
	}
	defer h.Stop(context.Background())

	started, err := h.sidecar.StartInstance(ctx, rpc.RequestMeta{}, sidecar.StartInstanceRequest{
		Name:  sumOrchestrator,
		Input: &input,
	})
	if err != nil {
		return "", err
	}
	state, err := h.sidecar.WaitForInstanceCompletion(ctx, rpc.RequestMeta{}, sidecar.GetInstanceRequest{
		InstanceID:          started.InstanceID,
		GetInputsAndOutputs: true,
	})
	if err != nil {
		return "", err
	}
	orchestration := state.OrchestrationState
	if !state.Exists || orchestration == nil {
		return "", fmt.Errorf("instance %s disappeared", started.InstanceID)
	}
	if orchestration.FailureDetails != nil {
		return "", fmt.Errorf("instance %s failed: %s", started.InstanceID, orchestration.FailureDetails.ErrorMessage)
	}
	if orchestration.Output == nil {
		return "", nil
	}
	return *orchestration.Output, nil
}

type CLI struct {
	Globals

	Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the sidecar host."`
	Version kong.VersionFlag `help:"Print the version and exit."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("durable-sidecar"),
		kong.Description("Durable execution host for out-of-process workers."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.DynamicCommand("demo", "Run the Sum/Add sample orchestration in-process.", "Samples", &DemoCmd{}),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
