// Package config loads the sidecar host configuration from YAML or JSON.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const ErrCodeInvalidConfig = "INVALID_CONFIG"

// Config is the full host configuration.
type Config struct {
	HubName         string           `json:"hub_name" yaml:"hub_name"`
	TaskHubs        []TaskHub        `json:"task_hubs,omitempty" yaml:"task_hubs,omitempty"`
	Listener        ListenerConfig   `json:"listener" yaml:"listener"`
	Management      ManagementConfig `json:"management" yaml:"management"`
	Dispatch        DispatchConfig   `json:"dispatch" yaml:"dispatch"`
	ShutdownTimeout time.Duration    `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	Logging         LoggingConfig    `json:"logging" yaml:"logging"`
	Retention       RetentionConfig  `json:"retention" yaml:"retention"`
}

// TaskHub declares an additional engine addressed by task hub name and
// connection name.
type TaskHub struct {
	Name       string `json:"name" yaml:"name"`
	Connection string `json:"connection,omitempty" yaml:"connection,omitempty"`
}

func (h TaskHub) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&h.Connection, validation.Length(0, 128)),
	)
}

// ListenerConfig controls the loopback RPC endpoint.
type ListenerConfig struct {
	Port        int `json:"port" yaml:"port"`
	MinPort     int `json:"min_port" yaml:"min_port"`
	MaxPort     int `json:"max_port" yaml:"max_port"`
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

func (l ListenerConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&l.MinPort, validation.Required, validation.Min(1024), validation.Max(65535)),
		validation.Field(&l.MaxPort, validation.Required, validation.Max(65536),
			validation.Min(l.MinPort+1).Error("must be greater than min_port")),
		validation.Field(&l.MaxAttempts, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// ManagementConfig controls the legacy plain HTTP management endpoint.
type ManagementConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

func (m ManagementConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Port, validation.When(m.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

// DispatchConfig controls worker dispatch tracing.
type DispatchConfig struct {
	TraceInputsOutputs bool `json:"trace_inputs_outputs" yaml:"trace_inputs_outputs"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("trace", "debug", "info", "warn", "error", "fatal")),
		validation.Field(&l.Format, validation.Required, validation.In("console", "json")),
	)
}

// JSON reports whether structured JSON output was requested.
func (l LoggingConfig) JSON() bool {
	return l.Format == "json"
}

// RetentionConfig schedules purging of old terminal instances.
type RetentionConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Schedule string        `json:"schedule" yaml:"schedule"`
	MaxAge   time.Duration `json:"max_age" yaml:"max_age"`
	Statuses []string      `json:"statuses" yaml:"statuses"`
}

func (r RetentionConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Schedule, validation.When(r.Enabled, validation.Required, validation.By(cronSpec))),
		validation.Field(&r.MaxAge, validation.When(r.Enabled, validation.Required, validation.Min(time.Minute))),
		validation.Field(&r.Statuses, validation.Each(validation.By(terminalStatus))),
	)
}

// RuntimeStatuses resolves the configured status names.
func (r RetentionConfig) RuntimeStatuses() ([]durable.OrchestrationStatus, error) {
	out := make([]durable.OrchestrationStatus, 0, len(r.Statuses))
	for _, name := range r.Statuses {
		status, ok := durable.ParseOrchestrationStatus(name)
		if !ok {
			return nil, errors.New(fmt.Sprintf("unknown orchestration status %q", name), errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidConfig)
		}
		out = append(out, status)
	}
	return out, nil
}

func cronSpec(value any) error {
	spec, _ := value.(string)
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule: %v", err)
	}
	return nil
}

func terminalStatus(value any) error {
	name, _ := value.(string)
	status, ok := durable.ParseOrchestrationStatus(name)
	if !ok {
		return fmt.Errorf("unknown orchestration status %q", name)
	}
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", name)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HubName: "TestHubName",
		Listener: ListenerConfig{
			Port:        4001,
			MinPort:     30000,
			MaxPort:     31000,
			MaxAttempts: 10,
		},
		Management: ManagementConfig{
			Enabled: true,
			Port:    17071,
		},
		ShutdownTimeout: 30 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Retention: RetentionConfig{
			Schedule: "@every 1h",
			MaxAge:   30 * 24 * time.Hour,
			Statuses: []string{"Completed", "Failed", "Terminated"},
		},
	}
}

// Validate checks every section and reports field errors keyed by their
// json names.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.HubName, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.TaskHubs),
		validation.Field(&c.Listener),
		validation.Field(&c.Management),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Logging),
		validation.Field(&c.Retention),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid configuration").WithTextCode(ErrCodeInvalidConfig)
	}
	return nil
}

// Parse decodes YAML or JSON over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(string(data)) == "" {
		return cfg, cfg.Validate()
	}
	// yaml accepts JSON documents as well
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "config decode failed").
			WithTextCode(ErrCodeInvalidConfig)
	}
	return cfg, cfg.Validate()
}

// Load reads and parses the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryNotFound, fmt.Sprintf("read config %s", path)).
			WithTextCode(ErrCodeInvalidConfig)
	}
	return Parse(data)
}
