package cron

import (
	"fmt"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/runner"
)

// LogLevel filters the scheduler's own diagnostics.
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Parser selects the accepted cron expression format.
type Parser int

const (
	// StandardParser accepts five fields plus descriptors such as "@every 1h".
	StandardParser Parser = iota
	// SecondsParser requires a leading seconds field.
	SecondsParser
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithLogger(logger durable.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler receives job failures and recovered panics.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		if handler != nil {
			s.errorHandler = handler
		}
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// JobOptions configures the runner wrapped around each job execution.
type JobOptions struct {
	MaxRetries int
	// Backoff spaces retries within one run. Nil retries immediately.
	Backoff runner.RetryStrategy
	Timeout time.Duration
	// Deadline caps every run's context at an absolute time.
	Deadline time.Time
	// MaxRuns completes the handle after that many successful runs.
	MaxRuns int
	RunOnce bool
}

// loggerAdapter feeds robfig/cron key/value logging into a durable.Logger.
type loggerAdapter struct {
	logger durable.Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...any) {
	if l.level < LogLevelDebug {
		return
	}
	durable.WithLoggerFields(l.logger, pairs(keysAndValues)).Debug("cron " + msg)
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if l.level < LogLevelError {
		return
	}
	fields := pairs(keysAndValues)
	if err != nil {
		fields["error"] = err.Error()
	}
	durable.WithLoggerFields(l.logger, fields).Error("cron " + msg)
}

// errorHandlerAdapter routes panics recovered by the cron chain to the
// scheduler error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...any) {}

func (e *errorHandlerAdapter) Error(err error, msg string, _ ...any) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	e.handler(err)
}

func pairs(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
