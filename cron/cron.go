// Package cron runs recurring maintenance jobs, such as the retention purge,
// on top of robfig/cron.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/runner"
	"github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"
)

const ErrCodeInvalidSchedule = "INVALID_SCHEDULE"

// Job is one execution of a scheduled task.
type Job func(ctx context.Context) error

// Scheduler wraps a robfig/cron instance and tracks job handles.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	parser       Parser
	logger       durable.Logger
	logLevel     LogLevel
	errorHandler func(error)

	ctx    context.Context
	cancel context.CancelFunc

	nextID  int64
	handles map[int64]*jobHandle
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   StandardParser,
		logLevel: LogLevelError,
		handles:  make(map[int64]*jobHandle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = durable.NormalizeLogger(s.logger)
	if s.errorHandler == nil {
		s.errorHandler = func(err error) {
			durable.WithLoggerFields(s.logger, map[string]any{"error": err.Error()}).Error("scheduled job failed")
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = rcron.New(s.build()...)
	return s
}

func (s *Scheduler) build() []rcron.Option {
	fields := rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor
	if s.parser == SecondsParser {
		fields |= rcron.Second
	}
	opts := []rcron.Option{
		rcron.WithLocation(s.location),
		rcron.WithParser(rcron.NewParser(fields)),
		rcron.WithChain(rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler})),
	}
	if s.logLevel > LogLevelSilent {
		opts = append(opts, rcron.WithLogger(&loggerAdapter{logger: s.logger, level: s.logLevel}))
	}
	return opts
}

// Schedule registers job under a cron expression. Each run goes through a
// runner.Handler configured from opts; overlapping runs of the same job are
// skipped. Reaching opts.MaxRuns unschedules the job and completes the handle.
func (s *Scheduler) Schedule(expression string, opts JobOptions, job Job) (Handle, error) {
	if job == nil {
		return nil, errors.New("scheduled job cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}
	if expression == "" {
		return nil, errors.New("cron expression cannot be empty", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}

	s.mu.Lock()
	s.nextID++
	h := &jobHandle{
		scheduler: s,
		id:        s.nextID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
	s.mu.Unlock()

	handler := runner.NewHandler(
		runner.WithMaxRetries(opts.MaxRetries),
		runner.WithRetryStrategy(opts.Backoff),
		runner.WithTimeout(opts.Timeout),
		runner.WithDeadline(opts.Deadline),
		runner.WithMaxRuns(opts.MaxRuns),
		runner.WithRunOnce(opts.RunOnce),
		runner.WithLogger(s.logger),
		runner.WithErrorHandler(func(error) {}),
		runner.WithDoneHandler(func(*runner.Handler) {
			s.remove(h.id)
			h.finish(ScheduleStatusCompleted)
		}),
	)

	var running sync.Mutex
	entryID, err := s.cron.AddFunc(expression, func() {
		if h.closed() || !running.TryLock() {
			return
		}
		defer running.Unlock()

		h.set(ScheduleStatusRunning, nil)
		if err := handler.Run(s.ctx, job); err != nil {
			h.set(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		h.set(ScheduleStatusIdle, nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("invalid cron expression %q", expression)).
			WithTextCode(ErrCodeInvalidSchedule)
	}
	h.entryID = int(entryID)

	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()
	return h, nil
}

// Next reports the next activation of a handle, or the zero time.
func (s *Scheduler) Next(h Handle) time.Time {
	s.mu.Lock()
	jh, ok := s.handles[h.ID()]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(rcron.EntryID(jh.entryID)).Next
}

func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts scheduling, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()
	for _, h := range handles {
		s.cron.Remove(rcron.EntryID(h.entryID))
		h.finish(ScheduleStatusStopped)
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	h, ok := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}
