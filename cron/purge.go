package cron

import (
	"context"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/runner"
	"github.com/goliatone/go-errors"
)

// RetentionPolicy selects which terminal instances the purge job deletes.
type RetentionPolicy struct {
	Schedule string
	MaxAge   time.Duration
	Statuses []durable.OrchestrationStatus
}

// PurgeScheduler periodically deletes instances older than MaxAge through an
// engine purge capability.
type PurgeScheduler struct {
	scheduler *Scheduler
	client    engine.PurgeClient
	policy    RetentionPolicy
	now       func() time.Time
	logger    durable.Logger

	mu     sync.Mutex
	handle Handle
	total  int
}

type PurgeOption func(*PurgeScheduler)

func WithPurgeClock(now func() time.Time) PurgeOption {
	return func(p *PurgeScheduler) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPurgeLogger(logger durable.Logger) PurgeOption {
	return func(p *PurgeScheduler) {
		p.logger = logger
	}
}

func NewPurgeScheduler(scheduler *Scheduler, client engine.PurgeClient, policy RetentionPolicy, opts ...PurgeOption) (*PurgeScheduler, error) {
	if scheduler == nil || client == nil {
		return nil, errors.New("purge scheduler requires a scheduler and a purge client", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}
	if policy.MaxAge <= 0 {
		return nil, errors.New("retention max age must be positive", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}
	for _, status := range policy.Statuses {
		if !status.IsTerminal() {
			return nil, errors.New("retention can only purge terminal statuses", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidSchedule).
				WithMetadata(map[string]any{"status": status.String()})
		}
	}

	p := &PurgeScheduler{
		scheduler: scheduler,
		client:    client,
		policy:    policy,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = durable.NormalizeLogger(p.logger)
	return p, nil
}

// Filter builds the purge filter for the given instant.
func (p *PurgeScheduler) Filter(at time.Time) durable.PurgeInstanceFilter {
	cutoff := at.Add(-p.policy.MaxAge).UTC()
	statuses := append([]durable.OrchestrationStatus(nil), p.policy.Statuses...)
	return durable.PurgeInstanceFilter{
		CreatedTimeTo: &cutoff,
		RuntimeStatus: statuses,
	}
}

// PurgeOnce runs a single purge pass.
func (p *PurgeScheduler) PurgeOnce(ctx context.Context) (*durable.PurgeResult, error) {
	filter := p.Filter(p.now())
	result, err := p.client.PurgeInstances(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "retention purge failed").
			WithTextCode(durable.ErrCodeEngineFailure)
	}

	p.mu.Lock()
	p.total += result.DeletedInstanceCount
	p.mu.Unlock()

	durable.WithLoggerFields(p.logger, map[string]any{
		"deleted": result.DeletedInstanceCount,
		"cutoff":  filter.CreatedTimeTo.Format(time.RFC3339),
	}).Info("retention purge completed")
	return result, nil
}

// Start registers the purge job. Calling it twice is a no-op.
func (p *PurgeScheduler) Start() (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		return p.handle, nil
	}
	handle, err := p.scheduler.Schedule(p.policy.Schedule, purgeJobOptions(), func(ctx context.Context) error {
		_, err := p.PurgeOnce(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.handle = handle
	return handle, nil
}

// Deleted reports the instances removed since the scheduler was created.
func (p *PurgeScheduler) Deleted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// purgeJobOptions retries a failed purge twice, one and then two seconds
// later.
func purgeJobOptions() JobOptions {
	return JobOptions{
		MaxRetries: 2,
		Backoff: runner.ExponentialBackoffStrategy{
			Base:   time.Second,
			Factor: 2,
			Max:    30 * time.Second,
		},
	}
}
