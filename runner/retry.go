package runner

import (
	"context"
	"math"
	"time"
)

// RetryStrategy encapsulates the decision and delay between retries.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next retry attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the outcome of asking a strategy about one failure.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is implemented by strategies that can stop retrying early.
type RetryDecider interface {
	DecideRetry(attempt int, err error) RetryDecision
}

// DecideRetry asks strategy for a decision, falling back to SleepDuration
// with ShouldRetry set when the strategy is not a RetryDecider.
func DecideRetry(strategy RetryStrategy, attempt int, err error) RetryDecision {
	if strategy == nil {
		return RetryDecision{ShouldRetry: true}
	}
	if decider, ok := strategy.(RetryDecider); ok {
		return decider.DecideRetry(attempt, err)
	}
	return RetryDecision{
		ShouldRetry: true,
		Delay:       strategy.SleepDuration(attempt, err),
	}
}

// NoDelayStrategy is a simple retry strategy that performs all retries
// immediately without waiting.
type NoDelayStrategy struct{}

// SleepDuration always returns zero, causing immediate retries.
func (n NoDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return 0
}

// ExponentialBackoffStrategy implements a backoff strategy.
// Usage example:
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	// Base is the starting delay (e.g., 100ms)
	Base time.Duration
	// Factor is multiplied each iteration (e.g., 2 => 100ms, 200ms, 400ms, ...)
	Factor float64
	// Max is the maximum delay allowed (caps the exponential growth)
	Max time.Duration
}

// SleepDuration implements an exponential backoff with a cap at Max.
func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(e.Base) * math.Pow(e.Factor, float64(attempt))
	if time.Duration(delay) > e.Max && e.Max > 0 {
		return e.Max
	}
	return time.Duration(delay)
}

// StepBackoffStrategy grows the delay by Step once every Every attempts,
// starting at Initial and capped at Max.
//
//	delay(n) = min(Max, Initial + Step*(n/Every))
type StepBackoffStrategy struct {
	Initial time.Duration
	Step    time.Duration
	Every   int
	Max     time.Duration
}

// WaitForStartBackoff is the poll schedule used while waiting for an
// instance to leave the pending state: 1s for the first ten polls, one more
// second every ten polls after that, never above 10s.
func WaitForStartBackoff() StepBackoffStrategy {
	return StepBackoffStrategy{
		Initial: time.Second,
		Step:    time.Second,
		Every:   10,
		Max:     10 * time.Second,
	}
}

func (s StepBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	every := s.Every
	if every <= 0 {
		every = 1
	}
	delay := s.Initial + s.Step*time.Duration(attempt/every)
	if s.Max > 0 && delay > s.Max {
		return s.Max
	}
	return delay
}

// SleepFunc waits for d or until ctx is done, returning ctx's error in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll calls probe until it reports done, sleeping between calls according
// to strategy. It returns the number of probes made. A probe error or a
// cancelled ctx ends the loop.
func Poll(ctx context.Context, strategy RetryStrategy, sleep SleepFunc, probe func(context.Context) (bool, error)) (int, error) {
	if strategy == nil {
		strategy = NoDelayStrategy{}
	}
	if sleep == nil {
		sleep = SleepContext
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}
		done, err := probe(ctx)
		if err != nil {
			return attempt + 1, err
		}
		if done {
			return attempt + 1, nil
		}
		if err := sleep(ctx, strategy.SleepDuration(attempt, nil)); err != nil {
			return attempt + 1, err
		}
	}
}
