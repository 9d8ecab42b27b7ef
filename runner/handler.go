package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-errors"
)

const ErrCodeRunFailed = "RUN_FAILED"

// Handler runs a job with retries, a timeout or deadline, and run limits.
// The retention purge job is executed through a Handler.
type Handler struct {
	mu sync.Mutex

	logger        durable.Logger
	errorHandler  func(error)
	doneHandler   func(r *Handler)
	retryStrategy RetryStrategy
	sleep         SleepFunc

	EntryID        int
	runs           int
	successfulRuns int

	maxRuns     int
	maxRetries  int
	timeout     time.Duration
	deadline    time.Time
	runOnce     bool
	exitOnError bool
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		retryStrategy: NoDelayStrategy{},
		sleep:         SleepContext,
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	h.logger = durable.NormalizeLogger(h.logger)
	if h.errorHandler == nil {
		h.errorHandler = func(err error) {
			durable.WithLoggerFields(h.logger, map[string]any{"error": err.Error()}).Error("runner error")
		}
	}
	if h.doneHandler == nil {
		h.doneHandler = func(r *Handler) {
			durable.WithLoggerFields(r.logger, map[string]any{"entry_id": r.EntryID}).Debug("runner done")
		}
	}
	return h
}

// Run executes fn, retrying failures up to the configured limit. It returns
// the last error when every attempt failed, or nil when fn succeeded or the
// run was skipped because of run limits.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()

	if h.runOnce && h.successfulRuns >= 1 {
		h.mu.Unlock()
		return nil
	}

	if h.successfulRuns >= h.maxRuns && h.maxRuns > 0 {
		h.mu.Unlock()
		return nil
	}

	maxRetries := h.maxRetries
	if h.exitOnError {
		maxRetries = 0
	}
	strategy := h.retryStrategy
	sleep := h.sleep
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			break
		}
		if attempt >= maxRetries {
			break
		}

		h.handleError(errors.Wrap(err, errors.CategoryOperation,
			fmt.Sprintf("runner failed, attempt %d of %d", attempt+1, maxRetries+1),
		).WithTextCode(ErrCodeRunFailed))

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			break
		}
		if serr := sleep(ctx, decision.Delay); serr != nil {
			err = serr
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++

	if err == nil {
		h.successfulRuns++
	} else {
		err = errors.Wrap(err, errors.CategoryOperation,
			fmt.Sprintf("runner failed after %d attempts", maxRetries+1),
		).WithTextCode(ErrCodeRunFailed)
		h.handleError(err)
	}

	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.done()
	}
	return err
}

// Runs reports how many runs completed, successful or not.
func (h *Handler) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// SuccessfulRuns reports how many runs succeeded.
func (h *Handler) SuccessfulRuns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successfulRuns
}

func (h *Handler) handleError(err error) {
	h.errorHandler(err)
}

func (h *Handler) done() {
	h.doneHandler(h)
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

// RunQuery runs q through h and returns its last result.
func RunQuery[R any](ctx context.Context, h *Handler, q func(context.Context) (R, error)) (R, error) {
	var result R
	err := h.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = q(ctx)
		return err
	})
	return result, err
}
