package runner

import (
	"context"
	"errors"
	"sync"
)

// ErrShutdown is the default cause recorded when a signal fires without one.
var ErrShutdown = errors.New("host shutting down")

// ShutdownSignal reports that the host has begun shutting down.
type ShutdownSignal interface {
	Done() <-chan struct{}
	CancelCause() error
}

// Fired reports whether s has fired without blocking.
func Fired(s ShutdownSignal) bool {
	if s == nil {
		return false
	}
	done := s.Done()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

type noopSignal struct{}

func (noopSignal) Done() <-chan struct{} { return nil }
func (noopSignal) CancelCause() error    { return nil }

// NeverShutdown returns a signal that never fires.
func NeverShutdown() ShutdownSignal {
	return noopSignal{}
}

// ManualShutdown is a signal fired explicitly by the host.
type ManualShutdown struct {
	mu     sync.RWMutex
	doneCh chan struct{}
	cause  error
}

// NewManualShutdown creates a signal that fires when Cancel is called.
func NewManualShutdown() *ManualShutdown {
	return &ManualShutdown{doneCh: make(chan struct{})}
}

func (c *ManualShutdown) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.doneCh
}

func (c *ManualShutdown) CancelCause() error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cause
}

// Cancel fires the signal and records cause. Later calls are no-ops.
func (c *ManualShutdown) Cancel(cause error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.doneCh:
		return
	default:
	}
	if cause == nil {
		cause = ErrShutdown
	}
	c.cause = cause
	close(c.doneCh)
}

type contextSignal struct {
	ctx context.Context
}

func (s contextSignal) Done() <-chan struct{} { return s.ctx.Done() }

func (s contextSignal) CancelCause() error {
	if cause := context.Cause(s.ctx); cause != nil {
		return cause
	}
	return s.ctx.Err()
}

// ContextShutdown adapts a host lifetime context.
func ContextShutdown(ctx context.Context) ShutdownSignal {
	if ctx == nil {
		return NeverShutdown()
	}
	return contextSignal{ctx: ctx}
}
