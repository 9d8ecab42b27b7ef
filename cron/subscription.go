package cron

import "sync"

// ScheduleStatus is the lifecycle state of a scheduled job.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

// Handle controls one recurring job.
type Handle interface {
	ID() int64
	Status() ScheduleStatus
	// Err is the error of the last failed run, cleared by the next success.
	Err() error
	Cancel()
	Done() <-chan struct{}
}

type jobHandle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	done      chan struct{}
	once      sync.Once

	mu     sync.RWMutex
	status ScheduleStatus
	err    error
}

func (h *jobHandle) ID() int64 { return h.id }

func (h *jobHandle) Status() ScheduleStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *jobHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *jobHandle) Done() <-chan struct{} { return h.done }

func (h *jobHandle) Cancel() {
	h.scheduler.remove(h.id)
	h.finish(ScheduleStatusCanceled)
}

func (h *jobHandle) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// set records a run outcome unless the handle already finished.
func (h *jobHandle) set(status ScheduleStatus, err error) {
	if h.closed() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.err = err
}

func (h *jobHandle) finish(status ScheduleStatus) {
	h.once.Do(func() {
		h.mu.Lock()
		h.status = status
		h.mu.Unlock()
		close(h.done)
	})
}
