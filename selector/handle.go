package selector

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/programme-lv/anytime/submstore"
)

// Attempt records what happened to one candidate during selection.
type Attempt struct {
	Backend  submstore.Kind
	Outcome  string // "active", "failed" or "skipped"
	Reason   error  // submstore init reason, nil when active
	Err      error
	Duration time.Duration
}

const (
	OutcomeActive  = "active"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// ReasonCode is a stable name for the attempt's failure reason.
func (a Attempt) ReasonCode() string {
	switch {
	case a.Reason == nil:
		return ""
	case errors.Is(a.Reason, submstore.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(a.Reason, submstore.ErrAuthRejected):
		return "auth_rejected"
	default:
		return "unreachable"
	}
}

// Handle is the active backend. It is created once per selection and
// never mutated afterwards except for the observed health and last error.
type Handle struct {
	store      submstore.Store
	attempts   []Attempt
	selectedAt time.Time

	lastHealth atomic.Value // submstore.HealthStatus
	lastErr    atomic.Pointer[error]
}

func newHandle(store submstore.Store, attempts []Attempt, at time.Time) *Handle {
	h := &Handle{store: store, attempts: attempts, selectedAt: at}
	h.lastHealth.Store(submstore.Connected)
	return h
}

func (h *Handle) Store() submstore.Store { return h.store }

func (h *Handle) Kind() submstore.Kind { return h.store.Kind() }

func (h *Handle) SelectedAt() time.Time { return h.selectedAt }

// Attempts returns the probes that led to this handle, in order.
func (h *Handle) Attempts() []Attempt {
	res := make([]Attempt, len(h.attempts))
	copy(res, h.attempts)
	return res
}

// CheckHealth runs the backend's health check and remembers the result.
func (h *Handle) CheckHealth(ctx context.Context) submstore.HealthStatus {
	status := h.store.Health(ctx)
	h.lastHealth.Store(status)
	return status
}

func (h *Handle) LastHealth() submstore.HealthStatus {
	return h.lastHealth.Load().(submstore.HealthStatus)
}

// RecordError remembers the most recent failed storage operation so that
// it can be shown by the health report.
func (h *Handle) RecordError(err error) {
	if err == nil {
		return
	}
	h.lastErr.Store(&err)
}

func (h *Handle) LastError() error {
	if p := h.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}
