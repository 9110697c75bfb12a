package selector

import (
	"context"
	"time"

	"github.com/programme-lv/anytime/submstore"
)

// Watch periodically re-validates the active backend until ctx is done.
// The fallback chain is re-run when the active backend is unreachable or
// when it is a fallback for a higher priority candidate. A new handle is
// swapped in atomically, so requests see either the old or the new one.
//
// Submissions held by a replaced in-memory store are not migrated.
func (s *Selector) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Revalidate(ctx)
		}
	}
}

// Revalidate performs one watch step and reports whether the active
// handle was replaced.
func (s *Selector) Revalidate(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.active.Load()
	if current == nil {
		return false
	}

	status := current.CheckHealth(ctx)
	order, _ := s.Plan()
	isFallback := len(order) > 0 && order[0] != current.Kind()
	if status != submstore.Unreachable && !isFallback {
		return false
	}

	s.log.Info("re-running storage selection",
		"active", current.Kind(), "health", status, "fallback", isFallback)
	next, err := s.run(ctx)
	if err != nil {
		s.state.Store(StateActive)
		s.log.Error("storage re-selection failed, keeping current backend",
			"backend", current.Kind(), "error", err)
		return false
	}
	if next.Kind() == current.Kind() && status != submstore.Unreachable {
		next.store.Close()
		s.state.Store(StateActive)
		return false
	}

	s.publish(next)
	s.log.Warn("storage backend replaced", "old", current.Kind(), "new", next.Kind())
	if err := current.store.Close(); err != nil {
		s.log.Warn("failed to close replaced storage backend", "backend", current.Kind(), "error", err)
	}
	return true
}
