// Package selector picks the storage backend that serves submissions.
//
// At startup the Selector probes candidates in priority order and pins the
// first one that opens successfully. The in-memory backend is always the
// last candidate, so selection only fails when even that is unavailable.
// The active Handle is published through an atomic pointer and is replaced
// only by Watch, which is opt-in.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/programme-lv/anytime/metrics"
	"github.com/programme-lv/anytime/submstore"
)

type State string

const (
	StateUnselected State = "unselected"
	StateProbing    State = "probing"
	StateActive     State = "active"
	StateExhausted  State = "exhausted"
)

// ErrExhausted means no candidate, not even the in-memory store, opened.
var ErrExhausted = errors.New("no storage backend could be initialized")

type Config struct {
	// Preferred is the raw STORAGE_BACKEND value, may be empty.
	Preferred   string
	Credentials submstore.Credentials
	Registry    *submstore.Registry
	Logger      *slog.Logger
}

type Selector struct {
	preferred string
	creds     submstore.Credentials
	reg       *submstore.Registry
	log       *slog.Logger
	now       func() time.Time

	mu        sync.Mutex // serializes selection runs
	state     atomic.Value
	candidate atomic.Value // submstore.Kind being probed
	active    atomic.Pointer[Handle]
}

func New(cfg Config) *Selector {
	if cfg.Registry == nil {
		cfg.Registry = submstore.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Selector{
		preferred: cfg.Preferred,
		creds:     cfg.Credentials,
		reg:       cfg.Registry,
		log:       cfg.Logger,
		now:       time.Now,
	}
	s.state.Store(StateUnselected)
	s.candidate.Store(submstore.Kind(""))
	return s
}

func (s *Selector) State() State {
	return s.state.Load().(State)
}

// Probing returns the candidate currently being probed, if any.
func (s *Selector) Probing() (submstore.Kind, bool) {
	k := s.candidate.Load().(submstore.Kind)
	return k, s.State() == StateProbing && k != ""
}

// Active returns the pinned handle or nil before a successful Select.
func (s *Selector) Active() *Handle {
	return s.active.Load()
}

// Plan returns the candidates to probe in order and the kinds that were
// skipped for lack of credentials.
func (s *Selector) Plan() ([]submstore.Kind, []Attempt) {
	var order []submstore.Kind
	var skipped []Attempt
	seen := make(map[submstore.Kind]bool)

	consider := func(k submstore.Kind) {
		if seen[k] {
			return
		}
		seen[k] = true
		d, ok := s.reg.Lookup(k)
		if !ok {
			return
		}
		if k != submstore.KindMemory && !d.IsConfigured(s.creds) {
			skipped = append(skipped, Attempt{
				Backend: k,
				Outcome: OutcomeSkipped,
				Reason:  submstore.ErrMissingCredential,
				Err:     fmt.Errorf("requires %v", d.Required),
			})
			return
		}
		order = append(order, k)
	}

	if s.preferred != "" {
		if k, err := submstore.ParseKind(s.preferred); err != nil {
			s.log.Warn("ignoring STORAGE_BACKEND", "value", s.preferred, "error", err)
		} else if k == submstore.KindMemory {
			return []submstore.Kind{submstore.KindMemory}, nil
		} else {
			consider(k)
		}
	}
	for _, k := range submstore.DefaultOrder {
		if k != submstore.KindMemory {
			consider(k)
		}
	}
	if !seen[submstore.KindMemory] {
		order = append(order, submstore.KindMemory)
	}
	return order, skipped
}

// Select runs the fallback chain once and pins the winner. Later calls
// return the pinned handle without probing again.
func (s *Selector) Select(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.active.Load(); h != nil {
		return h, nil
	}
	h, err := s.run(ctx)
	if err != nil {
		s.state.Store(StateExhausted)
		return nil, err
	}
	s.publish(h)
	return h, nil
}

func (s *Selector) run(ctx context.Context) (*Handle, error) {
	order, attempts := s.Plan()
	for _, a := range attempts {
		s.log.Info("storage backend not configured", "backend", a.Backend, "error", a.Err)
		metrics.SelectionAttemptsTotal.WithLabelValues(a.Backend.String(), OutcomeSkipped).Inc()
	}

	var errs []error
	for _, k := range order {
		s.state.Store(StateProbing)
		s.candidate.Store(k)

		start := s.now()
		store, err := s.probe(ctx, k)
		took := time.Since(start)
		if err != nil {
			reason := submstore.InitReason(err)
			attempts = append(attempts, Attempt{
				Backend:  k,
				Outcome:  OutcomeFailed,
				Reason:   reason,
				Err:      err,
				Duration: took,
			})
			errs = append(errs, err)
			s.log.Warn("storage backend initialization failed",
				"backend", k, "reason", reason, "error", err, "took", took)
			metrics.SelectionAttemptsTotal.WithLabelValues(k.String(), OutcomeFailed).Inc()
			continue
		}

		attempts = append(attempts, Attempt{Backend: k, Outcome: OutcomeActive, Duration: took})
		metrics.SelectionAttemptsTotal.WithLabelValues(k.String(), OutcomeActive).Inc()
		s.candidate.Store(submstore.Kind(""))
		if k == submstore.KindMemory && len(order) > 1 {
			s.log.Warn("all storage backends failed, using in-memory storage")
		}
		s.log.Info("storage backend initialized", "backend", k, "took", took)
		return newHandle(store, attempts, s.now()), nil
	}
	s.candidate.Store(submstore.Kind(""))
	return nil, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

func (s *Selector) probe(ctx context.Context, k submstore.Kind) (submstore.Store, error) {
	timeout := s.creds.ProbeTimeout
	if timeout <= 0 {
		timeout = submstore.ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.reg.Open(probeCtx, k, s.creds)
}

func (s *Selector) publish(h *Handle) {
	s.active.Store(h)
	s.state.Store(StateActive)
	known := make([]string, 0, len(submstore.DefaultOrder))
	for _, k := range submstore.DefaultOrder {
		known = append(known, k.String())
	}
	metrics.SetActiveBackend(h.Kind().String(), known)
}

// Close releases the active backend.
func (s *Selector) Close() error {
	if h := s.active.Load(); h != nil {
		return h.store.Close()
	}
	return nil
}
