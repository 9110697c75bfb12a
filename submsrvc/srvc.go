package submsrvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/programme-lv/anytime/metrics"
	"github.com/programme-lv/anytime/selector"
	"github.com/programme-lv/anytime/submstore"
)

// SubmSrvc accepts contest submissions and reads them back from whichever
// storage backend the selector has pinned.
type SubmSrvc struct {
	logger *slog.Logger
	sel    *selector.Selector
}

func NewSubmSrvc(sel *selector.Selector, logger *slog.Logger) *SubmSrvc {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmSrvc{
		logger: logger.With("module", "subm"),
		sel:    sel,
	}
}

// handle returns the active backend. Every request resolves it exactly
// once, so a request never spans two backends.
func (s *SubmSrvc) handle() (*selector.Handle, error) {
	h := s.sel.Active()
	if h == nil {
		return nil, ErrStorageUnavailable().SetDebug(selector.ErrExhausted)
	}
	return h, nil
}

// StorageMethod names the active backend, empty before selection.
func (s *SubmSrvc) StorageMethod() submstore.Kind {
	if h := s.sel.Active(); h != nil {
		return h.Kind()
	}
	return ""
}

// Health reports the health of the active backend.
func (s *SubmSrvc) Health(ctx context.Context) selector.Report {
	return s.sel.Report(ctx)
}

func observe(h *selector.Handle, op string, start time.Time, err error) {
	metrics.ObserveStorageOp(h.Kind().String(), op, start, err)
	if err != nil {
		h.RecordError(err)
	}
}
