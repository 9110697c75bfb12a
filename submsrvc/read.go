package submsrvc

import (
	"context"
	"time"

	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submstore"
)

// MaxListLimit caps ListSubms. A limit of zero or less means the maximum.
const MaxListLimit = 1000

type SubmCount struct {
	Total         int64
	StorageMethod submstore.Kind
}

func (s *SubmSrvc) CountSubms(ctx context.Context) (*SubmCount, error) {
	h, err := s.handle()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	n, err := h.Store().Count(ctx)
	observe(h, "count", start, err)
	if err != nil {
		logger.FromContext(ctx).Error("failed to count submissions",
			"storage_backend", h.Kind(), "error", err)
		return nil, storageErr(err)
	}
	return &SubmCount{Total: n, StorageMethod: h.Kind()}, nil
}

type SubmList struct {
	Subms         []submstore.Submission
	StorageMethod submstore.Kind
}

// ListSubms returns the newest submissions first.
func (s *SubmSrvc) ListSubms(ctx context.Context, limit int) (*SubmList, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	h, err := s.handle()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	subms, err := h.Store().List(ctx, limit)
	observe(h, "list", start, err)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list submissions",
			"storage_backend", h.Kind(), "error", err)
		return nil, storageErr(err)
	}
	if subms == nil {
		subms = []submstore.Submission{}
	}
	return &SubmList{Subms: subms, StorageMethod: h.Kind()}, nil
}
