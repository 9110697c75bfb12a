package submstore

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps submissions in process memory. Everything is lost when
// the process exits.
type MemStore struct {
	mu    sync.RWMutex
	subms []Submission
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// OpenMemStore never fails.
func OpenMemStore(ctx context.Context, _ Credentials) (Store, error) {
	return NewMemStore(), nil
}

func (s *MemStore) Kind() Kind { return KindMemory }

func (s *MemStore) Create(ctx context.Context, in NewSubmission) (Submission, error) {
	subm := Submission{
		ID:        newSubmID(),
		Name:      in.Name,
		Email:     in.Email,
		Answer:    in.Answer,
		Timestamp: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subms = append(s.subms, subm)
	return subm, nil
}

func (s *MemStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.subms)), nil
}

func (s *MemStore) List(ctx context.Context, limit int) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.subms)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]Submission, 0, n)
	for i := len(s.subms) - 1; i >= 0 && len(res) < n; i-- {
		res = append(res, s.subms[i])
	}
	return res, nil
}

func (s *MemStore) Health(ctx context.Context) HealthStatus {
	return Connected
}

func (s *MemStore) Close() error {
	return nil
}
