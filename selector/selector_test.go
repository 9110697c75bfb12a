package selector_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/anytime/selector"
	"github.com/programme-lv/anytime/submstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	*submstore.MemStore
	kind   submstore.Kind
	health atomic.Value
	closed atomic.Bool
}

func newFakeStore(kind submstore.Kind) *fakeStore {
	s := &fakeStore{MemStore: submstore.NewMemStore(), kind: kind}
	s.health.Store(submstore.Connected)
	return s
}

func (s *fakeStore) Kind() submstore.Kind { return s.kind }

func (s *fakeStore) Health(ctx context.Context) submstore.HealthStatus {
	return s.health.Load().(submstore.HealthStatus)
}

func (s *fakeStore) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeBackend describes how a fake descriptor behaves when opened.
type fakeBackend struct {
	mu         sync.Mutex
	configured bool
	openErr    error
	opens      int
	last       *fakeStore
}

func (b *fakeBackend) descriptor(kind submstore.Kind) submstore.Descriptor {
	return submstore.Descriptor{
		Kind:       kind,
		Required:   []string{string(kind) + "_KEY"},
		Configured: func(submstore.Credentials) bool { return b.configured },
		Open: func(ctx context.Context, _ submstore.Credentials) (submstore.Store, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.opens++
			if b.openErr != nil {
				return nil, &submstore.InitError{Backend: kind, Reason: b.openErr, Err: errors.New("simulated")}
			}
			b.last = newFakeStore(kind)
			return b.last, nil
		},
	}
}

func (b *fakeBackend) setOpenErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type fakeBackends map[submstore.Kind]*fakeBackend

func newFakeBackends(configured ...submstore.Kind) fakeBackends {
	fb := fakeBackends{}
	for _, k := range submstore.DefaultOrder {
		fb[k] = &fakeBackend{}
	}
	for _, k := range configured {
		fb[k].configured = true
	}
	return fb
}

func (fb fakeBackends) registry() *submstore.Registry {
	var descs []submstore.Descriptor
	for k, b := range fb {
		descs = append(descs, b.descriptor(k))
	}
	return submstore.NewRegistry(descs...)
}

func newSelector(preferred string, fb fakeBackends) *selector.Selector {
	return selector.New(selector.Config{
		Preferred:   preferred,
		Registry:    fb.registry(),
		Credentials: submstore.Credentials{ProbeTimeout: time.Second},
	})
}

func TestSelect_DefaultPriority(t *testing.T) {
	for _, preferred := range []string{"", "mongodb", "postgres"} {
		t.Run("preferred="+preferred, func(t *testing.T) {
			fb := newFakeBackends(submstore.KindSupabase, submstore.KindSheets)
			sel := newSelector(preferred, fb)

			h, err := sel.Select(context.Background())
			require.NoError(t, err)
			assert.Equal(t, submstore.KindSupabase, h.Kind())
			assert.Equal(t, selector.StateActive, sel.State())
			assert.Zero(t, fb[submstore.KindSheets].openCount())
		})
	}
}

func TestSelect_PreferredFirst(t *testing.T) {
	fb := newFakeBackends(submstore.KindSupabase, submstore.KindSheets)
	sel := newSelector("sheets", fb)

	h, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submstore.KindSheets, h.Kind())
	assert.Zero(t, fb[submstore.KindSupabase].openCount())
}

func TestSelect_FallbackWhenPreferredFails(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSheets, submstore.KindPostgres)
	fb[submstore.KindSheets].openErr = submstore.ErrUnreachable
	sel := newSelector("sheets", fb)

	h, err := sel.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, submstore.KindPostgres, h.Kind())

	report := sel.Report(ctx)
	assert.Equal(t, submstore.KindPostgres, report.StorageMethod)
	assert.Equal(t, selector.StatusHealthy, report.Status)

	var sheetsAttempt *selector.AttemptReport
	for i, a := range report.Attempts {
		if a.Backend == submstore.KindSheets {
			sheetsAttempt = &report.Attempts[i]
		}
	}
	require.NotNil(t, sheetsAttempt)
	assert.Equal(t, selector.OutcomeFailed, sheetsAttempt.Outcome)
	assert.Equal(t, "unreachable", sheetsAttempt.Reason)
}

func TestSelect_AllFailFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSupabase, submstore.KindSheets, submstore.KindPostgres)
	fb[submstore.KindSupabase].openErr = submstore.ErrAuthRejected
	fb[submstore.KindSheets].openErr = submstore.ErrUnreachable
	fb[submstore.KindPostgres].openErr = submstore.ErrMissingCredential
	sel := newSelector("supabase", fb)

	h, err := sel.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, submstore.KindMemory, h.Kind())

	var reasons []string
	for _, a := range h.Attempts() {
		reasons = append(reasons, a.ReasonCode())
	}
	assert.Equal(t, []string{"auth_rejected", "unreachable", "missing_credential", ""}, reasons)
}

func TestSelect_NothingConfiguredUsesMemory(t *testing.T) {
	ctx := context.Background()
	sel := selector.New(selector.Config{})

	h, err := sel.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, submstore.KindMemory, h.Kind())

	skipped := 0
	for _, a := range h.Attempts() {
		if a.Outcome == selector.OutcomeSkipped {
			skipped++
		}
	}
	assert.Equal(t, 3, skipped)

	report := sel.Report(ctx)
	assert.Equal(t, selector.StatusHealthy, report.Status)
	assert.Equal(t, submstore.Connected, report.Database)
	assert.Equal(t, submstore.KindMemory, report.StorageMethod)
}

func TestSelect_ExplicitMemory(t *testing.T) {
	fb := newFakeBackends(submstore.KindSupabase)
	sel := newSelector("memory", fb)

	h, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submstore.KindMemory, h.Kind())
	assert.Zero(t, fb[submstore.KindSupabase].openCount())
}

func TestSelect_Exhausted(t *testing.T) {
	fb := newFakeBackends()
	fb[submstore.KindMemory].openErr = submstore.ErrMissingCredential
	sel := newSelector("", fb)

	h, err := sel.Select(context.Background())
	require.ErrorIs(t, err, selector.ErrExhausted)
	assert.Nil(t, h)
	assert.Equal(t, selector.StateExhausted, sel.State())
	assert.Nil(t, sel.Active())
}

func TestSelect_PinnedForProcessLifetime(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSupabase)
	sel := newSelector("", fb)

	first, err := sel.Select(ctx)
	require.NoError(t, err)

	fb[submstore.KindSupabase].last.health.Store(submstore.Unreachable)
	second, err := sel.Select(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fb[submstore.KindSupabase].openCount())
	assert.Equal(t, selector.StatusDegraded, sel.Report(ctx).Status)
}

func TestSelect_ProbeTimeoutMovesOn(t *testing.T) {
	fb := newFakeBackends(submstore.KindPostgres)
	reg := fb.registry()
	slow := submstore.Descriptor{
		Kind:       submstore.KindSupabase,
		Configured: func(submstore.Credentials) bool { return true },
		Open: func(ctx context.Context, _ submstore.Credentials) (submstore.Store, error) {
			<-ctx.Done()
			return nil, &submstore.InitError{Backend: submstore.KindSupabase, Reason: submstore.ErrUnreachable, Err: ctx.Err()}
		},
	}
	descs := []submstore.Descriptor{slow}
	for _, k := range []submstore.Kind{submstore.KindSheets, submstore.KindPostgres, submstore.KindMemory} {
		d, _ := reg.Lookup(k)
		descs = append(descs, d)
	}
	sel := selector.New(selector.Config{
		Registry:    submstore.NewRegistry(descs...),
		Credentials: submstore.Credentials{ProbeTimeout: 50 * time.Millisecond},
	})

	start := time.Now()
	h, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submstore.KindPostgres, h.Kind())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRevalidate_KeepsHealthyBackend(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSupabase)
	sel := newSelector("", fb)
	h, err := sel.Select(ctx)
	require.NoError(t, err)

	assert.False(t, sel.Revalidate(ctx))
	assert.Same(t, h, sel.Active())
	assert.Equal(t, 1, fb[submstore.KindSupabase].openCount())
}

func TestRevalidate_ReplacesUnreachableBackend(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSupabase, submstore.KindSheets)
	sel := newSelector("", fb)
	old, err := sel.Select(ctx)
	require.NoError(t, err)
	oldStore := fb[submstore.KindSupabase].last

	oldStore.health.Store(submstore.Unreachable)
	fb[submstore.KindSupabase].setOpenErr(submstore.ErrUnreachable)

	require.True(t, sel.Revalidate(ctx))
	assert.Equal(t, submstore.KindSheets, sel.Active().Kind())
	assert.NotSame(t, old, sel.Active())
	assert.True(t, oldStore.closed.Load())
	assert.Equal(t, selector.StateActive, sel.State())
}

func TestRevalidate_PromotesRecoveredBackend(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackends(submstore.KindSupabase)
	fb[submstore.KindSupabase].openErr = submstore.ErrUnreachable
	sel := newSelector("", fb)
	h, err := sel.Select(ctx)
	require.NoError(t, err)
	require.Equal(t, submstore.KindMemory, h.Kind())

	assert.False(t, sel.Revalidate(ctx), "supabase is still down")
	assert.Equal(t, submstore.KindMemory, sel.Active().Kind())

	fb[submstore.KindSupabase].setOpenErr(nil)
	assert.True(t, sel.Revalidate(ctx))
	assert.Equal(t, submstore.KindSupabase, sel.Active().Kind())
}

func TestWatch_StopsWithContext(t *testing.T) {
	fb := newFakeBackends()
	sel := newSelector("", fb)
	_, err := sel.Select(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sel.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestReport_BeforeSelection(t *testing.T) {
	sel := selector.New(selector.Config{})
	report := sel.Report(context.Background())
	assert.Equal(t, selector.StatusDegraded, report.Status)
	assert.Equal(t, submstore.Unreachable, report.Database)
	assert.Equal(t, selector.StateUnselected, sel.State())
}
