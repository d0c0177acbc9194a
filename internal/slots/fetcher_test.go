package slots

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heydoc-scheduler/internal/availability"
)

type stubSource struct {
	mu     sync.Mutex
	slots  map[string][]string
	errs   map[string]error
	gates  map[string]chan struct{}
	calls  atomic.Int32
	called chan string
}

func (s *stubSource) AvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	s.calls.Add(1)
	if s.called != nil {
		s.called <- date
	}
	s.mu.Lock()
	gate := s.gates[date]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[date]; err != nil {
		return nil, err
	}
	return s.slots[date], nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveSlotFetch(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestSelectLoadsSlots(t *testing.T) {
	src := &stubSource{slots: map[string][]string{"2025-03-10": {"09:00", "09:30"}}}
	f := NewFetcher(src, 7)

	assert.Equal(t, Idle, f.Snapshot().Phase)
	assert.False(t, f.CanSubmit())

	snap, err := f.Select(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, Loaded, snap.Phase)
	assert.Equal(t, []string{"09:00", "09:30"}, snap.Slots)
	assert.Equal(t, int64(7), snap.DoctorID)
	assert.True(t, snap.CanSubmit())
	assert.True(t, snap.Has("09:30"))
	assert.False(t, snap.Has("10:00"))
}

func TestSelectSameDateIsNoop(t *testing.T) {
	src := &stubSource{slots: map[string][]string{"2025-03-10": {"09:00"}}}
	f := NewFetcher(src, 7)
	ctx := context.Background()

	_, err := f.Select(ctx, "2025-03-10")
	require.NoError(t, err)
	_, err = f.Select(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	_, err = f.Select(ctx, "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestEmptySlotsMeansFullyBooked(t *testing.T) {
	src := &stubSource{slots: map[string][]string{}}
	f := NewFetcher(src, 7)

	snap, err := f.Select(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, Loaded, snap.Phase)
	assert.NotNil(t, snap.Slots)
	assert.Empty(t, snap.Slots)
	assert.False(t, snap.CanSubmit())
}

func TestFetchFailureLoadsEmptyWithError(t *testing.T) {
	obs := &recordingObserver{}
	src := &stubSource{errs: map[string]error{"2025-03-10": errors.New("boom")}}
	f := NewFetcher(src, 7, WithObserver(obs))

	snap, err := f.Select(context.Background(), "2025-03-10")
	require.Error(t, err)
	assert.Equal(t, Loaded, snap.Phase)
	assert.Empty(t, snap.Slots)
	assert.Contains(t, snap.Error, "boom")
	assert.False(t, snap.CanSubmit())
	assert.Equal(t, []string{"error"}, obs.outcomes)
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	obs := &recordingObserver{}
	src := &stubSource{
		slots: map[string][]string{
			"2025-03-10": {"09:00", "09:30"},
			"2025-03-11": {"14:00"},
		},
		gates:  map[string]chan struct{}{"2025-03-10": make(chan struct{})},
		called: make(chan string, 4),
	}
	f := NewFetcher(src, 7, WithObserver(obs))
	ctx := context.Background()

	type result struct {
		snap Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := f.Select(ctx, "2025-03-10")
		first <- result{snap, err}
	}()
	require.Equal(t, "2025-03-10", <-src.called)
	assert.Equal(t, Loading, f.Snapshot().Phase)

	snap, err := f.Select(ctx, "2025-03-11")
	require.NoError(t, err)
	<-src.called
	assert.Equal(t, []string{"14:00"}, snap.Slots)

	close(src.gates["2025-03-10"])
	res := <-first
	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.Equal(t, "2025-03-11", res.snap.Date)

	current := f.Snapshot()
	assert.Equal(t, "2025-03-11", current.Date)
	assert.Equal(t, []string{"14:00"}, current.Slots)
	assert.Equal(t, []string{"applied", "stale"}, obs.outcomes)
}

func TestResetDiscardsInFlight(t *testing.T) {
	src := &stubSource{
		slots:  map[string][]string{"2025-03-10": {"09:00"}},
		gates:  map[string]chan struct{}{"2025-03-10": make(chan struct{})},
		called: make(chan string, 1),
	}
	f := NewFetcher(src, 7)

	done := make(chan error, 1)
	go func() {
		_, err := f.Select(context.Background(), "2025-03-10")
		done <- err
	}()
	<-src.called
	f.Reset()
	close(src.gates["2025-03-10"])

	assert.ErrorIs(t, <-done, ErrSuperseded)
	snap := f.Snapshot()
	assert.Equal(t, Idle, snap.Phase)
	assert.Empty(t, snap.Date)
	assert.Nil(t, snap.Slots)
}

func TestSelectRejectsInvalidDate(t *testing.T) {
	src := &stubSource{}
	f := NewFetcher(src, 7)

	_, err := f.Select(context.Background(), "March 10")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, int32(0), src.calls.Load())
}

type fakeView struct {
	states  map[string]availability.State
	batches [][]string
	err     error
}

func (v *fakeView) Lookup(_ context.Context, _ int64, date string) availability.State {
	return v.states[date]
}

func (v *fakeView) QueryBatch(_ context.Context, _ int64, dates []string) error {
	v.batches = append(v.batches, dates)
	return v.err
}

func TestSelectRespectsGate(t *testing.T) {
	view := &fakeView{states: map[string]availability.State{"2025-03-11": availability.Unavailable}}
	cal := NewCalendar(DateRule{ExcludeWeekends: true, HorizonDays: 30, Location: time.UTC}, view,
		WithClock(func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }))

	src := &stubSource{slots: map[string][]string{"2025-03-10": {"09:00"}}}
	f := NewFetcher(src, 7, WithGate(cal))
	ctx := context.Background()

	_, err := f.Select(ctx, "2025-03-15") // Saturday
	assert.ErrorIs(t, err, ErrNotSelectable)
	_, err = f.Select(ctx, "2025-03-11")
	assert.ErrorIs(t, err, ErrNotSelectable)
	_, err = f.Select(ctx, "2025-05-01")
	assert.ErrorIs(t, err, ErrNotSelectable)
	assert.Equal(t, int32(0), src.calls.Load())

	snap, err := f.Select(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, snap.CanSubmit())
}

func TestRegistryReusesFetchers(t *testing.T) {
	reg := NewRegistry(&stubSource{})
	a := reg.For(7)
	assert.Same(t, a, reg.For(7))
	assert.NotSame(t, a, reg.For(8))

	got, ok := reg.Lookup(7)
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = reg.Lookup(99)
	assert.False(t, ok)
}

func TestRegistryResetAllClearsSelections(t *testing.T) {
	src := &stubSource{slots: map[string][]string{"2025-03-10": {"09:00"}}}
	reg := NewRegistry(src)
	ctx := context.Background()
	_, err := reg.For(7).Select(ctx, "2025-03-10")
	require.NoError(t, err)
	_, err = reg.For(8).Select(ctx, "2025-03-10")
	require.NoError(t, err)

	reg.ResetAll()

	for _, id := range []int64{7, 8} {
		snap, ok := reg.Selection(id)
		require.True(t, ok)
		assert.Equal(t, Idle, snap.Phase)
		assert.Empty(t, snap.Date)
		assert.Empty(t, snap.Slots)
	}
}
