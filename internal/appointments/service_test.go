package appointments

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
	"github.com/wolfman30/heydoc-scheduler/internal/policy"
)

type fakeBackend struct {
	list        []heydoc.Appointment
	listErr     error
	single      *heydoc.Appointment
	getErr      error
	cancelErr   error
	cancelled   []int64
	beforeApply func()
}

func (f *fakeBackend) ListAppointments(context.Context) ([]heydoc.Appointment, error) {
	if f.beforeApply != nil {
		f.beforeApply()
	}
	return f.list, f.listErr
}

func (f *fakeBackend) GetAppointment(_ context.Context, id int64) (*heydoc.Appointment, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.single, nil
}

func (f *fakeBackend) CancelAppointment(_ context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

type cancelRecorder struct{ errs []error }

func (c *cancelRecorder) ObserveCancellation(err error) { c.errs = append(c.errs, err) }

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestService(backend *fakeBackend) (*Service, *notify.Feed, *cancelRecorder) {
	feed := notify.NewFeed(10)
	rec := &cancelRecorder{}
	svc := NewService(backend, NewStore(), policy.NewCancellation(24*time.Hour, time.UTC), feed, nil,
		WithCancelObserver(rec),
		WithClock(func() time.Time { return fixedNow }),
	)
	return svc, feed, rec
}

func TestRefreshReplacesCollection(t *testing.T) {
	backend := &fakeBackend{list: []heydoc.Appointment{appt(1, heydoc.StatusScheduled, "2025-03-12"), appt(2, heydoc.StatusCompleted, "2025-03-01")}}
	svc, _, _ := newTestService(backend)
	svc.Store().Replace([]heydoc.Appointment{appt(9, heydoc.StatusScheduled, "2025-03-20")})

	list, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(list))
	_, ok := svc.Store().Get(9)
	assert.False(t, ok)
}

func TestRefreshFailureKeepsCollection(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("unreachable")}
	svc, feed, _ := newTestService(backend)
	svc.Store().Replace([]heydoc.Appointment{appt(9, heydoc.StatusScheduled, "2025-03-20")})

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int64{9}, ids(svc.Store().All()))
	assert.Empty(t, feed.Drain())
}

func TestRefreshDroppedAfterLocalMutation(t *testing.T) {
	backend := &fakeBackend{list: []heydoc.Appointment{appt(1, heydoc.StatusScheduled, "2025-03-12")}}
	svc, _, _ := newTestService(backend)
	backend.beforeApply = func() {
		svc.Store().Prepend(appt(5, heydoc.StatusScheduled, "2025-03-14"))
	}

	list, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(list))
}

func TestCancelSuccess(t *testing.T) {
	backend := &fakeBackend{}
	svc, feed, rec := newTestService(backend)
	svc.Store().Replace([]heydoc.Appointment{appt(1, heydoc.StatusConfirmed, "2025-03-12")})

	got, err := svc.Cancel(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, heydoc.StatusCancelled, got.Status)
	assert.Equal(t, []int64{1}, backend.cancelled)

	stored, _ := svc.Store().Get(1)
	assert.Equal(t, heydoc.StatusCancelled, stored.Status)

	notes := feed.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
	assert.Equal(t, notify.MsgCancelled, notes[0].Message)
	assert.Equal(t, []error{nil}, rec.errs)
}

func TestCancelBackendFailureLeavesStatus(t *testing.T) {
	backend := &fakeBackend{cancelErr: &heydoc.APIError{StatusCode: http.StatusBadRequest, Body: `{"detail":"nope"}`}}
	svc, feed, rec := newTestService(backend)
	svc.Store().Replace([]heydoc.Appointment{appt(1, heydoc.StatusScheduled, "2025-03-12")})

	_, err := svc.Cancel(context.Background(), 1)
	require.Error(t, err)
	_, isAPI := heydoc.AsAPIError(err)
	assert.True(t, isAPI)

	stored, _ := svc.Store().Get(1)
	assert.Equal(t, heydoc.StatusScheduled, stored.Status)

	notes := feed.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)
	assert.Equal(t, notify.MsgCancelFailed, notes[0].Message)
	require.Len(t, rec.errs, 1)
	assert.Error(t, rec.errs[0])
}

func TestCancelInsideWindowIsRejectedLocally(t *testing.T) {
	backend := &fakeBackend{}
	svc, feed, _ := newTestService(backend)
	// Ten hours ahead of fixedNow.
	svc.Store().Replace([]heydoc.Appointment{{ID: 1, Status: heydoc.StatusScheduled, AppointmentDate: "2025-03-10", AppointmentTime: "18:00"}})

	_, err := svc.Cancel(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Empty(t, backend.cancelled)
	notes := feed.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)
	assert.Equal(t, "Appointments can only be cancelled more than 24 hours in advance", notes[0].Message)
}

func TestCancelUnknownID(t *testing.T) {
	svc, feed, _ := newTestService(&fakeBackend{})
	_, err := svc.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, feed.Drain(), 1)
}

func TestFetchUpserts(t *testing.T) {
	fetched := appt(3, heydoc.StatusConfirmed, "2025-03-14")
	svc, _, _ := newTestService(&fakeBackend{single: &fetched})
	svc.Store().Replace([]heydoc.Appointment{appt(3, heydoc.StatusScheduled, "2025-03-14")})

	got, err := svc.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, heydoc.StatusConfirmed, got.Status)
	stored, _ := svc.Store().Get(3)
	assert.Equal(t, heydoc.StatusConfirmed, stored.Status)
}

func TestFetchNotFound(t *testing.T) {
	svc, _, _ := newTestService(&fakeBackend{getErr: &heydoc.APIError{StatusCode: http.StatusNotFound}})
	_, err := svc.Fetch(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceTodayAndCanCancel(t *testing.T) {
	svc, _, _ := newTestService(&fakeBackend{})
	assert.Equal(t, "2025-03-10", svc.Today())
	assert.True(t, svc.CanCancel(appt(1, heydoc.StatusScheduled, "2025-03-12")))
	assert.False(t, svc.CanCancel(appt(1, heydoc.StatusCancelled, "2025-03-12")))
}
