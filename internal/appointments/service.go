package appointments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
	"github.com/wolfman30/heydoc-scheduler/internal/policy"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

var appointmentsTracer = otel.Tracer("heydoc.internal.appointments")

// ErrNotCancellable is returned when the cancellation policy rejects a cancel.
var ErrNotCancellable = errors.New("appointments: appointment can no longer be cancelled")

// Backend is the REST surface the service uses.
type Backend interface {
	ListAppointments(ctx context.Context) ([]heydoc.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*heydoc.Appointment, error)
	CancelAppointment(ctx context.Context, id int64) error
}

// CancelObserver records cancellation outcomes.
type CancelObserver interface {
	ObserveCancellation(err error)
}

// Service runs refresh, fetch and cancel against the backend and keeps the
// store in step.
type Service struct {
	backend  Backend
	store    *Store
	policy   policy.Cancellation
	notifier notify.Notifier
	observer CancelObserver
	logger   *logging.Logger
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithCancelObserver records cancellation outcomes.
func WithCancelObserver(o CancelObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the appointment service.
func NewService(backend Backend, store *Store, pol policy.Cancellation, notifier notify.Notifier, logger *logging.Logger, opts ...ServiceOption) *Service {
	if backend == nil {
		panic("appointments: backend required")
	}
	if store == nil {
		store = NewStore()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		backend:  backend,
		store:    store,
		policy:   pol,
		notifier: notifier,
		logger:   logger.Component("appointments"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the backing store.
func (s *Service) Store() *Store { return s.store }

// Today returns the current civil date in the policy's zone.
func (s *Service) Today() string {
	return Today(s.now(), s.policy.Location)
}

// CanCancel evaluates the cancellation policy at the current time.
func (s *Service) CanCancel(appt heydoc.Appointment) bool {
	return s.policy.CanCancel(appt, s.now())
}

// CancelRejection is the message shown when the cancellation window refuses
// a cancel.
func (s *Service) CancelRejection() string {
	return notify.CancelTooLate(s.policy.MinimumLead())
}

// Refresh reloads the full collection. A response that arrives after a newer
// refresh or a local mutation is dropped.
func (s *Service) Refresh(ctx context.Context) ([]heydoc.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.refresh")
	defer span.End()

	ticket := s.store.BeginRefresh()
	list, err := s.backend.ListAppointments(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("appointment refresh failed", "ticket", ticket, "error", err)
		return nil, fmt.Errorf("appointments: refresh: %w", err)
	}
	if !s.store.ApplyRefresh(ticket, list) {
		s.logger.Debug("discarding superseded appointment refresh", "ticket", ticket)
	}
	span.SetAttributes(attribute.Int("heydoc.appointments", len(list)))
	return s.store.All(), nil
}

// Fetch loads one appointment and upserts it into the store.
func (s *Service) Fetch(ctx context.Context, id int64) (heydoc.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.fetch")
	defer span.End()
	span.SetAttributes(attribute.Int64("heydoc.appointment_id", id))

	appt, err := s.backend.GetAppointment(ctx, id)
	if err != nil {
		span.RecordError(err)
		if heydoc.IsStatus(err, http.StatusNotFound) {
			return heydoc.Appointment{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return heydoc.Appointment{}, fmt.Errorf("appointments: fetch %d: %w", id, err)
	}
	s.store.Upsert(*appt)
	return *appt, nil
}

// Cancel cancels one appointment. On failure the stored status is unchanged
// and one error signal is emitted; on success the record becomes cancelled
// locally without a refresh.
func (s *Service) Cancel(ctx context.Context, id int64) (heydoc.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("heydoc.appointment_id", id))

	appt, err := s.cancel(ctx, id)
	if s.observer != nil {
		s.observer.ObserveCancellation(err)
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("appointment cancel failed", "appointment_id", id, "error", err)
		if errors.Is(err, ErrNotCancellable) {
			s.notifier.Error(s.CancelRejection())
		} else {
			s.notifier.Error(notify.MsgCancelFailed)
		}
		return appt, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id, "booking_id", appt.BookingID)
	s.notifier.Success(notify.MsgCancelled)
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, id int64) (heydoc.Appointment, error) {
	appt, ok := s.store.Get(id)
	if !ok {
		return heydoc.Appointment{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if !s.CanCancel(appt) {
		return appt, ErrNotCancellable
	}
	if err := s.backend.CancelAppointment(ctx, id); err != nil {
		return appt, fmt.Errorf("appointments: cancel %d: %w", id, err)
	}
	updated, err := s.store.MarkCancelled(id)
	if err != nil {
		// The backend already cancelled; the next refresh reconciles.
		s.logger.Warn("local cancel transition skipped", "appointment_id", id, "error", err)
		appt.Status = heydoc.StatusCancelled
		return appt, nil
	}
	return updated, nil
}
