// Package booking submits new appointments and turns every outcome into a
// single user-facing message.
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/heydoc-scheduler/internal/appointments"
	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
	"github.com/wolfman30/heydoc-scheduler/internal/slots"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

var bookingTracer = otel.Tracer("heydoc.internal.booking")

const (
	defaultLoginPath      = "/auth/login"
	defaultRefreshTimeout = 15 * time.Second
)

// Creator submits the creation request.
type Creator interface {
	CreateAppointment(ctx context.Context, req heydoc.CreateAppointmentRequest) (*heydoc.Appointment, error)
}

// Refresher reloads the appointment collection after a booking.
type Refresher interface {
	Refresh(ctx context.Context) ([]heydoc.Appointment, error)
}

// Invalidator forgets cached availability for a booked date.
type Invalidator interface {
	Invalidate(ctx context.Context, doctorID int64, date string) error
}

// Selections exposes the viewer's current slot selection per doctor.
type Selections interface {
	Selection(doctorID int64) (slots.Snapshot, bool)
}

// Observer records booking outcomes.
type Observer interface {
	ObserveBooking(outcome string)
}

// Request is what the viewer picked.
type Request struct {
	DoctorID int64          `json:"doctor_id"`
	ClinicID *int64         `json:"clinic_id,omitempty"`
	Fee      heydoc.Decimal `json:"consultation_fee"`
	Date     string         `json:"appointment_date"`
	Time     string         `json:"appointment_time"`
	Symptoms string         `json:"symptoms,omitempty"`
}

// ForDoctor fills the doctor id, clinic and fee from a doctor profile.
func ForDoctor(doc heydoc.Doctor, date, clock, symptoms string) Request {
	return Request{
		DoctorID: doc.ID,
		ClinicID: doc.ClinicID(),
		Fee:      doc.ConsultationFee,
		Date:     date,
		Time:     clock,
		Symptoms: symptoms,
	}
}

// Outcome is the display form of a booking result.
type Outcome struct {
	Message      string `json:"message"`
	StateChanged bool   `json:"state_changed"`
	Kind         string `json:"kind,omitempty"`
	Redirect     string `json:"redirect,omitempty"`
}

// OutcomeOf converts the result of Create into its single display message.
func OutcomeOf(appt *heydoc.Appointment, err error) Outcome {
	if err == nil && appt != nil {
		return Outcome{Message: notify.MsgBooked, StateChanged: true}
	}
	if errors.Is(err, ErrBusy) {
		return Outcome{Message: err.Error(), Kind: "busy"}
	}
	bErr := Classify(err)
	if bErr == nil {
		bErr = &Error{Kind: KindUnclassified, Message: notify.MsgBookingFallback}
	}
	return Outcome{Message: bErr.Message, Kind: bErr.Kind.String(), Redirect: bErr.Redirect}
}

// Orchestrator validates a selection, submits it, and applies the result to
// the appointment store.
type Orchestrator struct {
	creator        Creator
	tokens         heydoc.TokenSource
	store          *appointments.Store
	refresher      Refresher
	availability   Invalidator
	selections     Selections
	notifier       notify.Notifier
	observer       Observer
	logger         *logging.Logger
	loginPath      string
	refreshTimeout time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRefresher reloads the collection in the background after each booking.
func WithRefresher(r Refresher) Option {
	return func(o *Orchestrator) { o.refresher = r }
}

// WithAvailability invalidates the booked date in the availability cache.
func WithAvailability(inv Invalidator) Option {
	return func(o *Orchestrator) { o.availability = inv }
}

// WithSelections requires a loaded, non-empty slot set before submitting.
func WithSelections(s Selections) Option {
	return func(o *Orchestrator) { o.selections = s }
}

// WithObserver records outcomes.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLoginPath sets where unauthenticated viewers are sent.
func WithLoginPath(path string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(path) != "" {
			o.loginPath = path
		}
	}
}

// WithRefreshTimeout bounds the background refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// NewOrchestrator wires the booking flow.
func NewOrchestrator(creator Creator, tokens heydoc.TokenSource, store *appointments.Store, notifier notify.Notifier, logger *logging.Logger, opts ...Option) *Orchestrator {
	if creator == nil {
		panic("booking: creator required")
	}
	if store == nil {
		panic("booking: appointment store required")
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		creator:        creator,
		tokens:         tokens,
		store:          store,
		notifier:       notifier,
		logger:         logger.Component("booking"),
		loginPath:      defaultLoginPath,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a submission is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Create books an appointment. Exactly one notification is emitted per call
// that gets past the busy check. On failure the store is untouched and the
// error is an *Error.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*heydoc.Appointment, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("heydoc.doctor_id", req.DoctorID),
		attribute.String("heydoc.date", req.Date),
		attribute.String("heydoc.time", req.Time),
	)

	appt, err := o.create(ctx, req)
	if err != nil {
		bErr := Classify(err)
		span.RecordError(err)
		o.observe(bErr.Kind.String())
		o.logger.Warn("booking failed",
			"doctor_id", req.DoctorID,
			"date", req.Date,
			"time", req.Time,
			"kind", bErr.Kind.String(),
			"error", err,
		)
		o.notifier.Error(bErr.Message)
		return nil, bErr
	}

	o.store.Prepend(*appt)
	if o.availability != nil {
		if err := o.availability.Invalidate(ctx, req.DoctorID, req.Date); err != nil {
			o.logger.Warn("availability invalidation failed", "doctor_id", req.DoctorID, "date", req.Date, "error", err)
		}
	}
	o.refreshInBackground(ctx)

	o.observe("booked")
	o.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"booking_id", appt.BookingID,
		"doctor_id", req.DoctorID,
		"date", req.Date,
		"time", req.Time,
	)
	o.notifier.Success(notify.MsgBooked)
	return appt, nil
}

func (o *Orchestrator) create(ctx context.Context, req Request) (*heydoc.Appointment, error) {
	if err := o.checkSession(ctx); err != nil {
		return nil, err
	}
	if err := o.checkSelection(req); err != nil {
		return nil, err
	}

	appt, err := o.creator.CreateAppointment(ctx, heydoc.CreateAppointmentRequest{
		Doctor:          req.DoctorID,
		Clinic:          req.ClinicID,
		ConsultationFee: req.Fee,
		AppointmentDate: req.Date,
		AppointmentTime: req.Time,
		Symptoms:        strings.TrimSpace(req.Symptoms),
	})
	if err != nil {
		return nil, Classify(err)
	}
	if appt.Status == "" {
		appt.Status = heydoc.StatusScheduled
	}
	return appt, nil
}

func (o *Orchestrator) checkSession(ctx context.Context) error {
	if o.tokens == nil {
		return nil
	}
	token, err := o.tokens.Token(ctx)
	if err != nil || token == "" {
		return &Error{Kind: KindUnauthenticated, Message: notify.MsgLoginRequired, Redirect: o.loginPath, Err: err}
	}
	return nil
}

func (o *Orchestrator) checkSelection(req Request) error {
	switch {
	case req.DoctorID == 0:
		return &Error{Kind: KindIncompleteSelection, Message: MsgSelectDoctor}
	case strings.TrimSpace(req.Date) == "":
		return &Error{Kind: KindIncompleteSelection, Message: MsgSelectDate}
	case strings.TrimSpace(req.Time) == "":
		return &Error{Kind: KindIncompleteSelection, Message: MsgSelectTime}
	}
	if o.selections == nil {
		return nil
	}
	snap, ok := o.selections.Selection(req.DoctorID)
	if !ok || snap.Date != req.Date {
		return &Error{Kind: KindIncompleteSelection, Message: MsgSelectDate}
	}
	if !snap.CanSubmit() {
		return &Error{Kind: KindIncompleteSelection, Message: MsgNoSlotsLoaded}
	}
	return nil
}

// refreshInBackground reconciles server-derived fields without blocking the
// caller. It outlives ctx's cancellation.
func (o *Orchestrator) refreshInBackground(ctx context.Context) {
	if o.refresher == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		rctx, cancel := context.WithTimeout(bg, o.refreshTimeout)
		defer cancel()
		if _, err := o.refresher.Refresh(rctx); err != nil {
			o.logger.Warn("post-booking refresh failed", "error", err)
		}
	}()
}

// Wait blocks until background refreshes have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) observe(outcome string) {
	if o.observer != nil {
		o.observer.ObserveBooking(outcome)
	}
}
