package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/heydoc-scheduler/internal/appointments"
	"github.com/wolfman30/heydoc-scheduler/internal/availability"
	"github.com/wolfman30/heydoc-scheduler/internal/booking"
	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
	"github.com/wolfman30/heydoc-scheduler/internal/session"
	"github.com/wolfman30/heydoc-scheduler/internal/slots"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

// SchedulingDeps are the engine components the HTTP surface drives.
type SchedulingDeps struct {
	Calendar     *slots.Calendar
	Slots        *slots.Registry
	Availability *availability.Cache
	Booking      *booking.Orchestrator
	Appointments *appointments.Service
	Feed         *notify.Feed
	Session      *session.Session
	Logger       *logging.Logger
}

// SchedulingHandler exposes the scheduling engine to the presentation layer.
type SchedulingHandler struct {
	calendar     *slots.Calendar
	slots        *slots.Registry
	availability *availability.Cache
	booking      *booking.Orchestrator
	appointments *appointments.Service
	feed         *notify.Feed
	session      *session.Session
	logger       *logging.Logger
}

// NewSchedulingHandler creates the handler. Calendar, Slots, Booking and
// Appointments are required.
func NewSchedulingHandler(deps SchedulingDeps) *SchedulingHandler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulingHandler{
		calendar:     deps.Calendar,
		slots:        deps.Slots,
		availability: deps.Availability,
		booking:      deps.Booking,
		appointments: deps.Appointments,
		feed:         deps.Feed,
		session:      deps.Session,
		logger:       logger.Component("http.scheduling"),
	}
}

// Register mounts the scheduling routes on r.
func (h *SchedulingHandler) Register(r chi.Router) {
	r.Get("/session", h.GetSession)
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/calendar", h.GetCalendar)
		r.Get("/availability/{date}", h.GetAvailability)
		r.Get("/selection", h.GetSelection)
		r.Post("/selection", h.SelectDate)
		r.Delete("/selection", h.ResetSelection)
	})
	r.Post("/bookings", h.CreateBooking)
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.ListAppointments)
		r.Post("/refresh", h.RefreshAppointments)
		r.Get("/{appointmentID}", h.GetAppointment)
		r.Post("/{appointmentID}/cancel", h.CancelAppointment)
	})
	r.Get("/roster", h.GetRoster)
	r.Get("/stats", h.GetStats)
	r.Get("/notifications", h.DrainNotifications)
}

// HealthCheck reports liveness.
// GET /health
func (h *SchedulingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSession describes the current viewer.
// GET /session
func (h *SchedulingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": false}
	if h.session != nil {
		viewer := h.session.Viewer()
		resp["authenticated"] = h.session.Authenticated()
		resp["user_id"] = viewer.UserID
		resp["role"] = viewer.Role
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar lists the booking window for a doctor.
// GET /doctors/{doctorID}/calendar
// Query params:
//   - from: YYYY-MM-DD start of the window (optional, defaults to today)
//   - prefetch: when true, batch-load unknown availability first
func (h *SchedulingHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := doctorParam(w, r)
	if !ok {
		return
	}
	from := h.calendar.Today()
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := h.calendar.Rule().Parse(raw)
		if err != nil {
			jsonError(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if prefetch, _ := strconv.ParseBool(r.URL.Query().Get("prefetch")); prefetch {
		if err := h.calendar.Prefetch(r.Context(), doctorID, from); err != nil {
			// Dates stay unknown and remain selectable.
			h.logger.Warn("availability prefetch failed", "doctor_id", doctorID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor_id": doctorID,
		"days":      h.calendar.Days(r.Context(), doctorID, from),
	})
}

// GetAvailability resolves the availability of one date.
// GET /doctors/{doctorID}/availability/{date}
func (h *SchedulingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := doctorParam(w, r)
	if !ok {
		return
	}
	if h.availability == nil {
		jsonError(w, "availability disabled", http.StatusServiceUnavailable)
		return
	}
	date := chi.URLParam(r, "date")
	state, err := h.availability.Query(r.Context(), doctorID, date)
	if errors.Is(err, availability.ErrInvalidDate) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Warn("availability query failed", "doctor_id", doctorID, "date", date, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor_id":    doctorID,
		"date":         date,
		"availability": state,
		"selectable":   state.Selectable(),
	})
}

// GetSelection returns the current slot selection for a doctor.
// GET /doctors/{doctorID}/selection
func (h *SchedulingHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := doctorParam(w, r)
	if !ok {
		return
	}
	snap, found := h.slots.Selection(doctorID)
	if !found {
		snap = slots.Snapshot{DoctorID: doctorID, Phase: slots.Idle}
	}
	writeJSON(w, http.StatusOK, selectionResponse(snap))
}

type selectRequest struct {
	Date string `json:"date"`
}

// SelectDate selects a date and loads its slots.
// POST /doctors/{doctorID}/selection
func (h *SchedulingHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := doctorParam(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := h.slots.For(doctorID).Select(r.Context(), strings.TrimSpace(req.Date))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, selectionResponse(snap))
	case errors.Is(err, slots.ErrInvalidDate):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, slots.ErrNotSelectable):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, slots.ErrSuperseded):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		writeJSON(w, http.StatusBadGateway, selectionResponse(snap))
	}
}

// ResetSelection clears the selection for a doctor.
// DELETE /doctors/{doctorID}/selection
func (h *SchedulingHandler) ResetSelection(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := doctorParam(w, r)
	if !ok {
		return
	}
	if f, found := h.slots.Lookup(doctorID); found {
		f.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

func selectionResponse(snap slots.Snapshot) map[string]any {
	return map[string]any{
		"selection":  snap,
		"can_submit": snap.CanSubmit(),
	}
}

// CreateBooking submits the selected slot.
// POST /bookings
func (h *SchedulingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.booking.Create(r.Context(), req)
	outcome := booking.OutcomeOf(appt, err)
	if err == nil {
		writeJSON(w, http.StatusCreated, map[string]any{
			"appointment": appt,
			"outcome":     outcome,
		})
		return
	}
	writeJSON(w, bookingStatus(err), map[string]any{
		"error":   outcome.Message,
		"outcome": outcome,
	})
}

func bookingStatus(err error) int {
	if errors.Is(err, booking.ErrBusy) {
		return http.StatusConflict
	}
	bErr, ok := booking.AsError(err)
	if !ok {
		return http.StatusBadGateway
	}
	switch bErr.Kind {
	case booking.KindUnauthenticated:
		return http.StatusUnauthorized
	case booking.KindIncompleteSelection:
		return http.StatusUnprocessableEntity
	case booking.KindConflict:
		return http.StatusConflict
	case booking.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// ListAppointments returns one view of the viewer's appointments.
// GET /appointments
// Query params:
//   - view: all, today, upcoming or past (optional, defaults to all)
//   - status: lifecycle status filter applied after the view (optional)
func (h *SchedulingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	view := strings.TrimSpace(r.URL.Query().Get("view"))
	if view == "" {
		view = appointments.ViewAll
	}
	switch view {
	case appointments.ViewAll, appointments.ViewToday, appointments.ViewUpcoming, appointments.ViewPast:
	default:
		jsonError(w, "unknown view", http.StatusBadRequest)
		return
	}
	list := appointments.Select(h.appointments.Store().All(), view, h.appointments.Today())
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		list = appointments.ByStatus(list, heydoc.ParseStatus(raw))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":         view,
		"appointments": h.withCancellable(list),
	})
}

// RefreshAppointments reloads the collection from the backend.
// POST /appointments/refresh
func (h *SchedulingHandler) RefreshAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.appointments.Refresh(r.Context())
	if err != nil {
		jsonError(w, "failed to load appointments", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": h.withCancellable(list)})
}

// GetAppointment returns one appointment, loading it when it is not cached.
// GET /appointments/{appointmentID}
func (h *SchedulingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentParam(w, r)
	if !ok {
		return
	}
	appt, found := h.appointments.Store().Get(id)
	if !found {
		fetched, err := h.appointments.Fetch(r.Context(), id)
		if errors.Is(err, appointments.ErrNotFound) {
			jsonError(w, "appointment not found", http.StatusNotFound)
			return
		}
		if err != nil {
			jsonError(w, "failed to load appointment", http.StatusBadGateway)
			return
		}
		appt = fetched
	}
	writeJSON(w, http.StatusOK, appointmentView{Appointment: appt, CanCancel: h.appointments.CanCancel(appt)})
}

// CancelAppointment cancels one appointment.
// POST /appointments/{appointmentID}/cancel
func (h *SchedulingHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentParam(w, r)
	if !ok {
		return
	}
	appt, err := h.appointments.Cancel(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"appointment": appointmentView{Appointment: appt},
			"message":     notify.MsgCancelled,
		})
	case errors.Is(err, appointments.ErrNotFound):
		jsonError(w, notify.MsgCancelFailed, http.StatusNotFound)
	case errors.Is(err, appointments.ErrNotCancellable):
		jsonError(w, h.appointments.CancelRejection(), http.StatusConflict)
	default:
		jsonError(w, notify.MsgCancelFailed, http.StatusBadGateway)
	}
}

// GetRoster summarises the doctor's patients.
// GET /roster
func (h *SchedulingHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	roster := appointments.Roster(h.appointments.Store().All(), h.appointments.Today())
	writeJSON(w, http.StatusOK, map[string]any{"patients": roster})
}

// GetStats returns the doctor dashboard counters.
// GET /stats
func (h *SchedulingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, appointments.DoctorStats(h.appointments.Store().All(), h.appointments.Today()))
}

// DrainNotifications returns and clears pending user-facing signals.
// GET /notifications
func (h *SchedulingHandler) DrainNotifications(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []notify.Notification{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.feed.Drain()})
}

type appointmentView struct {
	heydoc.Appointment
	CanCancel bool `json:"can_cancel"`
}

func (h *SchedulingHandler) withCancellable(list []heydoc.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(list))
	for _, appt := range list {
		out = append(out, appointmentView{Appointment: appt, CanCancel: h.appointments.CanCancel(appt)})
	}
	return out
}

func doctorParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return int64Param(w, r, "doctorID", "invalid doctor id")
}

func appointmentParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return int64Param(w, r, "appointmentID", "invalid appointment id")
}

func int64Param(w http.ResponseWriter, r *http.Request, name, msg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, msg, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
