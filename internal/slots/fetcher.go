// Package slots loads the bookable start times of one doctor for the date the
// viewer selected, and decides which calendar dates may be selected at all.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

var slotsTracer = otel.Tracer("heydoc.internal.slots")

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("slots: invalid date")
	// ErrNotSelectable is returned when the date is excluded by the calendar.
	ErrNotSelectable = errors.New("slots: date not selectable")
	// ErrSuperseded is returned to a caller whose selection was replaced by a
	// newer one before its fetch completed. Its result was discarded.
	ErrSuperseded = errors.New("slots: selection superseded")
)

// Phase is the load state of the current selection.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Source is the backend surface slots are fetched from.
type Source interface {
	AvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error)
}

// Gate decides whether a date may be selected for a doctor.
type Gate interface {
	Selectable(ctx context.Context, doctorID int64, date string) (bool, string)
}

// Observer records slot fetch outcomes.
type Observer interface {
	ObserveSlotFetch(outcome string)
}

// Snapshot is a copy of the fetcher state. An empty Slots with Phase Loaded
// means the date is fully booked.
type Snapshot struct {
	DoctorID int64    `json:"doctor_id"`
	Date     string   `json:"date,omitempty"`
	Phase    Phase    `json:"phase"`
	Slots    []string `json:"slots"`
	Error    string   `json:"error,omitempty"`
}

// CanSubmit reports whether a booking may be submitted for this selection.
func (s Snapshot) CanSubmit() bool {
	return s.Phase == Loaded && s.Error == "" && len(s.Slots) > 0
}

// Has reports whether clock is one of the loaded slots.
func (s Snapshot) Has(clock string) bool {
	for _, slot := range s.Slots {
		if slot == clock {
			return true
		}
	}
	return false
}

// Fetcher tracks the selected date of one doctor and its slots. Each
// selection bumps a generation; a fetch applies its result only while its
// generation is still current.
type Fetcher struct {
	doctorID int64
	source   Source
	gate     Gate
	observer Observer
	logger   *logging.Logger

	mu    sync.Mutex
	gen   uint64
	date  string
	phase Phase
	slots []string
	err   error
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithGate rejects selections the gate does not allow.
func WithGate(g Gate) Option {
	return func(f *Fetcher) { f.gate = g }
}

// WithObserver records fetch outcomes.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observer = o }
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates an idle fetcher for doctorID.
func NewFetcher(source Source, doctorID int64, opts ...Option) *Fetcher {
	if source == nil {
		panic("slots: source required")
	}
	f := &Fetcher{doctorID: doctorID, source: source, logger: logging.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Component("slots").With("doctor_id", doctorID)
	return f
}

// DoctorID returns the doctor this fetcher serves.
func (f *Fetcher) DoctorID() int64 { return f.doctorID }

// Select makes date the current selection and fetches its slots. Selecting
// the current date again returns the existing state without a request.
func (f *Fetcher) Select(ctx context.Context, date string) (Snapshot, error) {
	if _, err := DefaultDateRule().Parse(date); err != nil {
		return f.Snapshot(), fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if f.gate != nil {
		if ok, reason := f.gate.Selectable(ctx, f.doctorID, date); !ok {
			return f.Snapshot(), fmt.Errorf("%w: %s", ErrNotSelectable, reason)
		}
	}

	f.mu.Lock()
	if f.date == date && f.phase != Idle {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, nil
	}
	f.gen++
	gen := f.gen
	f.date = date
	f.phase = Loading
	f.slots = nil
	f.err = nil
	f.mu.Unlock()

	ctx, span := slotsTracer.Start(ctx, "slots.select")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("heydoc.doctor_id", f.doctorID),
		attribute.String("heydoc.date", date),
	)

	slots, err := f.source.AvailableSlots(ctx, f.doctorID, date)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		f.observe("stale")
		f.logger.Debug("discarding superseded slot response", "date", date)
		return f.snapshotLocked(), ErrSuperseded
	}
	f.phase = Loaded
	if err != nil {
		span.RecordError(err)
		f.observe("error")
		f.logger.Warn("slot fetch failed", "date", date, "error", err)
		f.slots = []string{}
		f.err = err
		return f.snapshotLocked(), fmt.Errorf("slots: fetch %s: %w", date, err)
	}
	if slots == nil {
		slots = []string{}
	}
	f.slots = slots
	f.observe("applied")
	span.SetAttributes(attribute.Int("heydoc.slots", len(slots)))
	return f.snapshotLocked(), nil
}

// Snapshot returns the current state.
func (f *Fetcher) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// CanSubmit reports whether the current selection has bookable slots.
func (f *Fetcher) CanSubmit() bool {
	return f.Snapshot().CanSubmit()
}

// Reset returns to Idle. A fetch still in flight is discarded on completion.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.date = ""
	f.phase = Idle
	f.slots = nil
	f.err = nil
}

func (f *Fetcher) snapshotLocked() Snapshot {
	snap := Snapshot{DoctorID: f.doctorID, Date: f.date, Phase: f.phase}
	if f.phase == Loaded {
		snap.Slots = append([]string{}, f.slots...)
	}
	if f.err != nil {
		snap.Error = f.err.Error()
	}
	return snap
}

func (f *Fetcher) observe(outcome string) {
	if f.observer != nil {
		f.observer.ObserveSlotFetch(outcome)
	}
}

// Registry hands out one Fetcher per doctor.
type Registry struct {
	source Source
	opts   []Option

	mu       sync.Mutex
	fetchers map[int64]*Fetcher
}

// NewRegistry creates fetchers on demand with the given options.
func NewRegistry(source Source, opts ...Option) *Registry {
	if source == nil {
		panic("slots: source required")
	}
	return &Registry{source: source, opts: opts, fetchers: make(map[int64]*Fetcher)}
}

// For returns the fetcher for doctorID, creating it when needed.
func (r *Registry) For(doctorID int64) *Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fetchers[doctorID]
	if !ok {
		f = NewFetcher(r.source, doctorID, r.opts...)
		r.fetchers[doctorID] = f
	}
	return f
}

// Lookup returns the fetcher for doctorID if one exists.
func (r *Registry) Lookup(doctorID int64) (*Fetcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fetchers[doctorID]
	return f, ok
}

// Selection returns the snapshot of doctorID's fetcher, if one exists.
func (r *Registry) Selection(doctorID int64) (Snapshot, bool) {
	f, ok := r.Lookup(doctorID)
	if !ok {
		return Snapshot{}, false
	}
	return f.Snapshot(), true
}

// ResetAll returns every fetcher to Idle and discards selections in flight.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	fetchers := make([]*Fetcher, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		fetchers = append(fetchers, f)
	}
	r.mu.Unlock()
	for _, f := range fetchers {
		f.Reset()
	}
}
