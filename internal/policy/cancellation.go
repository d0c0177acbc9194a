// Package policy decides which actions the viewer may take on an existing
// appointment.
package policy

import (
	"strings"
	"time"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
)

// DefaultWindow is the minimum lead time required to cancel.
const DefaultWindow = 24 * time.Hour

var timeLayouts = []string{"15:04:05", "15:04"}

// Cancellation evaluates cancellation eligibility in a fixed time zone.
type Cancellation struct {
	Window   time.Duration
	Location *time.Location
}

// NewCancellation builds a policy. A non-positive window uses DefaultWindow
// and a nil location uses time.Local.
func NewCancellation(window time.Duration, loc *time.Location) Cancellation {
	if window <= 0 {
		window = DefaultWindow
	}
	if loc == nil {
		loc = time.Local
	}
	return Cancellation{Window: window, Location: loc}
}

// CanCancel reports whether appt may still be cancelled at now.
func (p Cancellation) CanCancel(appt heydoc.Appointment, now time.Time) bool {
	if !appt.Status.Active() {
		return false
	}
	lead, ok := LeadTime(appt, now, p.location())
	if !ok {
		return false
	}
	return lead > p.window()
}

// MinimumLead is the lead time a cancel must exceed.
func (p Cancellation) MinimumLead() time.Duration { return p.window() }

func (p Cancellation) window() time.Duration {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}

func (p Cancellation) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// CanCancel applies the default 24 hour window.
func CanCancel(appt heydoc.Appointment, now time.Time, loc *time.Location) bool {
	return NewCancellation(DefaultWindow, loc).CanCancel(appt, now)
}

// LeadTime returns how far in the future the appointment starts. The second
// result is false when the date or time cannot be parsed.
func LeadTime(appt heydoc.Appointment, now time.Time, loc *time.Location) (time.Duration, bool) {
	start, ok := StartTime(appt, loc)
	if !ok {
		return 0, false
	}
	return start.Sub(now), true
}

// StartTime combines the appointment date and wall-clock time in loc.
func StartTime(appt heydoc.Appointment, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(heydoc.DateLayout, strings.TrimSpace(appt.AppointmentDate), loc)
	if err != nil {
		return time.Time{}, false
	}
	clock, ok := parseClock(appt.AppointmentTime)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, loc), true
}

func parseClock(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
