package appointments

import (
	"sort"
	"time"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
)

// ActiveWindowMonths is how recent a patient's last visit must be for the
// roster to list them as active.
const ActiveWindowMonths = 3

// View names accepted by Select.
const (
	ViewAll      = "all"
	ViewToday    = "today"
	ViewUpcoming = "upcoming"
	ViewPast     = "past"
)

// Today formats now as a civil date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(heydoc.DateLayout)
}

// TodayView returns appointments dated today.
func TodayView(list []heydoc.Appointment, today string) []heydoc.Appointment {
	return filter(list, func(a heydoc.Appointment) bool {
		return a.AppointmentDate == today
	})
}

// Upcoming returns active appointments dated today or later.
func Upcoming(list []heydoc.Appointment, today string) []heydoc.Appointment {
	return filter(list, func(a heydoc.Appointment) bool {
		return a.AppointmentDate >= today && a.Status.Active()
	})
}

// Past returns appointments dated before today or already in a terminal
// status. A scheduled or confirmed appointment dated today stays out of Past
// until the backend reports its outcome.
func Past(list []heydoc.Appointment, today string) []heydoc.Appointment {
	return filter(list, func(a heydoc.Appointment) bool {
		return a.AppointmentDate < today || a.Status.Terminal()
	})
}

// ByStatus returns appointments in the given status.
func ByStatus(list []heydoc.Appointment, status heydoc.Status) []heydoc.Appointment {
	return filter(list, func(a heydoc.Appointment) bool {
		return a.Status == status
	})
}

// Select applies a named view. Unknown names return the whole list.
func Select(list []heydoc.Appointment, view, today string) []heydoc.Appointment {
	switch view {
	case ViewToday:
		return TodayView(list, today)
	case ViewUpcoming:
		return Upcoming(list, today)
	case ViewPast:
		return Past(list, today)
	default:
		return append([]heydoc.Appointment{}, list...)
	}
}

// Stats summarises a doctor's appointment book.
type Stats struct {
	Today              int     `json:"today"`
	UniquePatients     int     `json:"unique_patients"`
	Upcoming           int     `json:"upcoming"`
	CompletedThisMonth int     `json:"completed_this_month"`
	MonthlyRevenue     float64 `json:"monthly_revenue"`
}

// DoctorStats computes dashboard counters. Revenue sums the consultation fee
// of appointments completed in today's calendar month.
func DoctorStats(list []heydoc.Appointment, today string) Stats {
	var stats Stats
	month := ""
	if len(today) >= 7 {
		month = today[:7]
	}
	patients := make(map[int64]struct{})
	for _, a := range list {
		patients[a.Patient.ID] = struct{}{}
		if a.AppointmentDate == today {
			stats.Today++
		}
		if a.AppointmentDate >= today && a.Status.Active() {
			stats.Upcoming++
		}
		if a.Status == heydoc.StatusCompleted && month != "" && len(a.AppointmentDate) >= 7 && a.AppointmentDate[:7] == month {
			stats.CompletedThisMonth++
			stats.MonthlyRevenue += a.ConsultationFee.Float()
		}
	}
	stats.UniquePatients = len(patients)
	return stats
}

// RosterEntry is one patient seen by a doctor.
type RosterEntry struct {
	Patient         heydoc.User `json:"patient"`
	Total           int         `json:"total_appointments"`
	Upcoming        int         `json:"upcoming_appointments"`
	Completed       int         `json:"completed_appointments"`
	LastAppointment string      `json:"last_appointment"`
	Active          bool        `json:"active"`
}

// Roster groups appointments by patient. A patient is active when their
// latest appointment date is within ActiveWindowMonths of today.
func Roster(list []heydoc.Appointment, today string) []RosterEntry {
	index := make(map[int64]int)
	var entries []RosterEntry
	for _, a := range list {
		i, ok := index[a.Patient.ID]
		if !ok {
			i = len(entries)
			index[a.Patient.ID] = i
			entries = append(entries, RosterEntry{Patient: a.Patient, LastAppointment: a.AppointmentDate})
		}
		e := &entries[i]
		e.Total++
		if a.AppointmentDate > e.LastAppointment {
			e.LastAppointment = a.AppointmentDate
		}
		switch {
		case a.Status.Active():
			e.Upcoming++
		case a.Status == heydoc.StatusCompleted:
			e.Completed++
		}
	}

	cutoff := ""
	if day, err := time.Parse(heydoc.DateLayout, today); err == nil {
		cutoff = day.AddDate(0, -ActiveWindowMonths, 0).Format(heydoc.DateLayout)
	}
	for i := range entries {
		entries[i].Active = cutoff != "" && entries[i].LastAppointment > cutoff
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastAppointment > entries[j].LastAppointment
	})
	if entries == nil {
		entries = []RosterEntry{}
	}
	return entries
}

func filter(list []heydoc.Appointment, keep func(heydoc.Appointment) bool) []heydoc.Appointment {
	out := make([]heydoc.Appointment, 0, len(list))
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
