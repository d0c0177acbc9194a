package slots

import (
	"time"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
)

// DefaultHorizonDays is how many days ahead a calendar offers.
const DefaultHorizonDays = 30

// Reasons a calendar day cannot be picked.
const (
	ReasonWeekend     = "Weekends not available"
	ReasonUnavailable = "No available slots"
	ReasonOutOfRange  = "Date outside booking window"
)

// DateRule is the static part of date selectability: the booking horizon
// and the weekend exclusion.
type DateRule struct {
	ExcludeWeekends bool
	HorizonDays     int
	Location        *time.Location
}

// DefaultDateRule excludes weekends over a 30 day horizon in time.Local.
func DefaultDateRule() DateRule {
	return DateRule{ExcludeWeekends: true, HorizonDays: DefaultHorizonDays, Location: time.Local}
}

func (r DateRule) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r DateRule) horizon() int {
	if r.HorizonDays <= 0 {
		return DefaultHorizonDays
	}
	return r.HorizonDays
}

// Parse reads an ISO date in the rule's zone.
func (r DateRule) Parse(date string) (time.Time, error) {
	return time.ParseInLocation(heydoc.DateLayout, date, r.location())
}

// Weekend reports whether day falls on Saturday or Sunday.
func Weekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Allows applies the static exclusion to one day. The empty reason means the
// day is allowed.
func (r DateRule) Allows(day time.Time) (bool, string) {
	if r.ExcludeWeekends && Weekend(day) {
		return false, ReasonWeekend
	}
	return true, ""
}

// Window lists the ISO dates of the horizon starting at from's calendar day.
func (r DateRule) Window(from time.Time) []string {
	from = from.In(r.location())
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, r.location())
	days := make([]string, 0, r.horizon())
	for i := 0; i < r.horizon(); i++ {
		days = append(days, start.AddDate(0, 0, i).Format(heydoc.DateLayout))
	}
	return days
}

// InWindow reports whether date lies within the horizon starting at from.
func (r DateRule) InWindow(date string, from time.Time) bool {
	day, err := r.Parse(date)
	if err != nil {
		return false
	}
	from = from.In(r.location())
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, r.location())
	end := start.AddDate(0, 0, r.horizon())
	return !day.Before(start) && day.Before(end)
}
