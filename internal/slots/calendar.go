package slots

import (
	"context"
	"time"

	"github.com/wolfman30/heydoc-scheduler/internal/availability"
)

// AvailabilityView is the part of the availability cache the calendar reads.
type AvailabilityView interface {
	Lookup(ctx context.Context, doctorID int64, date string) availability.State
	QueryBatch(ctx context.Context, doctorID int64, dates []string) error
}

// Day is one cell of the date picker.
type Day struct {
	Date         string             `json:"date"`
	Weekday      string             `json:"weekday"`
	Availability availability.State `json:"availability"`
	Selectable   bool               `json:"selectable"`
	Reason       string             `json:"reason,omitempty"`
}

// Calendar combines the static date rule with cached availability.
type Calendar struct {
	rule  DateRule
	cache AvailabilityView
	now   func() time.Time
}

// CalendarOption customises a Calendar.
type CalendarOption func(*Calendar)

// WithClock overrides time.Now for the booking window check.
func WithClock(now func() time.Time) CalendarOption {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCalendar creates a calendar. A nil cache treats every date as Unknown.
func NewCalendar(rule DateRule, cache AvailabilityView, opts ...CalendarOption) *Calendar {
	c := &Calendar{rule: rule, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Today is the first date of the current booking window.
func (c *Calendar) Today() time.Time { return c.now() }

// Rule returns the static date rule.
func (c *Calendar) Rule() DateRule { return c.rule }

// Days lists the horizon starting at from with each date's selectability.
func (c *Calendar) Days(ctx context.Context, doctorID int64, from time.Time) []Day {
	window := c.rule.Window(from)
	days := make([]Day, 0, len(window))
	for _, date := range window {
		day, _ := c.rule.Parse(date)
		d := Day{Date: date, Weekday: day.Weekday().String()}
		d.Selectable, d.Reason, d.Availability = c.evaluate(ctx, doctorID, day, date)
		days = append(days, d)
	}
	return days
}

// Prefetch issues one batch availability query for the allowed dates of the
// horizon that are still Unknown.
func (c *Calendar) Prefetch(ctx context.Context, doctorID int64, from time.Time) error {
	if c.cache == nil {
		return nil
	}
	var dates []string
	for _, date := range c.rule.Window(from) {
		day, _ := c.rule.Parse(date)
		if ok, _ := c.rule.Allows(day); ok {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	return c.cache.QueryBatch(ctx, doctorID, dates)
}

// Selectable implements Gate against the horizon starting today.
func (c *Calendar) Selectable(ctx context.Context, doctorID int64, date string) (bool, string) {
	day, err := c.rule.Parse(date)
	if err != nil {
		return false, ReasonOutOfRange
	}
	if !c.rule.InWindow(date, c.now()) {
		return false, ReasonOutOfRange
	}
	ok, reason, _ := c.evaluate(ctx, doctorID, day, date)
	return ok, reason
}

func (c *Calendar) evaluate(ctx context.Context, doctorID int64, day time.Time, date string) (bool, string, availability.State) {
	state := availability.Unknown
	if c.cache != nil {
		state = c.cache.Lookup(ctx, doctorID, date)
	}
	if ok, reason := c.rule.Allows(day); !ok {
		return false, reason, state
	}
	if !state.Selectable() {
		return false, ReasonUnavailable, state
	}
	return true, "", state
}
