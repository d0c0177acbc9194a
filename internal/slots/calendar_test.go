package slots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heydoc-scheduler/internal/availability"
)

func TestDateRuleWindow(t *testing.T) {
	rule := DateRule{HorizonDays: 3, Location: time.UTC}
	from := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, []string{"2025-03-10", "2025-03-11", "2025-03-12"}, rule.Window(from))
	assert.True(t, rule.InWindow("2025-03-12", from))
	assert.False(t, rule.InWindow("2025-03-13", from))
	assert.False(t, rule.InWindow("2025-03-09", from))
}

func TestDateRuleDefaults(t *testing.T) {
	rule := DefaultDateRule()
	assert.True(t, rule.ExcludeWeekends)
	assert.Len(t, rule.Window(time.Now()), DefaultHorizonDays)

	var zero DateRule
	assert.Len(t, zero.Window(time.Now()), DefaultHorizonDays)
}

func TestWeekendRule(t *testing.T) {
	sat := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	mon := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	ok, reason := DateRule{ExcludeWeekends: true}.Allows(sat)
	assert.False(t, ok)
	assert.Equal(t, ReasonWeekend, reason)

	ok, _ = DateRule{ExcludeWeekends: true}.Allows(mon)
	assert.True(t, ok)

	ok, _ = DateRule{ExcludeWeekends: false}.Allows(sat)
	assert.True(t, ok)
}

func TestCalendarDays(t *testing.T) {
	view := &fakeView{states: map[string]availability.State{
		"2025-03-10": availability.Available,
		"2025-03-11": availability.Unavailable,
	}}
	cal := NewCalendar(DateRule{ExcludeWeekends: true, HorizonDays: 7, Location: time.UTC}, view)
	days := cal.Days(context.Background(), 3, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.Len(t, days, 7)

	assert.Equal(t, Day{Date: "2025-03-10", Weekday: "Monday", Availability: availability.Available, Selectable: true}, days[0])
	assert.False(t, days[1].Selectable)
	assert.Equal(t, ReasonUnavailable, days[1].Reason)
	// Unknown fails open.
	assert.True(t, days[2].Selectable)
	assert.Equal(t, availability.Unknown, days[2].Availability)
	assert.False(t, days[5].Selectable)
	assert.Equal(t, ReasonWeekend, days[5].Reason)
	assert.False(t, days[6].Selectable)
}

func TestCalendarPrefetchSkipsWeekends(t *testing.T) {
	view := &fakeView{}
	cal := NewCalendar(DateRule{ExcludeWeekends: true, HorizonDays: 7, Location: time.UTC}, view)

	err := cal.Prefetch(context.Background(), 3, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, view.batches, 1)
	assert.Equal(t, []string{"2025-03-10", "2025-03-11", "2025-03-12", "2025-03-13", "2025-03-14"}, view.batches[0])
}

func TestCalendarWithoutCache(t *testing.T) {
	cal := NewCalendar(DateRule{HorizonDays: 2, Location: time.UTC}, nil)
	require.NoError(t, cal.Prefetch(context.Background(), 3, time.Now()))

	days := cal.Days(context.Background(), 3, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	assert.True(t, days[0].Selectable, "weekends allowed when the rule is off")
}
