package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveAPIRequest("available_slots", "ok", 0.05)
	m.ObserveAvailabilityLookup("unknown")
	m.ObserveAvailabilityFetch("batch", nil)
	m.ObserveSlotFetch("stale")
	m.ObserveBooking("conflict")
	m.ObserveCancellation(errors.New("boom"))

	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("available_slots", "ok")); got != 1 {
		t.Fatalf("api requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bookings.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("bookings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cancellations.WithLabelValues("error")); got != 1 {
		t.Fatalf("cancellations = %v, want 1", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveAPIRequest("op", "ok", 0.1)
	m.ObserveAvailabilityLookup("available")
	m.ObserveAvailabilityFetch("single", nil)
	m.ObserveSlotFetch("applied")
	m.ObserveBooking("created")
	m.ObserveCancellation(nil)
}
