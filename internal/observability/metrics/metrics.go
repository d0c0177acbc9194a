package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling engine.
type SchedulingMetrics struct {
	apiRequests        *prometheus.CounterVec
	apiLatency         *prometheus.HistogramVec
	availabilityLookup *prometheus.CounterVec
	availabilityFetch  *prometheus.CounterVec
	slotFetches        *prometheus.CounterVec
	bookings           *prometheus.CounterVec
	cancellations      *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total HeyDoc backend requests",
		}, []string{"operation", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heydoc",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of HeyDoc backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		availabilityLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "availability",
			Name:      "lookups_total",
			Help:      "Availability cache lookups by resolved state",
		}, []string{"state"}),
		availabilityFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "availability",
			Name:      "fetches_total",
			Help:      "Availability fetches issued to the backend",
		}, []string{"mode", "outcome"}),
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "slots",
			Name:      "fetches_total",
			Help:      "Slot fetches by outcome (applied, stale, error)",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome kind",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heydoc",
			Subsystem: "appointments",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.apiRequests,
		m.apiLatency,
		m.availabilityLookup,
		m.availabilityFetch,
		m.slotFetches,
		m.bookings,
		m.cancellations,
	)
	return m
}

// ObserveAPIRequest satisfies heydoc.RequestObserver.
func (m *SchedulingMetrics) ObserveAPIRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(operation, outcome).Inc()
	m.apiLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveAvailabilityLookup(state string) {
	if m == nil {
		return
	}
	m.availabilityLookup.WithLabelValues(state).Inc()
}

func (m *SchedulingMetrics) ObserveAvailabilityFetch(mode string, err error) {
	if m == nil {
		return
	}
	m.availabilityFetch.WithLabelValues(mode, outcomeLabel(err)).Inc()
}

func (m *SchedulingMetrics) ObserveSlotFetch(outcome string) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveCancellation(err error) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
