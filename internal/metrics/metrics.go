package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"salon/internal/events"
)

var (
	once sync.Once

	appointmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "appointments_created_total",
			Help:      "Count of appointments booked.",
		},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "appointment_status_changes_total",
			Help:      "Count of appointment status transitions by target status.",
		},
		[]string{"status"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected booking attempts by reason.",
		},
		[]string{"reason"},
	)

	availabilityCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result.",
		},
		[]string{"result"},
	)

	availabilityDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "salon",
			Name:      "availability_compute_seconds",
			Help:      "Time spent loading data and computing available slots.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentsCreated,
			statusChanges,
			bookingRejected,
			availabilityCache,
			availabilityDuration,
			httpRequests,
		)
	})
}

// Subscribe counts appointment events published on bus.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.AppointmentCreated, func(events.Event) error {
		appointmentsCreated.Inc()
		return nil
	})
	bus.Subscribe(events.AppointmentStatusChanged, func(e events.Event) error {
		var p events.AppointmentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		statusChanges.WithLabelValues(p.Status).Inc()
		return nil
	})
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncCacheResult(hit bool) {
	if hit {
		availabilityCache.WithLabelValues("hit").Inc()
		return
	}
	availabilityCache.WithLabelValues("miss").Inc()
}

func ObserveAvailability(d time.Duration) {
	availabilityDuration.Observe(d.Seconds())
}

func IncHTTPRequest(route, method string, code int) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
