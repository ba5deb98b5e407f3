package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salon/internal/events"
)

func TestSubscribe_CountsAppointmentEvents(t *testing.T) {
	Register()
	Register()

	bus := events.NewEventBus(nil)
	Subscribe(bus)

	createdBefore := testutil.ToFloat64(appointmentsCreated)
	cancelledBefore := testutil.ToFloat64(statusChanges.WithLabelValues("cancelled"))

	require.NoError(t, bus.PublishJSON(events.AppointmentCreated, events.AppointmentPayload{AppointmentID: "a1"}))
	require.NoError(t, bus.PublishJSON(events.AppointmentStatusChanged, events.AppointmentPayload{AppointmentID: "a1", Status: "cancelled"}))

	assert.Equal(t, createdBefore+1, testutil.ToFloat64(appointmentsCreated))
	assert.Equal(t, cancelledBefore+1, testutil.ToFloat64(statusChanges.WithLabelValues("cancelled")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(availabilityCache.WithLabelValues("hit"))
	IncCacheResult(true)
	assert.Equal(t, before+1, testutil.ToFloat64(availabilityCache.WithLabelValues("hit")))

	before = testutil.ToFloat64(bookingRejected.WithLabelValues("slot_unavailable"))
	IncBookingRejected("slot_unavailable")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingRejected.WithLabelValues("slot_unavailable")))

	IncHTTPRequest("/api/services", "GET", 200)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("/api/services", "GET", "200")))
}
