package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salon/internal/model"
)

// SlotStep is the spacing between candidate start times, in minutes.
const SlotStep = 30

var (
	ErrMissingDate     = errors.New("availability: date is required")
	ErrInvalidDuration = errors.New("availability: duration must be positive")
)

// TimeSlot is one candidate start time for a booking.
type TimeSlot struct {
	ID        string `json:"id"`   // "slot-10-30"
	Time      string `json:"time"` // "10:30"
	Available bool   `json:"available"`
}

// Query bundles everything needed to compute the bookable slots of one date.
type Query struct {
	Date            time.Time
	DurationMinutes int
	Hours           model.WeeklyHours
	DaysOff         []model.DayOff
	Appointments    []model.Appointment
}

// Engine computes bookable start times. It keeps no state between calls
// and is safe for concurrent use.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates an engine that reports skipped records to logger.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "availability").Logger()}
}

// Compute runs GenerateBaseSlots followed by FilterAvailable.
func (e *Engine) Compute(q Query) ([]TimeSlot, error) {
	if q.Date.IsZero() {
		return nil, ErrMissingDate
	}
	if q.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, q.DurationMinutes)
	}

	base := e.GenerateBaseSlots(q.Date, q.Hours, q.DaysOff)
	return e.FilterAvailable(base, q.Date, q.DurationMinutes, q.Hours, q.Appointments), nil
}

// GenerateBaseSlots lists every start time of the day at SlotStep spacing,
// beginning at the opening time while the start is before closing.
// A day off, a closed weekday, a missing weekday entry, or an
// unparsable/inverted window all produce an empty list.
func (e *Engine) GenerateBaseSlots(date time.Time, hours model.WeeklyHours, daysOff []model.DayOff) []TimeSlot {
	for _, d := range daysOff {
		if model.SameDay(d.Date, date) {
			return []TimeSlot{}
		}
	}

	open, closing, ok := e.window(date, hours)
	if !ok {
		return []TimeSlot{}
	}

	slots := make([]TimeSlot, 0, int(closing-open)/SlotStep+1)
	for cursor := open; cursor < closing; cursor = cursor.Add(SlotStep) {
		slots = append(slots, newSlot(cursor))
	}
	return slots
}

// FilterAvailable keeps the base slots that can hold durationMinutes without
// running past closing time or overlapping an occupying appointment on date.
// Only bookable slots are returned, in the order given.
func (e *Engine) FilterAvailable(base []TimeSlot, date time.Time, durationMinutes int, hours model.WeeklyHours, appointments []model.Appointment) []TimeSlot {
	result := []TimeSlot{}
	if len(base) == 0 || durationMinutes <= 0 {
		return result
	}

	_, closing, ok := e.window(date, hours)
	if !ok {
		return result
	}

	busy := e.busyIntervals(date, appointments)

	for _, slot := range base {
		start, err := model.ParseClock(slot.Time)
		if err != nil {
			e.logger.Warn().Err(err).Str("slot_id", slot.ID).Msg("skipping malformed slot")
			continue
		}
		end := start.Add(durationMinutes)
		if end > closing {
			continue
		}
		if overlapsAny(start, end, busy) {
			continue
		}
		result = append(result, TimeSlot{ID: slot.ID, Time: slot.Time, Available: true})
	}
	return result
}

type interval struct {
	start, end model.Clock
}

// busyIntervals folds the appointment list into the intervals that block
// the given date. Malformed records are logged and dropped.
func (e *Engine) busyIntervals(date time.Time, appointments []model.Appointment) []interval {
	busy := make([]interval, 0, len(appointments))
	for i := range appointments {
		a := &appointments[i]
		if !a.OccupiesCalendar() || !a.OnDate(date) {
			continue
		}
		start, end, err := a.Interval()
		if err != nil {
			e.logger.Warn().Err(err).Str("appointment_id", a.ID).Msg("skipping malformed appointment")
			continue
		}
		busy = append(busy, interval{start: start, end: end})
	}
	return busy
}

func overlapsAny(start, end model.Clock, busy []interval) bool {
	for _, b := range busy {
		if model.Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// window returns the opening window for date, or ok=false when no slot can exist.
func (e *Engine) window(date time.Time, hours model.WeeklyHours) (open, closing model.Clock, ok bool) {
	h, found := hours.For(date)
	if !found || !h.IsOpen {
		return 0, 0, false
	}
	open, closing, err := h.Window()
	if err != nil {
		e.logger.Warn().Err(err).Stringer("weekday", h.Weekday).Msg("malformed operating hours")
		return 0, 0, false
	}
	if open >= closing {
		return 0, 0, false
	}
	return open, closing, true
}

func newSlot(c model.Clock) TimeSlot {
	return TimeSlot{
		ID:        SlotID(c),
		Time:      c.String(),
		Available: true,
	}
}

// SlotID derives the stable key of a slot starting at c.
func SlotID(c model.Clock) string {
	return fmt.Sprintf("slot-%d-%d", c.Hour(), c.Minute())
}

// Times returns the "HH:MM" start times of slots.
func Times(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}

// Contains reports whether start ("HH:MM") is one of slots.
func Contains(slots []TimeSlot, start string) bool {
	want, err := model.ParseClock(start)
	if err != nil {
		return false
	}
	for _, s := range slots {
		if c, err := model.ParseClock(s.Time); err == nil && c == want {
			return true
		}
	}
	return false
}
