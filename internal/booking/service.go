package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"salon/internal/availability"
	"salon/internal/database"
	"salon/internal/events"
	"salon/internal/lock"
	"salon/internal/metrics"
	"salon/internal/model"
)

var (
	ErrSlotUnavailable   = errors.New("selected time is no longer available")
	ErrBusy              = errors.New("another booking for this date is in progress")
	ErrPastDate          = errors.New("cannot book in the past")
	ErrDateTooFar        = errors.New("date is too far in the future")
	ErrServiceInactive   = errors.New("service is not available for booking")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the storage the booking flow needs.
type Repository interface {
	GetService(ctx context.Context, id string) (*model.Service, error)
	GetWeeklyHours(ctx context.Context) (model.WeeklyHours, error)
	ListDaysOff(ctx context.Context, from, to time.Time) ([]model.DayOff, error)
	AppointmentsOnDate(ctx context.Context, date time.Time) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error
	UpsertHours(ctx context.Context, h *model.OperatingHours) error
	CreateDayOff(ctx context.Context, d *model.DayOff) error
	DeleteDayOff(ctx context.Context, id string) (time.Time, error)
}

// SlotCache caches computed slot lists. Version is read before the calendar
// is loaded; Set drops the write when the date was invalidated since then.
type SlotCache interface {
	Get(ctx context.Context, date time.Time, durationMinutes int) ([]availability.TimeSlot, bool)
	Version(ctx context.Context, date time.Time) string
	Set(ctx context.Context, date time.Time, durationMinutes int, version string, slots []availability.TimeSlot)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Options tunes the booking rules.
type Options struct {
	Location   *time.Location
	MaxAdvance time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
}

// BookingRequest is a client's booking submission.
type BookingRequest struct {
	ServiceID   string
	Date        time.Time
	StartTime   string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
}

// Service orchestrates availability lookups and bookings.
type Service struct {
	repo   Repository
	engine *availability.Engine
	cache  SlotCache
	locker lock.Locker
	events EventPublisher
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a booking service. cache and events may be nil.
func NewService(repo Repository, engine *availability.Engine, cache SlotCache, locker lock.Locker, pub EventPublisher, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxAdvance <= 0 {
		opts.MaxAdvance = 60 * 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if locker == nil {
		locker = lock.NewLocalLock()
	}
	return &Service{
		repo:   repo,
		engine: engine,
		cache:  cache,
		locker: locker,
		events: pub,
		opts:   opts,
		logger: logger.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

// today returns the salon's current calendar date as UTC midnight and the
// current wall clock in the salon's timezone.
func (s *Service) today() (time.Time, model.Clock) {
	local := s.now().In(s.opts.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), model.Clock(local.Hour()*60 + local.Minute())
}

// AvailableSlots returns the bookable start times for serviceID on date.
// Past dates have none; today's list starts after the current time.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time, serviceID string) ([]availability.TimeSlot, *model.Service, error) {
	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}

	date = model.DateOnly(date)
	today, _ := s.today()
	if date.Before(today) || date.After(today.Add(s.opts.MaxAdvance)) {
		return []availability.TimeSlot{}, svc, nil
	}

	slots, err := s.slots(ctx, date, svc.DurationMinutes, true)
	if err != nil {
		return nil, nil, err
	}
	return s.dropElapsed(date, slots), svc, nil
}

// Book validates req against current availability and stores a confirmed appointment.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*model.Appointment, error) {
	date := model.DateOnly(req.Date)
	if err := s.checkDate(date); err != nil {
		metrics.IncBookingRejected("date")
		return nil, err
	}

	svc, err := s.activeService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrInvalidInput, err)
	}
	end, err := model.EndTimeFor(start.String(), svc.DurationMinutes)
	if err != nil {
		metrics.IncBookingRejected("slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	dateKey := date.Format(model.DateLayout)
	release, err := lock.Acquire(ctx, s.locker, "booking:"+dateKey, s.opts.LockTTL, s.opts.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.IncBookingRejected("busy")
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	defer release()

	// Recompute under the lock; cached lists may predate a concurrent booking.
	slots, err := s.slots(ctx, date, svc.DurationMinutes, false)
	if err != nil {
		return nil, err
	}
	if !availability.Contains(s.dropElapsed(date, slots), start.String()) {
		metrics.IncBookingRejected("slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	appt := &model.Appointment{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
		Date:        date,
		StartTime:   start.String(),
		EndTime:     end,
		Status:      model.StatusConfirmed,
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncBookingRejected("slot_unavailable")
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("service_id", svc.ID).
		Str("date", dateKey).
		Str("start", appt.StartTime).
		Msg("appointment booked")

	s.publish(events.AppointmentCreated, events.AppointmentPayload{
		AppointmentID: appt.ID,
		ServiceID:     appt.ServiceID,
		Date:          dateKey,
		StartTime:     appt.StartTime,
		Status:        string(appt.Status),
	})
	return appt, nil
}

// ChangeStatus moves an appointment along its lifecycle.
func (s *Service) ChangeStatus(ctx context.Context, id string, next model.AppointmentStatus) (*model.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	if !appt.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
	}

	prev := appt.Status
	if err := s.repo.UpdateAppointmentStatus(ctx, id, prev, next); err != nil {
		if errors.Is(err, database.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, prev)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	appt.Status = next
	appt.UpdatedAt = s.now()

	s.publish(events.AppointmentStatusChanged, events.AppointmentPayload{
		AppointmentID: appt.ID,
		ServiceID:     appt.ServiceID,
		Date:          appt.Date.Format(model.DateLayout),
		StartTime:     appt.StartTime,
		Status:        string(next),
		PrevStatus:    string(prev),
	})
	return appt, nil
}

// SetHours replaces the schedule of one weekday.
func (s *Service) SetHours(ctx context.Context, h *model.OperatingHours) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !h.IsOpen {
		h.OpenTime, h.CloseTime = "", ""
	}
	if err := s.repo.UpsertHours(ctx, h); err != nil {
		return err
	}
	s.publish(events.CalendarChanged, events.CalendarPayload{Reason: "hours " + h.Weekday.String()})
	return nil
}

// AddDayOff closes the salon for a full day.
func (s *Service) AddDayOff(ctx context.Context, d *model.DayOff) error {
	if d.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if err := s.repo.CreateDayOff(ctx, d); err != nil {
		return err
	}
	s.publish(events.CalendarChanged, events.CalendarPayload{Date: d.Date.Format(model.DateLayout), Reason: "day off added"})
	return nil
}

// RemoveDayOff reopens a closed day.
func (s *Service) RemoveDayOff(ctx context.Context, id string) error {
	date, err := s.repo.DeleteDayOff(ctx, id)
	if err != nil {
		return err
	}
	payload := events.CalendarPayload{Reason: "day off removed"}
	if !date.IsZero() {
		payload.Date = date.Format(model.DateLayout)
	}
	s.publish(events.CalendarChanged, payload)
	return nil
}

func (s *Service) activeService(ctx context.Context, id string) (*model.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if !svc.IsActive {
		return nil, ErrServiceInactive
	}
	return svc, nil
}

func (s *Service) checkDate(date time.Time) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	today, _ := s.today()
	if date.Before(today) {
		return ErrPastDate
	}
	if date.After(today.Add(s.opts.MaxAdvance)) {
		return ErrDateTooFar
	}
	return nil
}

// slots loads the calendar for date and runs the engine. With useCache the
// result is read from the slot cache first. Computed lists are always written
// back, guarded by the cache version taken before loading.
func (s *Service) slots(ctx context.Context, date time.Time, duration int, useCache bool) ([]availability.TimeSlot, error) {
	var version string
	if s.cache != nil {
		if useCache {
			if cached, ok := s.cache.Get(ctx, date, duration); ok {
				metrics.IncCacheResult(true)
				return cached, nil
			}
			metrics.IncCacheResult(false)
		}
		version = s.cache.Version(ctx, date)
	}

	started := time.Now()
	defer func() { metrics.ObserveAvailability(time.Since(started)) }()

	hours, err := s.repo.GetWeeklyHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load hours: %w", err)
	}
	daysOff, err := s.repo.ListDaysOff(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("load days off: %w", err)
	}
	appts, err := s.repo.AppointmentsOnDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	slots, err := s.engine.Compute(availability.Query{
		Date:            date,
		DurationMinutes: duration,
		Hours:           hours,
		DaysOff:         daysOff,
		Appointments:    appts,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && version != "" {
		s.cache.Set(ctx, date, duration, version, slots)
	}
	return slots, nil
}

// dropElapsed removes start times that have already passed when date is today.
func (s *Service) dropElapsed(date time.Time, slots []availability.TimeSlot) []availability.TimeSlot {
	today, now := s.today()
	if !model.SameDay(date, today) {
		return slots
	}
	out := make([]availability.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		c, err := model.ParseClock(slot.Time)
		if err != nil || c <= now {
			continue
		}
		out = append(out, slot)
	}
	return out
}

func (s *Service) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event")
	}
}
