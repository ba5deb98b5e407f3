package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"salon/internal/database"
	"salon/internal/lock"
	"salon/internal/model"
)

// AppointmentLister lists stored appointments.
type AppointmentLister interface {
	ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]model.Appointment, error)
}

// StatusChanger moves an appointment along its lifecycle.
type StatusChanger interface {
	ChangeStatus(ctx context.Context, id string, next model.AppointmentStatus) (*model.Appointment, error)
}

// Config holds the daily run time of the completer.
type Config struct {
	Location *time.Location
	// DailyHour and DailyMinute are the salon-local time of the daily run.
	DailyHour     int
	DailyMinute   int
	CheckInterval time.Duration
}

// Completer marks appointments from previous days that are still pending
// or confirmed as completed, once per day.
type Completer struct {
	config      Config
	store       AppointmentLister
	changer     StatusChanger
	locker      lock.Locker
	logger      zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
	lastRunDate string
}

// NewCompleter creates a completer. locker may be nil.
func NewCompleter(config Config, store AppointmentLister, changer StatusChanger, locker lock.Locker, logger *zerolog.Logger) *Completer {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if locker == nil {
		locker = lock.NewLocalLock()
	}
	return &Completer{
		config:  config,
		store:   store,
		changer: changer,
		locker:  locker,
		logger:  logger.With().Str("component", "completer").Logger(),
		now:     time.Now,
	}
}

// Start runs the check loop until ctx is done.
func (c *Completer) Start(ctx context.Context) {
	c.logger.Info().
		Str("timezone", c.config.Location.String()).
		Str("daily_time", fmt.Sprintf("%02d:%02d", c.config.DailyHour, c.config.DailyMinute)).
		Msg("completer started")

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("completer stopped")
			return
		case <-ticker.C:
			c.checkAndRun(ctx)
		}
	}
}

// checkAndRun runs once per salon-local day, at or after the daily time.
func (c *Completer) checkAndRun(ctx context.Context) {
	now := c.now().In(c.config.Location)
	today := now.Format(model.DateLayout)

	c.mu.Lock()
	alreadyRan := c.lastRunDate == today
	c.mu.Unlock()
	if alreadyRan {
		return
	}

	if now.Hour()*60+now.Minute() < c.config.DailyHour*60+c.config.DailyMinute {
		return
	}

	c.mu.Lock()
	c.lastRunDate = today
	c.mu.Unlock()

	if _, err := c.RunOnce(ctx); err != nil {
		c.logger.Error().Err(err).Str("date", today).Msg("completer run failed")
	}
}

// RunOnce completes every open appointment dated before today and returns
// how many were changed.
func (c *Completer) RunOnce(ctx context.Context) (int, error) {
	local := c.now().In(c.config.Location)
	y, m, d := local.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	key := "completer:" + today.Format(model.DateLayout)
	ok, err := c.locker.Lock(ctx, key, 10*time.Minute)
	if err != nil {
		return 0, fmt.Errorf("acquire completer lock: %w", err)
	}
	if !ok {
		c.logger.Debug().Msg("completer already running elsewhere")
		return 0, nil
	}
	defer func() { _ = c.locker.Unlock(context.WithoutCancel(ctx), key) }()

	started := time.Now()
	appts, err := c.store.ListAppointments(ctx, database.AppointmentFilter{To: today.AddDate(0, 0, -1)})
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	var completed, failed int
	for i := range appts {
		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		default:
		}

		a := &appts[i]
		if a.Status.IsTerminal() {
			continue
		}
		if _, err := c.changer.ChangeStatus(ctx, a.ID, model.StatusCompleted); err != nil {
			failed++
			c.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("complete appointment")
			continue
		}
		completed++
	}

	c.logger.Info().
		Int("completed", completed).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("past appointments completed")
	return completed, nil
}
