package database

import (
	"context"
	"errors"
	"fmt"

	"salon/internal/config"
	"salon/internal/model"
)

// SyncResult reports what SyncSalonConfig changed.
type SyncResult struct {
	HoursInserted   int
	HolidaysCreated int
}

// SyncSalonConfig seeds operating hours and holidays from salon.yaml.
// Weekdays that already have a row are left alone so admin edits survive
// restarts; holidays are created as days off unless that date already has one.
func (db *DB) SyncSalonConfig(ctx context.Context, cfg *config.SalonConfig) (SyncResult, error) {
	var res SyncResult
	if cfg == nil {
		return res, fmt.Errorf("salon config is nil")
	}

	for _, h := range cfg.WeeklyHours().Rows() {
		inserted, err := db.insertHoursIfMissing(ctx, h)
		if err != nil {
			return res, err
		}
		if inserted {
			res.HoursInserted++
		}
	}

	for _, d := range cfg.HolidayDaysOff() {
		d := d
		err := db.CreateDayOff(ctx, &d)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("sync holiday %s: %w", d.Date.Format(model.DateLayout), err)
		}
		res.HolidaysCreated++
	}

	return res, nil
}
