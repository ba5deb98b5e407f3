package database

import (
	"context"
	"fmt"
	"time"

	"salon/internal/model"
)

// GetWeeklyHours returns every stored weekday row. Rows are returned as
// stored; a malformed time is left for the availability engine to skip.
func (db *DB) GetWeeklyHours(ctx context.Context) (model.WeeklyHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT weekday, is_open, open_time, close_time, updated_at
		FROM operating_hours
		ORDER BY weekday`)
	if err != nil {
		return nil, fmt.Errorf("get weekly hours: %w", err)
	}
	defer rows.Close()

	var list []model.OperatingHours
	for rows.Next() {
		var (
			h   model.OperatingHours
			day int
		)
		if err := rows.Scan(&day, &h.IsOpen, &h.OpenTime, &h.CloseTime, &h.UpdatedAt); err != nil {
			return nil, err
		}
		h.Weekday = model.Weekday(day)
		if !h.Weekday.Valid() {
			db.logger.Warn().Int("weekday", day).Msg("skipping operating hours row with invalid weekday")
			continue
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.NewWeeklyHours(list), nil
}

// UpsertHours stores the schedule of one weekday.
func (db *DB) UpsertHours(ctx context.Context, h *model.OperatingHours) error {
	h.UpdatedAt = time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO operating_hours (weekday, is_open, open_time, close_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(weekday) DO UPDATE SET
			is_open = excluded.is_open,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			updated_at = excluded.updated_at`,
		int(h.Weekday), h.IsOpen, h.OpenTime, h.CloseTime, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert hours %s: %w", h.Weekday, err)
	}
	return nil
}

// insertHoursIfMissing stores h only when its weekday has no row yet.
func (db *DB) insertHoursIfMissing(ctx context.Context, h model.OperatingHours) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO operating_hours (weekday, is_open, open_time, close_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(weekday) DO NOTHING`,
		int(h.Weekday), h.IsOpen, h.OpenTime, h.CloseTime, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("insert hours %s: %w", h.Weekday, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
