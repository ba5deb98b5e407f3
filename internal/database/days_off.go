package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salon/internal/model"
)

func scanDayOff(row rowScanner) (*model.DayOff, error) {
	var (
		d       model.DayOff
		dateStr string
		reason  sql.NullString
	)
	if err := row.Scan(&d.ID, &dateStr, &reason, &d.CreatedAt); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("day off %s date %q: %w", d.ID, dateStr, err)
	}
	d.Date = date
	d.Reason = reason.String
	return &d, nil
}

// ListDaysOff returns days off between from and to inclusive, ordered by date.
// Zero bounds are open.
func (db *DB) ListDaysOff(ctx context.Context, from, to time.Time) ([]model.DayOff, error) {
	q := `SELECT id, date, reason, created_at FROM days_off WHERE 1=1`
	var args []any
	if !from.IsZero() {
		q += ` AND date >= ?`
		args = append(args, from.Format(model.DateLayout))
	}
	if !to.IsZero() {
		q += ` AND date <= ?`
		args = append(args, to.Format(model.DateLayout))
	}
	q += ` ORDER BY date`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list days off: %w", err)
	}
	defer rows.Close()

	var out []model.DayOff
	for rows.Next() {
		d, err := scanDayOff(rows)
		if err != nil {
			db.logger.Warn().Err(err).Msg("skipping malformed day off row")
			continue
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetDayOff returns the day off on date, if any.
func (db *DB) GetDayOff(ctx context.Context, date time.Time) (*model.DayOff, error) {
	d, err := scanDayOff(db.QueryRowContext(ctx,
		`SELECT id, date, reason, created_at FROM days_off WHERE date = ?`,
		date.Format(model.DateLayout),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get day off: %w", err)
	}
	return d, nil
}

// CreateDayOff inserts d. A second day off on the same date is ErrConflict.
func (db *DB) CreateDayOff(ctx context.Context, d *model.DayOff) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Date = model.DateOnly(d.Date)
	d.CreatedAt = time.Now()

	_, err := db.ExecContext(ctx, `
		INSERT INTO days_off (id, date, reason, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Date.Format(model.DateLayout), nullString(d.Reason), d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("day off %s: %w", d.Date.Format(model.DateLayout), ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create day off: %w", err)
	}
	return nil
}

// DeleteDayOff removes a day off and returns its date. A stored date that
// does not parse is returned as the zero time.
func (db *DB) DeleteDayOff(ctx context.Context, id string) (time.Time, error) {
	var dateStr string
	err := db.QueryRowContext(ctx, `SELECT date FROM days_off WHERE id = ?`, id).Scan(&dateStr)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get day off %s: %w", id, err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM days_off WHERE id = ?`, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("delete day off %s: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return time.Time{}, err
	}

	date, err := model.ParseDate(dateStr)
	if err != nil {
		db.logger.Warn().Err(err).Str("day_off_id", id).Str("date", dateStr).Msg("deleted day off with malformed date")
		return time.Time{}, nil
	}
	return date, nil
}
