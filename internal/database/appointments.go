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

// AppointmentFilter narrows ListAppointments. Zero fields are ignored.
type AppointmentFilter struct {
	From      time.Time
	To        time.Time
	Status    model.AppointmentStatus
	ServiceID string
}

const appointmentSelect = `
	SELECT a.id, a.service_id, COALESCE(s.name, ''), a.client_name, a.client_email, a.client_phone,
	       a.date, a.start_time, a.end_time, a.status, a.notes, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN services s ON s.id = a.service_id`

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var (
		a              model.Appointment
		phone, notes   sql.NullString
		dateStr, state string
	)
	if err := row.Scan(&a.ID, &a.ServiceID, &a.ServiceName, &a.ClientName, &a.ClientEmail, &phone,
		&dateStr, &a.StartTime, &a.EndTime, &state, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("appointment %s date %q: %w", a.ID, dateStr, err)
	}
	a.Date = date
	a.Status = model.AppointmentStatus(state)
	a.ClientPhone = phone.String
	a.Notes = notes.String
	return &a, nil
}

// CreateAppointment inserts a inside a transaction that first re-checks the
// date for overlapping occupying appointments. An overlap is ErrSlotTaken.
func (db *DB) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	start, end, err := a.Interval()
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusConfirmed
	}
	a.Date = model.DateOnly(a.Date)
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	dateStr := a.Date.Format(model.DateLayout)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, start_time, end_time FROM appointments
		WHERE date = ? AND status != ?`,
		dateStr, string(model.StatusCancelled),
	)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	for rows.Next() {
		existing := model.Appointment{Date: a.Date}
		if err := rows.Scan(&existing.ID, &existing.StartTime, &existing.EndTime); err != nil {
			rows.Close()
			return err
		}
		es, ee, err := existing.Interval()
		if err != nil {
			db.logger.Warn().Err(err).Str("appointment_id", existing.ID).Msg("skipping malformed appointment in overlap check")
			continue
		}
		if model.Overlaps(start, end, es, ee) {
			rows.Close()
			return fmt.Errorf("%s %s-%s: %w", dateStr, a.StartTime, a.EndTime, ErrSlotTaken)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (
			id, service_id, client_name, client_email, client_phone, date, start_time, end_time,
			status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ServiceID, a.ClientName, a.ClientEmail, nullString(a.ClientPhone), dateStr,
		a.StartTime, a.EndTime, string(a.Status), nullString(a.Notes), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit appointment: %w", err)
	}
	return nil
}

// GetAppointment returns an appointment by id.
func (db *DB) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

// ListAppointments returns appointments matching f ordered by date and start time.
func (db *DB) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	q := appointmentSelect + ` WHERE 1=1`
	var args []any
	if !f.From.IsZero() {
		q += ` AND a.date >= ?`
		args = append(args, f.From.Format(model.DateLayout))
	}
	if !f.To.IsZero() {
		q += ` AND a.date <= ?`
		args = append(args, f.To.Format(model.DateLayout))
	}
	if f.Status != "" {
		q += ` AND a.status = ?`
		args = append(args, string(f.Status))
	}
	if f.ServiceID != "" {
		q += ` AND a.service_id = ?`
		args = append(args, f.ServiceID)
	}
	q += ` ORDER BY a.date, a.start_time`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			db.logger.Warn().Err(err).Msg("skipping malformed appointment row")
			continue
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AppointmentsOnDate returns every appointment on date, cancelled ones included.
func (db *DB) AppointmentsOnDate(ctx context.Context, date time.Time) ([]model.Appointment, error) {
	return db.ListAppointments(ctx, AppointmentFilter{From: date, To: date})
}

// UpdateAppointmentStatus moves one appointment from status from to status to.
// The write only applies while the stored status is still from; otherwise it
// returns ErrStatusChanged.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update appointment %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment %s status: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = db.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get appointment %s status: %w", id, err)
	}
	return fmt.Errorf("appointment %s is %s, not %s: %w", id, current, from, ErrStatusChanged)
}
