package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"salon/internal/model"
)

// ListCategories returns categories ordered for display.
func (db *DB) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, sort_order, created_at, updated_at
		FROM categories
		ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory returns a category by id.
func (db *DB) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := db.QueryRowContext(ctx, `
		SELECT id, name, sort_order, created_at, updated_at
		FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

// CreateCategory inserts c, assigning an id when empty.
func (db *DB) CreateCategory(ctx context.Context, c *model.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := db.ExecContext(ctx, `
		INSERT INTO categories (id, name, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SortOrder, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// UpdateCategory saves name and sort order.
func (db *DB) UpdateCategory(ctx context.Context, c *model.Category) error {
	c.UpdatedAt = time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE categories SET name = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.SortOrder, c.UpdatedAt, c.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return expectOne(res)
}

// DeleteCategory removes a category; its services become uncategorised.
func (db *DB) DeleteCategory(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return expectOne(res)
}

const serviceColumns = `id, category_id, name, description, duration_minutes, price, is_active, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*model.Service, error) {
	var (
		s                 model.Service
		categoryID, descr sql.NullString
		price             string
	)
	if err := row.Scan(&s.ID, &categoryID, &s.Name, &descr, &s.DurationMinutes, &price,
		&s.IsActive, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.CategoryID = categoryID.String
	s.Description = descr.String

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("service %s price %q: %w", s.ID, price, err)
	}
	s.Price = p
	return &s, nil
}

// ListServices returns services ordered for display. With activeOnly,
// deactivated services are omitted.
func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	q := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY sort_order, name`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetService returns a service by id.
func (db *DB) GetService(ctx context.Context, id string) (*model.Service, error) {
	s, err := scanService(db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return s, nil
}

// CreateService inserts s, assigning an id when empty.
func (db *DB) CreateService(ctx context.Context, s *model.Service) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := db.ExecContext(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, nullString(s.CategoryID), s.Name, nullString(s.Description), s.DurationMinutes,
		s.Price.String(), s.IsActive, s.SortOrder, s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("service %s: %w", s.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// UpdateService saves every mutable field of s.
func (db *DB) UpdateService(ctx context.Context, s *model.Service) error {
	s.UpdatedAt = time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE services
		SET category_id = ?, name = ?, description = ?, duration_minutes = ?, price = ?,
		    is_active = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		nullString(s.CategoryID), s.Name, nullString(s.Description), s.DurationMinutes, s.Price.String(),
		s.IsActive, s.SortOrder, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update service %s: %w", s.ID, err)
	}
	return expectOne(res)
}

// DeactivateService hides a service from booking. Existing appointments keep
// their reference, so services are never deleted.
func (db *DB) DeactivateService(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivate service %s: %w", id, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
