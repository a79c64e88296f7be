package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// CreateLocation creates a new stock location.
func CreateLocation(ctx context.Context, db *sql.DB, name, locationType, address string) (*model.Location, error) {
	if locationType != model.LocationTypeStore && locationType != model.LocationTypeWarehouse {
		return nil, fmt.Errorf("%w: location type %q", model.ErrInvalidInput, locationType)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO locations (name, type, address) VALUES (?, ?, ?)`,
		name, locationType, address,
	)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting location id: %w", err)
	}

	return GetLocation(ctx, db, id)
}

// GetLocation returns a location by ID, including soft-deleted ones.
func GetLocation(ctx context.Context, db *sql.DB, id int64) (*model.Location, error) {
	l := &model.Location{}
	var address sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, type, address, created_at, deleted_at
		 FROM locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.Type, &address, &l.CreatedAt, &l.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	l.Address = address.String
	return l, nil
}

// ActiveLocation returns a location unless it is missing or soft-deleted.
func ActiveLocation(ctx context.Context, db *sql.DB, id int64) (*model.Location, error) {
	l, err := GetLocation(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if l.DeletedAt != nil {
		return nil, fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}
	return l, nil
}

// ListLocations returns all non-deleted locations, optionally filtered by type.
func ListLocations(ctx context.Context, db *sql.DB, locationType string) ([]model.Location, error) {
	query := `SELECT id, name, type, address, created_at, deleted_at
	          FROM locations WHERE deleted_at IS NULL`
	var args []any
	if locationType != "" {
		query += ` AND type = ?`
		args = append(args, locationType)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		var address sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &address, &l.CreatedAt, &l.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		l.Address = address.String
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// DeleteLocation soft-deletes a location.
func DeleteLocation(ctx context.Context, db *sql.DB, id int64) error {
	return execOne(ctx, db, fmt.Sprintf("location %d", id),
		`UPDATE locations SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
}
