package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// CreateVariant adds a product variant to the catalog.
func CreateVariant(ctx context.Context, db *sql.DB, v model.Variant) (*model.Variant, error) {
	if v.ID == "" || v.Name == "" {
		return nil, fmt.Errorf("%w: variant id and name are required", model.ErrInvalidInput)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO variants (id, name, brand, size) VALUES (?, ?, ?, ?)`,
		v.ID, v.Name, v.Brand, v.Size,
	)
	if err != nil {
		return nil, fmt.Errorf("creating variant: %w", err)
	}

	return GetVariant(ctx, db, v.ID)
}

// GetVariant returns a variant by ID.
func GetVariant(ctx context.Context, db *sql.DB, id string) (*model.Variant, error) {
	v := &model.Variant{}
	var brand, mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, brand, size, photo_mime, created_at, updated_at
		 FROM variants WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &brand, &v.Size, &mime, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting variant: %w", err)
	}
	v.Brand = brand.String
	v.PhotoMIME = mime.String
	return v, nil
}

// ListVariants returns the catalog ordered by name and size.
func ListVariants(ctx context.Context, db *sql.DB) ([]model.Variant, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, brand, size, photo_mime, created_at, updated_at
		 FROM variants ORDER BY name, size`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	defer rows.Close()

	var variants []model.Variant
	for rows.Next() {
		var v model.Variant
		var brand, mime sql.NullString
		if err := rows.Scan(&v.ID, &v.Name, &brand, &v.Size, &mime, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		v.Brand = brand.String
		v.PhotoMIME = mime.String
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// SetVariantPhoto stores a variant's photo and its thumbnail.
func SetVariantPhoto(ctx context.Context, db *sql.DB, id string, photo, thumbnail []byte, mime string) error {
	return execOne(ctx, db, "variant "+id,
		`UPDATE variants SET photo = ?, thumbnail = ?, photo_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, photo, thumbnail, mime, id)
}

// GetVariantPhoto returns a variant's photo (or its thumbnail) and MIME type.
func GetVariantPhoto(ctx context.Context, db *sql.DB, id string, thumbnail bool) ([]byte, string, error) {
	column := "photo"
	if thumbnail {
		column = "thumbnail"
	}

	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+column+`, photo_mime FROM variants WHERE id = ?`, id,
	).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("variant %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting variant photo: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("variant %s photo: %w", id, model.ErrNotFound)
	}
	return data, mime.String, nil
}
