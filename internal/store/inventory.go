package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/erazemk/prenos/internal/model"
)

// Quantity returns the quantity on a line. A missing line holds zero.
func (l *Ledger) Quantity(ctx context.Context, key model.LineKey) (int, error) {
	var q int
	err := l.DB.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE location_id = ? AND variant_id = ?`,
		key.LocationID, key.VariantID,
	).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting quantity: %w", err)
	}
	return q, nil
}

// Line returns one inventory line, or model.ErrNotFound if it was never created.
func (l *Ledger) Line(ctx context.Context, key model.LineKey) (*model.InventoryLine, error) {
	lines, err := l.Lines(ctx, LineFilter{LocationID: key.LocationID, VariantID: key.VariantID})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("inventory line %d/%s: %w", key.LocationID, key.VariantID, model.ErrNotFound)
	}
	return &lines[0], nil
}

// LineFilter narrows Lines. Zero values match everything.
type LineFilter struct {
	LocationID int64
	VariantID  string
}

// Lines returns inventory lines with location and variant names joined in.
// Lines at zero are included.
func (l *Ledger) Lines(ctx context.Context, f LineFilter) ([]model.InventoryLine, error) {
	var (
		where []string
		args  []any
	)
	if f.LocationID != 0 {
		where = append(where, "inv.location_id = ?")
		args = append(args, f.LocationID)
	}
	if f.VariantID != "" {
		where = append(where, "inv.variant_id = ?")
		args = append(args, f.VariantID)
	}

	query := `SELECT inv.location_id, inv.variant_id, inv.quantity, inv.updated_at,
	                 loc.name, COALESCE(v.name, '')
	          FROM inventory inv
	          JOIN locations loc ON loc.id = inv.location_id
	          LEFT JOIN variants v ON v.id = inv.variant_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY loc.name, inv.variant_id"

	rows, err := l.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	var lines []model.InventoryLine
	for rows.Next() {
		var line model.InventoryLine
		if err := rows.Scan(&line.LocationID, &line.VariantID, &line.Quantity, &line.UpdatedAt,
			&line.LocationName, &line.VariantName); err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Movements returns the journal for a transfer, oldest first, including
// reverted entries.
func (l *Ledger) Movements(ctx context.Context, transferID string) ([]model.Movement, error) {
	rows, err := l.DB.QueryContext(ctx,
		`SELECT id, transfer_id, kind, location_id, variant_id, delta, quantity_after,
		        actor_id, notes, created_at, reverted_at
		 FROM inventory_movements WHERE transfer_id = ? ORDER BY id`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	defer rows.Close()

	var out []model.Movement
	for rows.Next() {
		var (
			m          model.Movement
			tid, notes sql.NullString
		)
		if err := rows.Scan(&m.ID, &tid, &m.Kind, &m.LocationID, &m.VariantID, &m.Delta, &m.QuantityAfter,
			&m.ActorID, &notes, &m.CreatedAt, &m.RevertedAt); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.TransferID = tid.String
		m.Notes = notes.String
		out = append(out, m)
	}
	return out, rows.Err()
}
