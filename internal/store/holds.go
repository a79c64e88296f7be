package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// Hold records that a transfer needs operator attention. An existing hold
// is kept, so the first divergence stays on record.
func (s *Transfers) Hold(ctx context.Context, h *model.Hold) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO transfer_holds
		     (transfer_id, action, effect, location_id, variant_id, quantity, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.TransferID, h.Action, h.Effect, h.LocationID, h.VariantID, h.Quantity, h.Reason, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("holding transfer: %w", err)
	}
	return nil
}

// Held returns the hold on a transfer, or nil if there is none.
func (s *Transfers) Held(ctx context.Context, transferID string) (*model.Hold, error) {
	var h model.Hold
	err := s.DB.QueryRowContext(ctx,
		`SELECT transfer_id, action, effect, location_id, variant_id, quantity, reason, created_at
		 FROM transfer_holds WHERE transfer_id = ?`, transferID,
	).Scan(&h.TransferID, &h.Action, &h.Effect, &h.LocationID, &h.VariantID, &h.Quantity, &h.Reason, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer hold: %w", err)
	}
	return &h, nil
}

// Release drops the hold on a transfer. It returns model.ErrNotFound if the
// transfer was not held.
func (s *Transfers) Release(ctx context.Context, transferID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM transfer_holds WHERE transfer_id = ?`, transferID)
	if err != nil {
		return fmt.Errorf("releasing transfer hold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing transfer hold: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("hold on transfer %s: %w", transferID, model.ErrNotFound)
	}
	return nil
}
