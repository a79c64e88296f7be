package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/model"
)

// Ledger owns the per-location, per-variant quantity counters. Every change
// is journaled in inventory_movements. Changes caused by a transfer carry a
// ref, and at most one live movement exists per (transfer, kind), so applying
// the same ref twice changes nothing the second time.
type Ledger struct {
	DB    *sql.DB
	Clock clock.Clock
}

// NewLedger returns a ledger over db.
func NewLedger(db *sql.DB, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Ledger{DB: db, Clock: clk}
}

// Debit removes qty from the line. It fails with model.ErrInsufficientStock
// if the line holds less than qty or does not exist. It returns the quantity
// after the call and whether this call changed anything.
func (l *Ledger) Debit(ctx context.Context, key model.LineKey, qty int, ref model.LedgerRef) (int, bool, error) {
	ref.Kind = model.EffectDebitSource
	return l.applyRef(ctx, key, -qty, ref)
}

// Credit adds qty to the line, creating it if absent.
func (l *Ledger) Credit(ctx context.Context, key model.LineKey, qty int, ref model.LedgerRef) (int, bool, error) {
	ref.Kind = model.EffectCreditDestination
	return l.applyRef(ctx, key, qty, ref)
}

// ReverseDebit gives back stock removed by an earlier debit. The numeric
// effect equals Credit; the journal records it as a reversal.
func (l *Ledger) ReverseDebit(ctx context.Context, key model.LineKey, qty int, ref model.LedgerRef) (int, bool, error) {
	ref.Kind = model.EffectReverseDebit
	return l.applyRef(ctx, key, qty, ref)
}

// Apply dispatches a ledger effect to the matching operation.
func (l *Ledger) Apply(ctx context.Context, eff model.LedgerEffect, ref model.LedgerRef) (int, bool, error) {
	switch eff.Kind {
	case model.EffectDebitSource:
		return l.Debit(ctx, eff.Key(), eff.Quantity, ref)
	case model.EffectCreditDestination:
		return l.Credit(ctx, eff.Key(), eff.Quantity, ref)
	case model.EffectReverseDebit:
		return l.ReverseDebit(ctx, eff.Key(), eff.Quantity, ref)
	}
	return 0, false, fmt.Errorf("%w: ledger effect %q", model.ErrInvalidInput, eff.Kind)
}

// Revert undoes the live movement recorded under ref and marks it reverted.
// It reports false when there is nothing to revert.
func (l *Ledger) Revert(ctx context.Context, ref model.LedgerRef) (bool, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id    int64
		key   model.LineKey
		delta int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, location_id, variant_id, delta FROM inventory_movements
		 WHERE transfer_id = ? AND kind = ? AND reverted_at IS NULL`,
		ref.TransferID, ref.Kind,
	).Scan(&id, &key.LocationID, &key.VariantID, &delta)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finding movement: %w", err)
	}

	now := l.Clock.Now()
	if _, err := l.change(ctx, tx, key, -delta, now); err != nil {
		return false, fmt.Errorf("reverting %s: %w", ref.Kind, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE inventory_movements SET reverted_at = ? WHERE id = ?`, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking movement reverted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing revert: %w", err)
	}
	return true, nil
}

// AddStock adds stock to a location outside any transfer.
func (l *Ledger) AddStock(ctx context.Context, key model.LineKey, qty int, actorID *int64) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	}
	return l.record(ctx, key, qty, model.MovementStock, actorID, "")
}

// Adjust corrects a line by delta (for counts and losses). Delta can be
// negative but the line never goes below zero. A line adjusted to zero is kept.
func (l *Ledger) Adjust(ctx context.Context, key model.LineKey, delta int, notes string, actorID *int64) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: delta must be non-zero", model.ErrInvalidInput)
	}
	return l.record(ctx, key, delta, model.MovementAdjust, actorID, notes)
}

func (l *Ledger) record(ctx context.Context, key model.LineKey, delta int, kind model.EffectKind, actorID *int64, notes string) (int, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM locations WHERE id = ? AND deleted_at IS NULL`, key.LocationID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("location %d: %w", key.LocationID, model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("checking location: %w", err)
	}

	now := l.Clock.Now()
	after, err := l.change(ctx, tx, key, delta, now)
	if err != nil {
		return 0, err
	}

	m := model.Movement{Kind: kind, LocationID: key.LocationID, VariantID: key.VariantID,
		Delta: delta, QuantityAfter: after, ActorID: actorID, Notes: notes, CreatedAt: now}
	if err := insertMovement(ctx, tx, m); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s: %w", kind, err)
	}
	return after, nil
}

func (l *Ledger) applyRef(ctx context.Context, key model.LineKey, delta int, ref model.LedgerRef) (int, bool, error) {
	if delta == 0 {
		return 0, false, fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	}
	if ref.TransferID == "" {
		return 0, false, fmt.Errorf("%w: ledger ref without transfer", model.ErrInvalidInput)
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// A live movement under the same ref means an earlier call already
	// applied this effect.
	var live int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_movements
		 WHERE transfer_id = ? AND kind = ? AND reverted_at IS NULL`,
		ref.TransferID, ref.Kind,
	).Scan(&live)
	if err != nil {
		return 0, false, fmt.Errorf("checking movement journal: %w", err)
	}
	if live > 0 {
		current, err := quantity(ctx, tx, key)
		if err != nil {
			return 0, false, err
		}
		return current, false, nil
	}

	now := l.Clock.Now()
	after, err := l.change(ctx, tx, key, delta, now)
	if err != nil {
		return 0, false, err
	}

	actor := &ref.ActorID
	if ref.ActorID == 0 {
		actor = nil
	}
	m := model.Movement{TransferID: ref.TransferID, Kind: ref.Kind, LocationID: key.LocationID,
		VariantID: key.VariantID, Delta: delta, QuantityAfter: after, ActorID: actor, CreatedAt: now}
	if err := insertMovement(ctx, tx, m); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("committing %s: %w", ref.Kind, err)
	}
	return after, true, nil
}

// change applies delta to a line inside tx and returns the new quantity.
// Transactions take the write lock at BEGIN, so the read and the write below
// cannot interleave with another writer.
func (l *Ledger) change(ctx context.Context, tx *sql.Tx, key model.LineKey, delta int, now time.Time) (int, error) {
	current, err := quantity(ctx, tx, key)
	if err != nil {
		return 0, err
	}

	after := current + delta
	if after < 0 {
		return 0, fmt.Errorf("%w: %s at location %d has %d, need %d",
			model.ErrInsufficientStock, key.VariantID, key.LocationID, current, -delta)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory (location_id, variant_id, quantity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (location_id, variant_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`,
		key.LocationID, key.VariantID, after, now,
	)
	if err != nil {
		return 0, fmt.Errorf("updating inventory: %w", err)
	}
	return after, nil
}

func quantity(ctx context.Context, tx *sql.Tx, key model.LineKey) (int, error) {
	var q int
	err := tx.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE location_id = ? AND variant_id = ?`,
		key.LocationID, key.VariantID,
	).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading inventory line: %w", err)
	}
	return q, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m model.Movement) error {
	var transferID, notes sql.NullString
	if m.TransferID != "" {
		transferID = sql.NullString{String: m.TransferID, Valid: true}
	}
	if m.Notes != "" {
		notes = sql.NullString{String: m.Notes, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO inventory_movements
		     (transfer_id, kind, location_id, variant_id, delta, quantity_after, actor_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transferID, m.Kind, m.LocationID, m.VariantID, m.Delta, m.QuantityAfter, m.ActorID, notes, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journaling movement: %w", err)
	}
	return nil
}
