package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/erazemk/prenos/internal/model"
)

// Transfers is the durable record store for transfers. Every write is
// guarded by the row's version.
type Transfers struct {
	DB *sql.DB
}

// NewTransfers returns a transfer store over db.
func NewTransfers(db *sql.DB) *Transfers {
	return &Transfers{DB: db}
}

const transferColumns = `id, variant_id, quantity, source_location_id, destination_location_id,
	urgency, pickup_type, status, version, requester_id, handler_id, carrier_id,
	created_at, accepted_at, courier_assigned_at, picked_up_at, delivered_at,
	confirmed_at, cancelled_at, failed_at,
	notes, handler_notes, rejection_reason, courier_notes, estimated_pickup_minutes,
	pickup_notes, delivery_notes, failure_reason, reception_notes`

// Create inserts a new transfer at version 1.
func (s *Transfers) Create(ctx context.Context, t *model.Transfer) error {
	t.Version = 1
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.VariantID, t.Quantity, t.SourceLocationID, t.DestinationLocationID,
		t.Urgency, t.PickupType, t.Status, t.Version, t.RequesterID, t.HandlerID, t.CarrierID,
		t.CreatedAt, t.AcceptedAt, t.CourierAssignedAt, t.PickedUpAt, t.DeliveredAt,
		t.ConfirmedAt, t.CancelledAt, t.FailedAt,
		t.Notes, t.HandlerNotes, t.RejectionReason, t.CourierNotes, t.EstimatedPickupMinutes,
		t.PickupNotes, t.DeliveryNotes, t.FailureReason, t.ReceptionNotes,
	)
	if err != nil {
		return fmt.Errorf("creating transfer: %w", err)
	}
	return nil
}

// Get returns a transfer by ID, or model.ErrNotFound.
func (s *Transfers) Get(ctx context.Context, id string) (*model.Transfer, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id,
	)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transfer %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// Update persists t if the stored version still equals expected. On success
// t.Version is bumped. A version mismatch returns
// model.ErrConcurrentModification and leaves the row untouched.
func (s *Transfers) Update(ctx context.Context, t *model.Transfer, expected int64) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE transfers SET
		     status = ?, version = version + 1, handler_id = ?, carrier_id = ?,
		     accepted_at = ?, courier_assigned_at = ?, picked_up_at = ?, delivered_at = ?,
		     confirmed_at = ?, cancelled_at = ?, failed_at = ?,
		     handler_notes = ?, rejection_reason = ?, courier_notes = ?, estimated_pickup_minutes = ?,
		     pickup_notes = ?, delivery_notes = ?, failure_reason = ?, reception_notes = ?
		 WHERE id = ? AND version = ?`,
		t.Status, t.HandlerID, t.CarrierID,
		t.AcceptedAt, t.CourierAssignedAt, t.PickedUpAt, t.DeliveredAt,
		t.ConfirmedAt, t.CancelledAt, t.FailedAt,
		t.HandlerNotes, t.RejectionReason, t.CourierNotes, t.EstimatedPickupMinutes,
		t.PickupNotes, t.DeliveryNotes, t.FailureReason, t.ReceptionNotes,
		t.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("updating transfer: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking transfer update: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("transfer %s at version %d: %w", t.ID, expected, model.ErrConcurrentModification)
	}

	t.Version = expected + 1
	return nil
}

// TransferFilter narrows List. Set fields are combined with AND.
type TransferFilter struct {
	Statuses []model.Status

	// LocationID matches either end of the transfer.
	LocationID int64

	RequesterID       int64
	SourceLocationIDs []int64

	// VisibleToCarrier matches unassigned accepted transfers plus the ones
	// assigned to this carrier.
	VisibleToCarrier int64

	Urgency model.Urgency
	Limit   int
}

// List returns matching transfers, customer-present first, then oldest first.
func (s *Transfers) List(ctx context.Context, f TransferFilter) ([]model.Transfer, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.LocationID != 0 {
		where = append(where, "(source_location_id = ? OR destination_location_id = ?)")
		args = append(args, f.LocationID, f.LocationID)
	}
	if f.RequesterID != 0 {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.SourceLocationIDs != nil {
		if len(f.SourceLocationIDs) == 0 {
			return nil, nil
		}
		where = append(where, "source_location_id IN ("+placeholders(len(f.SourceLocationIDs))+")")
		for _, id := range f.SourceLocationIDs {
			args = append(args, id)
		}
	}
	if f.VisibleToCarrier != 0 {
		where = append(where, "((status = ? AND carrier_id IS NULL) OR carrier_id = ?)")
		args = append(args, model.StatusAccepted, f.VisibleToCarrier)
	}
	if f.Urgency != "" {
		where = append(where, "urgency = ?")
		args = append(args, f.Urgency)
	}

	query := `SELECT ` + transferColumns + ` FROM transfers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE urgency WHEN 'customer-present' THEN 0 ELSE 1 END, created_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var out []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// NonTerminal returns every transfer still in progress.
func (s *Transfers) NonTerminal(ctx context.Context) ([]model.Transfer, error) {
	var open []model.Status
	for _, st := range model.Statuses {
		if !st.Terminal() {
			open = append(open, st)
		}
	}
	return s.List(ctx, TransferFilter{Statuses: open})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row scanner) (*model.Transfer, error) {
	var (
		t       model.Transfer
		eta     sql.NullInt64
		notes   [8]sql.NullString
		pickupT sql.NullString
	)
	err := row.Scan(&t.ID, &t.VariantID, &t.Quantity, &t.SourceLocationID, &t.DestinationLocationID,
		&t.Urgency, &pickupT, &t.Status, &t.Version, &t.RequesterID, &t.HandlerID, &t.CarrierID,
		&t.CreatedAt, &t.AcceptedAt, &t.CourierAssignedAt, &t.PickedUpAt, &t.DeliveredAt,
		&t.ConfirmedAt, &t.CancelledAt, &t.FailedAt,
		&notes[0], &notes[1], &notes[2], &notes[3], &eta,
		&notes[4], &notes[5], &notes[6], &notes[7],
	)
	if err != nil {
		return nil, err
	}

	t.PickupType = model.PickupType(pickupT.String)
	t.Notes = notes[0].String
	t.HandlerNotes = notes[1].String
	t.RejectionReason = notes[2].String
	t.CourierNotes = notes[3].String
	t.PickupNotes = notes[4].String
	t.DeliveryNotes = notes[5].String
	t.FailureReason = notes[6].String
	t.ReceptionNotes = notes[7].String
	if eta.Valid {
		m := int(eta.Int64)
		t.EstimatedPickupMinutes = &m
	}
	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
