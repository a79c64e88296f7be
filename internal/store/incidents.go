package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// CreateIncident records a transport incident.
func CreateIncident(ctx context.Context, db *sql.DB, in *model.Incident) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO transport_incidents (transfer_id, carrier_id, type, description, reported_at)
		 VALUES (?, ?, ?, ?, ?)`,
		in.TransferID, in.CarrierID, in.Type, in.Description, in.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("recording incident: %w", err)
	}

	in.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting incident id: %w", err)
	}
	return nil
}

// ListIncidents returns the incidents reported for a transfer, oldest first.
func ListIncidents(ctx context.Context, db *sql.DB, transferID string) ([]model.Incident, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, transfer_id, carrier_id, type, description, reported_at
		 FROM transport_incidents WHERE transfer_id = ? ORDER BY reported_at, id`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var in model.Incident
		if err := rows.Scan(&in.ID, &in.TransferID, &in.CarrierID, &in.Type, &in.Description, &in.ReportedAt); err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Catalog exposes the location and incident records the transfer service
// reads and writes next to transfers.
type Catalog struct {
	DB *sql.DB
}

// NewCatalog returns a catalog over db.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{DB: db}
}

// Location returns an active location, or model.ErrNotFound.
func (c *Catalog) Location(ctx context.Context, id int64) (*model.Location, error) {
	return ActiveLocation(ctx, c.DB, id)
}

// AddIncident records an incident.
func (c *Catalog) AddIncident(ctx context.Context, in *model.Incident) error {
	return CreateIncident(ctx, c.DB, in)
}

// Incidents lists the incidents for a transfer.
func (c *Catalog) Incidents(ctx context.Context, transferID string) ([]model.Incident, error) {
	return ListIncidents(ctx, c.DB, transferID)
}
