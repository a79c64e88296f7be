package model

import "time"

// LineKey identifies an inventory line.
type LineKey struct {
	LocationID int64  `json:"location_id"`
	VariantID  string `json:"variant_id"`
}

// InventoryLine is the quantity of one product variant held at one location.
type InventoryLine struct {
	LocationID int64     `json:"location_id"`
	VariantID  string    `json:"variant_id"`
	Quantity   int       `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	LocationName string `json:"location_name,omitempty"`
	VariantName  string `json:"variant_name,omitempty"`
}

// Key returns the line's identity.
func (l InventoryLine) Key() LineKey {
	return LineKey{LocationID: l.LocationID, VariantID: l.VariantID}
}

// EffectKind is the inventory mutation attached to a transition.
type EffectKind string

// Ledger effect kinds.
const (
	EffectNone              EffectKind = "none"
	EffectDebitSource       EffectKind = "debit_source"
	EffectCreditDestination EffectKind = "credit_destination"
	EffectReverseDebit      EffectKind = "reverse_debit"
)

// LedgerEffect describes the inventory mutation of a transition. It is never
// persisted on its own.
type LedgerEffect struct {
	Kind       EffectKind `json:"kind"`
	LocationID int64      `json:"location_id"`
	VariantID  string     `json:"variant_id"`
	Quantity   int        `json:"quantity"`
}

// None reports whether the effect leaves inventory untouched.
func (e LedgerEffect) None() bool {
	return e.Kind == "" || e.Kind == EffectNone
}

// Key returns the inventory line the effect applies to.
func (e LedgerEffect) Key() LineKey {
	return LineKey{LocationID: e.LocationID, VariantID: e.VariantID}
}

// Movement kinds recorded outside the transfer lifecycle.
const (
	MovementStock  EffectKind = "stock"
	MovementAdjust EffectKind = "adjust"
)

// Movement is a journal entry for one applied change to an inventory line.
type Movement struct {
	ID            int64      `json:"id"`
	TransferID    string     `json:"transfer_id,omitempty"`
	Kind          EffectKind `json:"kind"`
	LocationID    int64      `json:"location_id"`
	VariantID     string     `json:"variant_id"`
	Delta         int        `json:"delta"`
	QuantityAfter int        `json:"quantity_after"`
	ActorID       *int64     `json:"actor_id,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RevertedAt    *time.Time `json:"reverted_at,omitempty"`
}

// LedgerRef ties a ledger effect to the transfer transition that caused it.
// At most one live movement exists per (TransferID, Kind).
type LedgerRef struct {
	TransferID string
	Kind       EffectKind
	ActorID    int64
}
