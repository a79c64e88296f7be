package model

import "time"

// Hold marks a transfer whose ledger and record diverged. While a hold
// exists no action is applied to the transfer; an operator reconciles the
// inventory and releases it.
type Hold struct {
	TransferID string     `json:"transfer_id"`
	Action     Action     `json:"action"`
	Effect     EffectKind `json:"effect"`
	LocationID int64      `json:"location_id"`
	VariantID  string     `json:"variant_id"`
	Quantity   int        `json:"quantity"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}
