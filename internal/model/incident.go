package model

import "time"

// Incident is a problem a carrier reports while a transfer is on the road.
// Reporting one never changes the transfer's status.
type Incident struct {
	ID          int64     `json:"id"`
	TransferID  string    `json:"transfer_id"`
	CarrierID   int64     `json:"carrier_id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ReportedAt  time.Time `json:"reported_at"`
}
