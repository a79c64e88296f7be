package model

import "time"

// Location is a place that holds stock.
type Location struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Location types.
const (
	LocationTypeStore     = "store"
	LocationTypeWarehouse = "warehouse"
)
