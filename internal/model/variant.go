package model

import "time"

// Variant is a sellable product in one size. Its ID is the SKU plus size,
// for example "AJ1-CHICAGO/42".
type Variant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand,omitempty"`
	Size      string    `json:"size"`
	PhotoMIME string    `json:"photo_mime,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
