package model

import (
	"fmt"
	"slices"
	"time"
)

// Role is the closed set of actor roles.
type Role string

// Roles.
const (
	RoleRequester Role = "requester"
	RoleHandler   Role = "source_handler"
	RoleCarrier   Role = "carrier"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role. Unknown roles fail closed.
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleHandler, RoleCarrier, RoleAdmin:
		return true
	}
	return false
}

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	LocationIDs  []int64    `json:"location_ids,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Actor is an already-authenticated identity acting on transfers.
// LocationIDs lists the locations a source handler is assigned to.
type Actor struct {
	ID          int64   `json:"id"`
	Role        Role    `json:"role"`
	LocationIDs []int64 `json:"location_ids,omitempty"`
}

// Manages reports whether the actor is assigned to the given location.
func (a Actor) Manages(locationID int64) bool {
	return slices.Contains(a.LocationIDs, locationID)
}

// Actor returns the acting identity of the user.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, LocationIDs: u.LocationIDs}
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
