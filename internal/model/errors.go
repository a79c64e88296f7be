package model

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrUnauthorizedActor      = errors.New("unauthorized actor")
	ErrUnknownAction          = errors.New("unknown action")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPartialCommit          = errors.New("partial commit")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInconsistentTimestamps = errors.New("timestamps inconsistent with status")
)

// RejectReason enumerates why the transition authority refused an action.
type RejectReason string

// Rejection reasons.
const (
	ReasonUnknownAction RejectReason = "unknown_action"
	ReasonWrongState    RejectReason = "wrong_state"
	ReasonWrongRole     RejectReason = "wrong_role"
	ReasonWrongActor    RejectReason = "wrong_actor"
)

// Rejection is returned when an action is not legal for the transfer's
// current state or for the acting identity. Nothing was changed.
type Rejection struct {
	Reason RejectReason
	Action Action
	Status Status
	Role   Role
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonUnknownAction:
		return fmt.Sprintf("unknown action %q", r.Action)
	case ReasonWrongState:
		return fmt.Sprintf("cannot %s a transfer in status %s", r.Action, r.Status)
	case ReasonWrongRole:
		return fmt.Sprintf("role %s may not %s", r.Role, r.Action)
	default:
		return fmt.Sprintf("actor is not allowed to %s this transfer", r.Action)
	}
}

// Unwrap maps the reason onto its sentinel so callers can use errors.Is.
func (r *Rejection) Unwrap() error {
	switch r.Reason {
	case ReasonUnknownAction:
		return ErrUnknownAction
	case ReasonWrongState:
		return ErrIllegalTransition
	default:
		return ErrUnauthorizedActor
	}
}

// PartialCommitError reports that the ledger effect of an action committed
// but the transfer state did not, and reverting the ledger effect also
// failed. The transfer needs operator attention.
type PartialCommitError struct {
	TransferID string
	Action     Action
	Effect     LedgerEffect
	PersistErr error
	RevertErr  error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit on transfer %s (%s, %s of %d x %s at location %d): persist: %v; revert: %v",
		e.TransferID, e.Action, e.Effect.Kind, e.Effect.Quantity, e.Effect.VariantID, e.Effect.LocationID,
		e.PersistErr, e.RevertErr)
}

func (e *PartialCommitError) Unwrap() error {
	return ErrPartialCommit
}
