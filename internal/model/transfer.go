package model

import "time"

// Status is a transfer lifecycle state.
type Status string

// Transfer statuses.
const (
	StatusPending         Status = "pending"
	StatusAccepted        Status = "accepted"
	StatusCourierAssigned Status = "courier_assigned"
	StatusInTransit       Status = "in_transit"
	StatusDelivered       Status = "delivered"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusDeliveryFailed  Status = "delivery_failed"
)

// Statuses lists every lifecycle state in workflow order.
var Statuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusCourierAssigned,
	StatusInTransit,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
	StatusDeliveryFailed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeliveryFailed
}

// Action is an actor request against an existing transfer.
type Action string

// Transfer actions.
const (
	ActionAccept           Action = "accept"
	ActionReject           Action = "reject"
	ActionCancel           Action = "cancel"
	ActionAcceptTransport  Action = "acceptTransport"
	ActionConfirmPickup    Action = "confirmPickup"
	ActionConfirmDelivery  Action = "confirmDelivery"
	ActionReportFailure    Action = "reportFailure"
	ActionConfirmReception Action = "confirmReception"
)

// Urgency orders the work queues. It never affects which transitions are legal.
type Urgency string

// Urgency classes.
const (
	UrgencyCustomerPresent Urgency = "customer-present"
	UrgencyRestock         Urgency = "restock"
)

// Valid reports whether u is a known urgency class.
func (u Urgency) Valid() bool {
	return u == UrgencyCustomerPresent || u == UrgencyRestock
}

// PickupType records who physically collects the goods at the source.
type PickupType string

// Pickup types.
const (
	PickupByCarrier   PickupType = "carrier"
	PickupByRequester PickupType = "requester"
)

// Transfer is a request to move a fixed quantity of one product variant
// from a source location to a destination location.
type Transfer struct {
	ID                    string     `json:"id"`
	VariantID             string     `json:"variant_id"`
	Quantity              int        `json:"quantity"`
	SourceLocationID      int64      `json:"source_location_id"`
	DestinationLocationID int64      `json:"destination_location_id"`
	Urgency               Urgency    `json:"urgency"`
	PickupType            PickupType `json:"pickup_type"`
	Status                Status     `json:"status"`
	Version               int64      `json:"version"`

	RequesterID int64  `json:"requester_id"`
	HandlerID   *int64 `json:"handler_id,omitempty"`
	CarrierID   *int64 `json:"carrier_id,omitempty"`

	CreatedAt         time.Time  `json:"created_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	CourierAssignedAt *time.Time `json:"courier_assigned_at,omitempty"`
	PickedUpAt        *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`

	Notes                  string `json:"notes,omitempty"`
	HandlerNotes           string `json:"handler_notes,omitempty"`
	RejectionReason        string `json:"rejection_reason,omitempty"`
	CourierNotes           string `json:"courier_notes,omitempty"`
	EstimatedPickupMinutes *int   `json:"estimated_pickup_minutes,omitempty"`
	PickupNotes            string `json:"pickup_notes,omitempty"`
	DeliveryNotes          string `json:"delivery_notes,omitempty"`
	FailureReason          string `json:"failure_reason,omitempty"`
	ReceptionNotes         string `json:"reception_notes,omitempty"`
}

// NewTransfer is the input for creating a transfer.
type NewTransfer struct {
	VariantID             string     `json:"variant_id"`
	Quantity              int        `json:"quantity"`
	SourceLocationID      int64      `json:"source_location_id"`
	DestinationLocationID int64      `json:"destination_location_id"`
	Urgency               Urgency    `json:"urgency"`
	PickupType            PickupType `json:"pickup_type"`
	Notes                 string     `json:"notes"`
}

// ActionDetails carries the optional free-text data an actor attaches to an action.
type ActionDetails struct {
	Notes                  string `json:"notes"`
	Reason                 string `json:"reason"`
	EstimatedPickupMinutes *int   `json:"estimated_pickup_minutes"`
}

// LatestTimestamp returns the most recent lifecycle timestamp that is set.
func (t *Transfer) LatestTimestamp() time.Time {
	latest := t.CreatedAt
	for _, ts := range t.stepTimestamps() {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest
}

func (t *Transfer) stepTimestamps() []*time.Time {
	return []*time.Time{
		t.AcceptedAt, t.CourierAssignedAt, t.PickedUpAt, t.DeliveredAt,
		t.ConfirmedAt, t.CancelledAt, t.FailedAt,
	}
}

// CheckTimestamps verifies that the populated timestamps match the status:
// every step reached has its timestamp, no later step does, at most one of
// the closing timestamps is set, and the set ones never go backwards.
func (t *Transfer) CheckTimestamps() error {
	if t.CreatedAt.IsZero() {
		return ErrInconsistentTimestamps
	}

	closing := 0
	for _, ts := range []*time.Time{t.ConfirmedAt, t.CancelledAt, t.FailedAt} {
		if ts != nil {
			closing++
		}
	}
	if closing > 1 {
		return ErrInconsistentTimestamps
	}

	prev := t.CreatedAt
	for _, ts := range t.stepTimestamps() {
		if ts == nil {
			continue
		}
		if ts.Before(prev) {
			return ErrInconsistentTimestamps
		}
		prev = *ts
	}

	set := func(ts *time.Time) bool { return ts != nil }
	switch t.Status {
	case StatusPending:
		return expect(closing == 0 && !set(t.AcceptedAt) && !set(t.CourierAssignedAt) && !set(t.PickedUpAt) && !set(t.DeliveredAt))
	case StatusAccepted:
		return expect(closing == 0 && set(t.AcceptedAt) && !set(t.CourierAssignedAt) && !set(t.PickedUpAt))
	case StatusCourierAssigned:
		return expect(closing == 0 && set(t.AcceptedAt) && set(t.CourierAssignedAt) && !set(t.PickedUpAt))
	case StatusInTransit:
		return expect(closing == 0 && set(t.PickedUpAt) && !set(t.DeliveredAt))
	case StatusDelivered:
		return expect(closing == 0 && set(t.PickedUpAt) && set(t.DeliveredAt))
	case StatusCompleted:
		return expect(set(t.ConfirmedAt) && set(t.DeliveredAt))
	case StatusCancelled:
		return expect(set(t.CancelledAt) && !set(t.PickedUpAt))
	case StatusDeliveryFailed:
		return expect(set(t.FailedAt) && set(t.PickedUpAt) && !set(t.DeliveredAt))
	}
	return ErrInconsistentTimestamps
}

func expect(ok bool) error {
	if !ok {
		return ErrInconsistentTimestamps
	}
	return nil
}
