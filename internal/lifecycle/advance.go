package lifecycle

import (
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// Advance returns a copy of t moved to the verdict's next state, with the
// actor assignment and step timestamp recorded. now is clamped so timestamps
// never run backwards. The version is left for the store to bump.
func Advance(t model.Transfer, actor model.Actor, action model.Action, v Verdict, details model.ActionDetails, now time.Time) model.Transfer {
	if latest := t.LatestTimestamp(); now.Before(latest) {
		now = latest
	}
	at := &now
	actorID := actor.ID

	t.Status = v.Next
	switch action {
	case model.ActionAccept:
		t.HandlerID = &actorID
		t.AcceptedAt = at
		t.HandlerNotes = details.Notes
	case model.ActionReject:
		t.HandlerID = &actorID
		t.CancelledAt = at
		t.HandlerNotes = details.Notes
		t.RejectionReason = details.Reason
	case model.ActionCancel:
		t.CancelledAt = at
		t.RejectionReason = details.Reason
	case model.ActionAcceptTransport:
		t.CarrierID = &actorID
		t.CourierAssignedAt = at
		t.CourierNotes = details.Notes
		t.EstimatedPickupMinutes = details.EstimatedPickupMinutes
	case model.ActionConfirmPickup:
		t.PickedUpAt = at
		t.PickupNotes = details.Notes
	case model.ActionConfirmDelivery:
		t.DeliveredAt = at
		t.DeliveryNotes = details.Notes
	case model.ActionReportFailure:
		t.FailedAt = at
		t.FailureReason = details.Reason
		if t.FailureReason == "" {
			t.FailureReason = details.Notes
		}
	case model.ActionConfirmReception:
		t.ConfirmedAt = at
		t.ReceptionNotes = details.Notes
	}
	return t
}
