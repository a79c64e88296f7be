// Package lifecycle decides which transfer transitions are legal.
//
// The whole transition table lives in this package. Decide is pure: it never
// touches storage, so the orchestrator can ask it again after every reload.
package lifecycle

import (
	"github.com/erazemk/prenos/internal/model"
)

// Input is everything the authority needs to judge one action.
type Input struct {
	Status model.Status
	Action model.Action
	Actor  model.Actor

	RequesterID int64
	HandlerID   *int64
	CarrierID   *int64

	SourceLocationID      int64
	DestinationLocationID int64
	VariantID             string
	Quantity              int
}

// For builds the input for an action against a stored transfer.
func For(t *model.Transfer, actor model.Actor, action model.Action) Input {
	return Input{
		Status:                t.Status,
		Action:                action,
		Actor:                 actor,
		RequesterID:           t.RequesterID,
		HandlerID:             t.HandlerID,
		CarrierID:             t.CarrierID,
		SourceLocationID:      t.SourceLocationID,
		DestinationLocationID: t.DestinationLocationID,
		VariantID:             t.VariantID,
		Quantity:              t.Quantity,
	}
}

// Verdict is an accepted transition.
type Verdict struct {
	Next   model.Status
	Effect model.LedgerEffect
}

type rule struct {
	from   []model.Status
	to     model.Status
	role   model.Role
	actor  func(Input) bool
	effect model.EffectKind
}

func managesSource(in Input) bool { return in.Actor.Manages(in.SourceLocationID) }

func isRequester(in Input) bool { return in.Actor.ID == in.RequesterID }

func isAssignedCarrier(in Input) bool {
	return in.CarrierID != nil && *in.CarrierID == in.Actor.ID
}

var rules = map[model.Action]rule{
	model.ActionAccept: {
		from:  []model.Status{model.StatusPending},
		to:    model.StatusAccepted,
		role:  model.RoleHandler,
		actor: managesSource,
	},
	model.ActionReject: {
		from:  []model.Status{model.StatusPending},
		to:    model.StatusCancelled,
		role:  model.RoleHandler,
		actor: managesSource,
	},
	model.ActionCancel: {
		from:  []model.Status{model.StatusPending, model.StatusAccepted, model.StatusCourierAssigned},
		to:    model.StatusCancelled,
		role:  model.RoleRequester,
		actor: isRequester,
	},
	model.ActionAcceptTransport: {
		from: []model.Status{model.StatusAccepted},
		to:   model.StatusCourierAssigned,
		role: model.RoleCarrier,
	},
	model.ActionConfirmPickup: {
		from:   []model.Status{model.StatusCourierAssigned},
		to:     model.StatusInTransit,
		role:   model.RoleCarrier,
		actor:  isAssignedCarrier,
		effect: model.EffectDebitSource,
	},
	model.ActionConfirmDelivery: {
		from:  []model.Status{model.StatusInTransit},
		to:    model.StatusDelivered,
		role:  model.RoleCarrier,
		actor: isAssignedCarrier,
	},
	model.ActionReportFailure: {
		from:   []model.Status{model.StatusInTransit},
		to:     model.StatusDeliveryFailed,
		role:   model.RoleCarrier,
		actor:  isAssignedCarrier,
		effect: model.EffectReverseDebit,
	},
	model.ActionConfirmReception: {
		from:   []model.Status{model.StatusDelivered},
		to:     model.StatusCompleted,
		role:   model.RoleRequester,
		actor:  isRequester,
		effect: model.EffectCreditDestination,
	},
}

// Actions lists every action in workflow order.
var Actions = []model.Action{
	model.ActionAccept,
	model.ActionReject,
	model.ActionCancel,
	model.ActionAcceptTransport,
	model.ActionConfirmPickup,
	model.ActionConfirmDelivery,
	model.ActionReportFailure,
	model.ActionConfirmReception,
}

// Transition describes one row of the transition table.
type Transition struct {
	Action model.Action     `json:"action"`
	From   []model.Status   `json:"from"`
	To     model.Status     `json:"to"`
	Role   model.Role       `json:"role"`
	Effect model.EffectKind `json:"effect"`
}

// Table returns the transition table in workflow order.
func Table() []Transition {
	out := make([]Transition, 0, len(Actions))
	for _, a := range Actions {
		r := rules[a]
		eff := r.effect
		if eff == "" {
			eff = model.EffectNone
		}
		out = append(out, Transition{
			Action: a,
			From:   append([]model.Status(nil), r.from...),
			To:     r.to,
			Role:   r.role,
			Effect: eff,
		})
	}
	return out
}

// Decide judges an action. Checks run in a fixed order: unknown action,
// then current state, then role, then the specific actor. A rejection is
// always a *model.Rejection.
func Decide(in Input) (Verdict, error) {
	r, ok := rules[in.Action]
	if !ok {
		return Verdict{}, reject(in, model.ReasonUnknownAction)
	}

	if !allowedFrom(r, in.Status) {
		return Verdict{}, reject(in, model.ReasonWrongState)
	}

	if in.Actor.Role != r.role {
		return Verdict{}, reject(in, model.ReasonWrongRole)
	}

	if r.actor != nil && !r.actor(in) {
		return Verdict{}, reject(in, model.ReasonWrongActor)
	}

	return Verdict{Next: r.to, Effect: effectFor(r.effect, in)}, nil
}

// AvailableActions returns the actions the actor could take on t right now.
func AvailableActions(t *model.Transfer, actor model.Actor) []model.Action {
	var out []model.Action
	for _, a := range Actions {
		if _, err := Decide(For(t, actor, a)); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// Known reports whether a is part of the lifecycle.
func Known(a model.Action) bool {
	_, ok := rules[a]
	return ok
}

func allowedFrom(r rule, s model.Status) bool {
	for _, from := range r.from {
		if from == s {
			return true
		}
	}
	return false
}

func effectFor(kind model.EffectKind, in Input) model.LedgerEffect {
	switch kind {
	case model.EffectDebitSource, model.EffectReverseDebit:
		return model.LedgerEffect{Kind: kind, LocationID: in.SourceLocationID, VariantID: in.VariantID, Quantity: in.Quantity}
	case model.EffectCreditDestination:
		return model.LedgerEffect{Kind: kind, LocationID: in.DestinationLocationID, VariantID: in.VariantID, Quantity: in.Quantity}
	}
	return model.LedgerEffect{Kind: model.EffectNone}
}

func reject(in Input, reason model.RejectReason) error {
	return &model.Rejection{Reason: reason, Action: in.Action, Status: in.Status, Role: in.Actor.Role}
}
