package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/lifecycle"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
)

// CreateTransfer opens a pending transfer for a requester. The source must
// hold the requested quantity right now; later changes in stock are caught
// at acceptance and at pickup.
func (s *Service) CreateTransfer(ctx context.Context, actor model.Actor, in model.NewTransfer) (t *model.Transfer, err error) {
	ctx, span := s.tracer.Start(ctx, "transfer.CreateTransfer", trace.WithAttributes(
		attribute.Int64("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("variant.id", in.VariantID),
		attribute.Int("quantity", in.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if actor.Role != model.RoleRequester {
		return nil, fmt.Errorf("%w: only requesters create transfers", model.ErrUnauthorizedActor)
	}
	if err := validateNew(&in); err != nil {
		return nil, err
	}

	for _, id := range []int64{in.SourceLocationID, in.DestinationLocationID} {
		if _, err := s.catalog.Location(ctx, id); err != nil {
			return nil, err
		}
	}

	if err := s.checkAvailable(ctx, in.SourceLocationID, in.VariantID, in.Quantity); err != nil {
		return nil, err
	}

	t = &model.Transfer{
		ID:                    uuid.NewString(),
		VariantID:             in.VariantID,
		Quantity:              in.Quantity,
		SourceLocationID:      in.SourceLocationID,
		DestinationLocationID: in.DestinationLocationID,
		Urgency:               in.Urgency,
		PickupType:            in.PickupType,
		Status:                model.StatusPending,
		RequesterID:           actor.ID,
		CreatedAt:             s.clock.Now(),
		Notes:                 in.Notes,
	}
	if err := s.records.Create(ctx, t); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("transfer.id", t.ID))
	logging.Info(ctx, s.logger, "transfer created",
		zap.String("transfer_id", t.ID),
		zap.Int64("requester_id", actor.ID),
		zap.String("variant_id", t.VariantID),
		zap.Int("quantity", t.Quantity),
		zap.Int64("source_location_id", t.SourceLocationID),
		zap.Int64("destination_location_id", t.DestinationLocationID),
		zap.String("urgency", string(t.Urgency)),
	)
	return t, nil
}

func validateNew(in *model.NewTransfer) error {
	in.VariantID = strings.TrimSpace(in.VariantID)
	if in.PickupType == "" {
		in.PickupType = model.PickupByCarrier
	}

	switch {
	case in.VariantID == "":
		return fmt.Errorf("%w: variant is required", model.ErrInvalidInput)
	case in.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	case in.SourceLocationID == in.DestinationLocationID:
		return fmt.Errorf("%w: source and destination must differ", model.ErrInvalidInput)
	case !in.Urgency.Valid():
		return fmt.Errorf("%w: urgency %q", model.ErrInvalidInput, in.Urgency)
	case in.PickupType != model.PickupByCarrier && in.PickupType != model.PickupByRequester:
		return fmt.Errorf("%w: pickup type %q", model.ErrInvalidInput, in.PickupType)
	}
	return nil
}

func (s *Service) checkAvailable(ctx context.Context, locationID int64, variantID string, qty int) error {
	have, err := s.ledger.Quantity(ctx, model.LineKey{LocationID: locationID, VariantID: variantID})
	if err != nil {
		return err
	}
	if have < qty {
		return fmt.Errorf("%w: %s at location %d has %d, need %d",
			model.ErrInsufficientStock, variantID, locationID, have, qty)
	}
	return nil
}

// ApplyAction runs one lifecycle action. It either returns the new state,
// with the ledger effect applied exactly once, or an error with neither
// side changed. The one exception is *model.PartialCommitError, returned
// when a failed persist could not be compensated.
func (s *Service) ApplyAction(ctx context.Context, id string, actor model.Actor, action model.Action, details model.ActionDetails) (result *model.Transfer, err error) {
	ctx, span := s.tracer.Start(ctx, "transfer.ApplyAction", trace.WithAttributes(
		attribute.String("transfer.id", id),
		attribute.String("transfer.action", string(action)),
		attribute.Int64("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	attempt := 0
	op := func() error {
		attempt++
		t, err := s.attempt(ctx, id, actor, action, details)
		if err != nil {
			if errors.Is(err, model.ErrConcurrentModification) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = t
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn(ctx, s.logger, "transfer changed concurrently, retrying",
			zap.String("transfer_id", id),
			zap.String("action", string(action)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
	}

	if err := backoff.RetryNotify(op, s.backoff(ctx), notify); err != nil {
		var pc *model.PartialCommitError
		if errors.As(err, &pc) {
			logging.Error(ctx, s.logger, "ledger and transfer diverged, operator attention required",
				zap.String("transfer_id", pc.TransferID),
				zap.String("action", string(pc.Action)),
				zap.String("effect", string(pc.Effect.Kind)),
				zap.Int64("location_id", pc.Effect.LocationID),
				zap.String("variant_id", pc.Effect.VariantID),
				zap.Int("quantity", pc.Effect.Quantity),
				zap.NamedError("persist_error", pc.PersistErr),
				zap.NamedError("revert_error", pc.RevertErr),
			)
			s.hold(ctx, pc)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("transfer.status", string(result.Status)),
		attribute.Int64("transfer.version", result.Version),
		attribute.Int("attempts", attempt),
	)
	return result, nil
}

// attempt is one read, decide, apply, persist pass.
func (s *Service) attempt(ctx context.Context, id string, actor model.Actor, action model.Action, details model.ActionDetails) (*model.Transfer, error) {
	current, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	held, err := s.records.Held(ctx, id)
	if err != nil {
		return nil, err
	}
	if held != nil {
		logging.Warn(ctx, s.logger, "action on held transfer refused",
			zap.String("transfer_id", id),
			zap.String("action", string(action)),
			zap.Int64("actor_id", actor.ID),
			zap.String("held_after", string(held.Action)),
		)
		return nil, fmt.Errorf("%w: transfer %s is held since %s after %s could not be reconciled",
			model.ErrPartialCommit, id, held.CreatedAt.Format(time.RFC3339), held.Action)
	}

	verdict, err := lifecycle.Decide(lifecycle.For(current, actor, action))
	if err != nil {
		logging.Info(ctx, s.logger, "transfer action rejected",
			zap.String("transfer_id", id),
			zap.String("action", string(action)),
			zap.String("status", string(current.Status)),
			zap.Int64("actor_id", actor.ID),
			zap.String("role", string(actor.Role)),
			zap.Error(err),
		)
		return nil, err
	}

	if action == model.ActionAccept {
		if err := s.checkAvailable(ctx, current.SourceLocationID, current.VariantID, current.Quantity); err != nil {
			return nil, err
		}
	}

	next := lifecycle.Advance(*current, actor, action, verdict, details, s.clock.Now())

	ref := model.LedgerRef{TransferID: id, Kind: verdict.Effect.Kind, ActorID: actor.ID}
	qtyAfter, applied := 0, false
	if !verdict.Effect.None() {
		qtyAfter, applied, err = s.ledger.Apply(ctx, verdict.Effect, ref)
		if err != nil {
			return nil, err
		}
	}

	if err := s.persist(ctx, &next, current.Version); err != nil {
		// A live movement this call did not write belongs to whoever
		// applied it, so only our own effect is ever reverted.
		if !applied {
			return nil, err
		}
		return nil, s.compensate(ctx, &next, action, verdict.Effect, ref, err)
	}

	fields := []zap.Field{
		zap.String("transfer_id", id),
		zap.String("action", string(action)),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.Int64("version", next.Version),
		zap.Int64("actor_id", actor.ID),
	}
	if !verdict.Effect.None() {
		fields = append(fields,
			zap.String("effect", string(verdict.Effect.Kind)),
			zap.Int64("location_id", verdict.Effect.LocationID),
			zap.Int("quantity_after", qtyAfter),
		)
	}
	logging.Info(ctx, s.logger, "transfer transition applied", fields...)
	return &next, nil
}

// persist writes next, retrying failures other than a version conflict or a
// missing row.
func (s *Service) persist(ctx context.Context, next *model.Transfer, expected int64) error {
	op := func() error {
		err := s.records.Update(ctx, next, expected)
		if errors.Is(err, model.ErrConcurrentModification) || errors.Is(err, model.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn(ctx, s.logger, "persisting transfer failed, retrying",
			zap.String("transfer_id", next.ID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, s.backoff(ctx), notify)
}

// compensate handles a persist that failed after this call applied the
// ledger effect. If the stored transfer already records the step that
// carries the effect, the effect stays. Otherwise it is reverted. A conflict
// is returned as-is so the caller retries from a fresh read.
func (s *Service) compensate(ctx context.Context, next *model.Transfer, action model.Action, eff model.LedgerEffect, ref model.LedgerRef, persistErr error) error {
	if stored, err := s.records.Get(ctx, next.ID); err == nil && effectRecorded(stored, eff.Kind) {
		logging.Warn(ctx, s.logger, "ledger effect kept, transfer already records the step",
			zap.String("transfer_id", next.ID),
			zap.String("action", string(action)),
			zap.String("effect", string(eff.Kind)),
			zap.Error(persistErr),
		)
		return persistErr
	}

	// Revert on a context that outlives the caller's cancellation.
	revertCtx := context.WithoutCancel(ctx)
	var revertErr error
	op := func() error {
		_, err := s.ledger.Revert(revertCtx, ref)
		return err
	}
	if revertErr = backoff.Retry(op, s.backoff(revertCtx)); revertErr != nil {
		return &model.PartialCommitError{
			TransferID: next.ID,
			Action:     action,
			Effect:     eff,
			PersistErr: persistErr,
			RevertErr:  revertErr,
		}
	}

	logging.Warn(ctx, s.logger, "ledger effect reverted after failed persist",
		zap.String("transfer_id", next.ID),
		zap.String("action", string(action)),
		zap.String("effect", string(eff.Kind)),
		zap.Error(persistErr),
	)

	if errors.Is(persistErr, model.ErrConcurrentModification) {
		return persistErr
	}
	return fmt.Errorf("persisting transfer %s: %w", next.ID, persistErr)
}

// hold marks the transfer so no further action is applied until an operator
// releases it. It runs detached from the caller's cancellation.
func (s *Service) hold(ctx context.Context, pc *model.PartialCommitError) {
	ctx = context.WithoutCancel(ctx)
	h := &model.Hold{
		TransferID: pc.TransferID,
		Action:     pc.Action,
		Effect:     pc.Effect.Kind,
		LocationID: pc.Effect.LocationID,
		VariantID:  pc.Effect.VariantID,
		Quantity:   pc.Effect.Quantity,
		Reason:     pc.Error(),
		CreatedAt:  s.clock.Now(),
	}
	op := func() error {
		return s.records.Hold(ctx, h)
	}
	if err := backoff.Retry(op, s.backoff(ctx)); err != nil {
		logging.Error(ctx, s.logger, "holding transfer failed",
			zap.String("transfer_id", h.TransferID),
			zap.Error(err),
		)
		return
	}
	logging.Warn(ctx, s.logger, "transfer held for operator attention",
		zap.String("transfer_id", h.TransferID),
		zap.String("action", string(h.Action)),
		zap.String("effect", string(h.Effect)),
	)
}

// Held returns the hold on a transfer, or nil if it is not held.
func (s *Service) Held(ctx context.Context, id string) (*model.Hold, error) {
	return s.records.Held(ctx, id)
}

// ReleaseHold lets actions run on a held transfer again. Only admins
// release holds, after reconciling the inventory by hand.
func (s *Service) ReleaseHold(ctx context.Context, actor model.Actor, id string) error {
	if actor.Role != model.RoleAdmin {
		return fmt.Errorf("%w: only admins release holds", model.ErrUnauthorizedActor)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.records.Release(ctx, id); err != nil {
		return err
	}
	logging.Info(ctx, s.logger, "transfer hold released",
		zap.String("transfer_id", id),
		zap.Int64("actor_id", actor.ID),
	)
	return nil
}

// effectRecorded reports whether t's stored state includes the step that
// carries a ledger effect of the given kind.
func effectRecorded(t *model.Transfer, kind model.EffectKind) bool {
	switch kind {
	case model.EffectDebitSource:
		return t.PickedUpAt != nil
	case model.EffectReverseDebit:
		return t.FailedAt != nil
	case model.EffectCreditDestination:
		return t.ConfirmedAt != nil
	}
	return false
}

// ReportIncident records a transport problem for the assigned carrier. The
// transfer's status does not change.
func (s *Service) ReportIncident(ctx context.Context, id string, actor model.Actor, kind, description string) (*model.Incident, error) {
	t, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role != model.RoleCarrier || t.CarrierID == nil || *t.CarrierID != actor.ID {
		return nil, fmt.Errorf("%w: only the assigned carrier reports incidents", model.ErrUnauthorizedActor)
	}
	if t.Status != model.StatusCourierAssigned && t.Status != model.StatusInTransit {
		return nil, fmt.Errorf("%w: cannot report an incident on a transfer in status %s", model.ErrIllegalTransition, t.Status)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", model.ErrInvalidInput)
	}
	if kind == "" {
		kind = "other"
	}

	in := &model.Incident{
		TransferID:  id,
		CarrierID:   actor.ID,
		Type:        kind,
		Description: description,
		ReportedAt:  s.clock.Now(),
	}
	if err := s.catalog.AddIncident(ctx, in); err != nil {
		return nil, err
	}

	logging.Warn(ctx, s.logger, "transport incident reported",
		zap.String("transfer_id", id),
		zap.Int64("carrier_id", actor.ID),
		zap.String("type", kind),
	)
	return in, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
