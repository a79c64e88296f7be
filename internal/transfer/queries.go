package transfer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/erazemk/prenos/internal/alert"
	"github.com/erazemk/prenos/internal/lifecycle"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// GetTransfer returns a transfer, or model.ErrNotFound.
func (s *Service) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	return s.records.Get(ctx, id)
}

// GetVisible returns a transfer the actor may see. Transfers outside the
// actor's view are reported as not found.
func (s *Service) GetVisible(ctx context.Context, id string, actor model.Actor) (*model.Transfer, error) {
	t, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(t, actor) {
		return nil, fmt.Errorf("transfer %s: %w", id, model.ErrNotFound)
	}
	return t, nil
}

// Visible reports whether actor may see t. Requesters see their own
// transfers, handlers the ones leaving their locations, carriers the open
// jobs and their own, admins everything.
func Visible(t *model.Transfer, actor model.Actor) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleRequester:
		return t.RequesterID == actor.ID
	case model.RoleHandler:
		return actor.Manages(t.SourceLocationID)
	case model.RoleCarrier:
		if t.CarrierID != nil {
			return *t.CarrierID == actor.ID
		}
		return t.Status == model.StatusAccepted
	}
	return false
}

// ListFilter holds the optional filters a caller can add on top of the
// actor's visibility scope.
type ListFilter struct {
	Statuses   []model.Status
	LocationID int64
	Urgency    model.Urgency
	Limit      int
}

// handlerQueue is what a source handler works on.
var handlerQueue = []model.Status{model.StatusPending, model.StatusAccepted}

// ListTransfers lists the transfers visible to actor:
// requesters see their own, source handlers see pending and accepted
// transfers leaving their locations, carriers see unassigned accepted
// transfers plus their own, and admins see all.
func (s *Service) ListTransfers(ctx context.Context, actor model.Actor, f ListFilter) ([]model.Transfer, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: status %q", model.ErrInvalidInput, st)
		}
	}
	if f.Urgency != "" && !f.Urgency.Valid() {
		return nil, fmt.Errorf("%w: urgency %q", model.ErrInvalidInput, f.Urgency)
	}

	q := store.TransferFilter{
		Statuses:   f.Statuses,
		LocationID: f.LocationID,
		Urgency:    f.Urgency,
		Limit:      f.Limit,
	}

	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleRequester:
		q.RequesterID = actor.ID
	case model.RoleHandler:
		q.SourceLocationIDs = append([]int64{}, actor.LocationIDs...)
		if len(f.Statuses) == 0 {
			q.Statuses = handlerQueue
		} else {
			q.Statuses = nil
			for _, st := range f.Statuses {
				if slices.Contains(handlerQueue, st) {
					q.Statuses = append(q.Statuses, st)
				}
			}
			if len(q.Statuses) == 0 {
				return nil, nil
			}
		}
	case model.RoleCarrier:
		q.VisibleToCarrier = actor.ID
	default:
		return nil, fmt.Errorf("%w: role %q", model.ErrUnauthorizedActor, actor.Role)
	}

	return s.records.List(ctx, q)
}

// Summary counts the actor's visible transfers per status.
func (s *Service) Summary(ctx context.Context, actor model.Actor) (map[model.Status]int, error) {
	transfers, err := s.ListTransfers(ctx, actor, ListFilter{})
	if err != nil {
		return nil, err
	}

	counts := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for _, t := range transfers {
		counts[t.Status]++
	}
	return counts, nil
}

// AvailableActions lists what actor can do next on t.
func (s *Service) AvailableActions(t *model.Transfer, actor model.Actor) []model.Action {
	return lifecycle.AvailableActions(t, actor)
}

// Movements returns the ledger journal of a transfer.
func (s *Service) Movements(ctx context.Context, id string) ([]model.Movement, error) {
	if _, err := s.records.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.Movements(ctx, id)
}

// Incidents returns the incidents reported on a transfer.
func (s *Service) Incidents(ctx context.Context, id string) ([]model.Incident, error) {
	if _, err := s.records.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.catalog.Incidents(ctx, id)
}

// SweepAlerts evaluates the alert rules over the open transfers at now.
func (s *Service) SweepAlerts(ctx context.Context, now time.Time) ([]model.Alert, error) {
	open, err := s.records.NonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	return alert.Sweep(now, open, s.opts.Thresholds), nil
}
