package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

const variant = "AJ1-CHICAGO/42"

type env struct {
	t       *testing.T
	db      *sql.DB
	ledger  *store.Ledger
	records *store.Transfers
	svc     *Service
	clk     *clock.Manual
	logs    *observer.ObservedLogs

	src, dst int64

	requester    model.Actor
	otherReq     model.Actor
	handler      model.Actor
	carrier      model.Actor
	otherCarrier model.Actor
	admin        model.Actor
}

type envOption func(e *env, ledger *Ledger, records *Records)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	ctx := context.Background()

	database := db.NewTestDB(t)
	clk := clock.NewFixed(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	core, logs := observer.New(zapcore.DebugLevel)

	src, err := store.CreateLocation(ctx, database, "Depot", model.LocationTypeWarehouse, "")
	require.NoError(t, err)
	dst, err := store.CreateLocation(ctx, database, "Center", model.LocationTypeStore, "")
	require.NoError(t, err)

	e := &env{
		t:            t,
		db:           database,
		ledger:       store.NewLedger(database, clk),
		records:      store.NewTransfers(database),
		clk:          clk,
		logs:         logs,
		src:          src.ID,
		dst:          dst.ID,
		requester:    model.Actor{ID: 1, Role: model.RoleRequester, LocationIDs: []int64{dst.ID}},
		otherReq:     model.Actor{ID: 2, Role: model.RoleRequester},
		handler:      model.Actor{ID: 3, Role: model.RoleHandler, LocationIDs: []int64{src.ID}},
		carrier:      model.Actor{ID: 4, Role: model.RoleCarrier},
		otherCarrier: model.Actor{ID: 5, Role: model.RoleCarrier},
		admin:        model.Actor{ID: 6, Role: model.RoleAdmin},
	}

	var ledger Ledger = e.ledger
	var records Records = e.records
	for _, opt := range opts {
		opt(e, &ledger, &records)
	}

	e.svc = New(ledger, records, store.NewCatalog(database), clk, zap.New(core), Options{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	_, err = e.ledger.AddStock(ctx, e.key(e.src), 10, nil)
	require.NoError(t, err)
	return e
}

func (e *env) key(location int64) model.LineKey {
	return model.LineKey{LocationID: location, VariantID: variant}
}

func (e *env) qty(location int64) int {
	e.t.Helper()
	q, err := e.ledger.Quantity(context.Background(), e.key(location))
	require.NoError(e.t, err)
	return q
}

func (e *env) create(qty int) *model.Transfer {
	e.t.Helper()
	e.clk.Advance(time.Second)
	tr, err := e.svc.CreateTransfer(context.Background(), e.requester, model.NewTransfer{
		VariantID:             variant,
		Quantity:              qty,
		SourceLocationID:      e.src,
		DestinationLocationID: e.dst,
		Urgency:               model.UrgencyCustomerPresent,
	})
	require.NoError(e.t, err)
	return tr
}

func (e *env) do(id string, actor model.Actor, action model.Action) (*model.Transfer, error) {
	e.clk.Advance(time.Minute)
	return e.svc.ApplyAction(context.Background(), id, actor, action, model.ActionDetails{})
}

func (e *env) must(id string, actor model.Actor, action model.Action) *model.Transfer {
	e.t.Helper()
	tr, err := e.do(id, actor, action)
	require.NoError(e.t, err, "%s by %s", action, actor.Role)
	require.NoError(e.t, tr.CheckTimestamps())
	return tr
}

// toCourierAssigned creates a transfer and moves it to courier_assigned.
func (e *env) toCourierAssigned(qty int) *model.Transfer {
	e.t.Helper()
	tr := e.create(qty)
	e.must(tr.ID, e.handler, model.ActionAccept)
	return e.must(tr.ID, e.carrier, model.ActionAcceptTransport)
}

func (e *env) stored(id string) *model.Transfer {
	e.t.Helper()
	tr, err := e.records.Get(context.Background(), id)
	require.NoError(e.t, err)
	return tr
}

func TestScenarioDeliveryFailureRestoresSource(t *testing.T) {
	e := newEnv(t)

	tr := e.toCourierAssigned(5)

	tr = e.must(tr.ID, e.carrier, model.ActionConfirmPickup)
	assert.Equal(t, model.StatusInTransit, tr.Status)
	assert.Equal(t, 5, e.qty(e.src))

	tr = e.must(tr.ID, e.carrier, model.ActionReportFailure)
	assert.Equal(t, model.StatusDeliveryFailed, tr.Status)
	assert.Equal(t, 10, e.qty(e.src))
	assert.Equal(t, 0, e.qty(e.dst))

	moves, err := e.svc.Movements(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, model.EffectDebitSource, moves[0].Kind)
	assert.Equal(t, model.EffectReverseDebit, moves[1].Kind)
	assert.Equal(t, e.src, moves[1].LocationID)
}

func TestScenarioCompleted(t *testing.T) {
	e := newEnv(t)

	tr := e.toCourierAssigned(5)
	e.must(tr.ID, e.carrier, model.ActionConfirmPickup)
	assert.Equal(t, 5, e.qty(e.src))

	tr = e.must(tr.ID, e.carrier, model.ActionConfirmDelivery)
	assert.Equal(t, model.StatusDelivered, tr.Status)
	assert.Equal(t, 0, e.qty(e.dst), "delivery alone does not credit")

	tr = e.must(tr.ID, e.requester, model.ActionConfirmReception)
	assert.Equal(t, model.StatusCompleted, tr.Status)
	assert.Equal(t, 5, e.qty(e.dst))
	assert.Equal(t, 5, e.qty(e.src))
	assert.Equal(t, int64(6), tr.Version)

	require.NotNil(t, tr.HandlerID)
	assert.Equal(t, e.handler.ID, *tr.HandlerID)
	require.NotNil(t, tr.CarrierID)
	assert.Equal(t, e.carrier.ID, *tr.CarrierID)

	stored := e.stored(tr.ID)
	require.NoError(t, stored.CheckTimestamps())
	assert.Equal(t, model.StatusCompleted, stored.Status)

	entries := e.logs.FilterMessage("transfer transition applied").All()
	assert.Len(t, entries, 5)
}

func TestPickupWithDepletedStock(t *testing.T) {
	e := newEnv(t)

	first := e.toCourierAssigned(5)
	second := e.toCourierAssigned(8)

	e.must(second.ID, e.carrier, model.ActionConfirmPickup)
	assert.Equal(t, 2, e.qty(e.src))

	_, err := e.do(first.ID, e.carrier, model.ActionConfirmPickup)
	require.ErrorIs(t, err, model.ErrInsufficientStock)

	assert.Equal(t, model.StatusCourierAssigned, e.stored(first.ID).Status)
	assert.Equal(t, 2, e.qty(e.src))

	moves, _ := e.svc.Movements(context.Background(), first.ID)
	assert.Empty(t, moves)
}

func TestCancelDeliveredIsIllegal(t *testing.T) {
	e := newEnv(t)

	tr := e.toCourierAssigned(5)
	e.must(tr.ID, e.carrier, model.ActionConfirmPickup)
	before := e.must(tr.ID, e.carrier, model.ActionConfirmDelivery)

	_, err := e.do(tr.ID, e.requester, model.ActionCancel)
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	after := e.stored(tr.ID)
	assert.Equal(t, model.StatusDelivered, after.Status)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 5, e.qty(e.src))
}

func TestReplayIsRejected(t *testing.T) {
	e := newEnv(t)

	tr := e.toCourierAssigned(5)
	e.must(tr.ID, e.carrier, model.ActionConfirmPickup)

	_, err := e.do(tr.ID, e.carrier, model.ActionConfirmPickup)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.Equal(t, 5, e.qty(e.src))

	_, err = e.do(tr.ID, e.handler, model.ActionAccept)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestWrongActorLeavesEverythingUnchanged(t *testing.T) {
	e := newEnv(t)

	tr := e.toCourierAssigned(5)

	_, err := e.do(tr.ID, e.otherCarrier, model.ActionConfirmPickup)
	require.ErrorIs(t, err, model.ErrUnauthorizedActor)

	_, err = e.do(tr.ID, e.admin, model.ActionCancel)
	require.ErrorIs(t, err, model.ErrUnauthorizedActor)

	_, err = e.do(tr.ID, e.otherReq, model.ActionCancel)
	require.ErrorIs(t, err, model.ErrUnauthorizedActor)

	_, err = e.do(tr.ID, e.carrier, "teleport")
	require.ErrorIs(t, err, model.ErrUnknownAction)

	assert.Equal(t, model.StatusCourierAssigned, e.stored(tr.ID).Status)
	assert.Equal(t, 10, e.qty(e.src))
}

func TestCancelHasNoLedgerEffect(t *testing.T) {
	e := newEnv(t)

	for _, steps := range [][]model.Action{
		nil,
		{model.ActionAccept},
		{model.ActionAccept, model.ActionAcceptTransport},
	} {
		tr := e.create(3)
		for _, a := range steps {
			actor := e.handler
			if a == model.ActionAcceptTransport {
				actor = e.carrier
			}
			e.must(tr.ID, actor, a)
		}
		tr = e.must(tr.ID, e.requester, model.ActionCancel)
		assert.Equal(t, model.StatusCancelled, tr.Status)

		moves, err := e.svc.Movements(context.Background(), tr.ID)
		require.NoError(t, err)
		assert.Empty(t, moves)
	}
	assert.Equal(t, 10, e.qty(e.src))
}

func TestRejectByHandler(t *testing.T) {
	e := newEnv(t)
	tr := e.create(3)

	tr, err := e.svc.ApplyAction(context.Background(), tr.ID, e.handler, model.ActionReject,
		model.ActionDetails{Reason: "display pair only"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, tr.Status)
	assert.Equal(t, "display pair only", tr.RejectionReason)
	require.NoError(t, tr.CheckTimestamps())
}

func TestAcceptRechecksStock(t *testing.T) {
	e := newEnv(t)
	tr := e.create(5)

	_, err := e.ledger.Adjust(context.Background(), e.key(e.src), -8, "sold in store", nil)
	require.NoError(t, err)

	_, err = e.do(tr.ID, e.handler, model.ActionAccept)
	require.ErrorIs(t, err, model.ErrInsufficientStock)
	assert.Equal(t, model.StatusPending, e.stored(tr.ID).Status)
}

func TestApplyActionNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.do("missing", e.handler, model.ActionAccept)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRacingPickupsCommitOnce(t *testing.T) {
	e := newEnv(t)
	tr := e.toCourierAssigned(5)

	var ok atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := e.svc.ApplyAction(context.Background(), tr.ID, e.carrier, model.ActionConfirmPickup, model.ActionDetails{})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrIllegalTransition), errors.Is(err, model.ErrConcurrentModification):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 5, e.qty(e.src))
	assert.Equal(t, model.StatusInTransit, e.stored(tr.ID).Status)
}

func TestRacingCarriersOneWins(t *testing.T) {
	e := newEnv(t)
	tr := e.create(5)
	e.must(tr.ID, e.handler, model.ActionAccept)

	carriers := []model.Actor{e.carrier, e.otherCarrier}
	var winners atomic.Int32
	var g errgroup.Group
	for _, c := range carriers {
		g.Go(func() error {
			_, err := e.svc.ApplyAction(context.Background(), tr.ID, c, model.ActionAcceptTransport, model.ActionDetails{})
			if err == nil {
				winners.Add(1)
				return nil
			}
			if errors.Is(err, model.ErrIllegalTransition) || errors.Is(err, model.ErrConcurrentModification) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), winners.Load())
}

func TestRacingServicesOnSameDatabase(t *testing.T) {
	// Two service instances share the database but not the in-process
	// lock, so only version checks keep them apart.
	e := newEnv(t)
	other := New(e.ledger, e.records, store.NewCatalog(e.db), e.clk, nil, Options{
		MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond,
	})
	tr := e.toCourierAssigned(5)

	var ok atomic.Int32
	var g errgroup.Group
	for i := range 6 {
		svc := e.svc
		if i%2 == 1 {
			svc = other
		}
		g.Go(func() error {
			_, err := svc.ApplyAction(context.Background(), tr.ID, e.carrier, model.ActionConfirmPickup, model.ActionDetails{})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrIllegalTransition), errors.Is(err, model.ErrConcurrentModification):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, model.StatusInTransit, e.stored(tr.ID).Status)
	assert.Equal(t, 5, e.qty(e.src))
}

func TestConservationAcrossManyTransfers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.ledger.AddStock(ctx, e.key(e.src), 90, nil)
	require.NoError(t, err)

	// Each path ends in a different terminal or in-flight state.
	paths := map[string][]model.Action{
		"completed": {model.ActionAccept, model.ActionAcceptTransport, model.ActionConfirmPickup, model.ActionConfirmDelivery, model.ActionConfirmReception},
		"failed":    {model.ActionAccept, model.ActionAcceptTransport, model.ActionConfirmPickup, model.ActionReportFailure},
		"cancelled": {model.ActionAccept, model.ActionAcceptTransport, model.ActionCancel},
		"rejected":  {model.ActionReject},
		"delivered": {model.ActionAccept, model.ActionAcceptTransport, model.ActionConfirmPickup, model.ActionConfirmDelivery},
	}
	actorFor := map[model.Action]model.Actor{
		model.ActionAccept:           e.handler,
		model.ActionReject:           e.handler,
		model.ActionCancel:           e.requester,
		model.ActionAcceptTransport:  e.carrier,
		model.ActionConfirmPickup:    e.carrier,
		model.ActionConfirmDelivery:  e.carrier,
		model.ActionReportFailure:    e.carrier,
		model.ActionConfirmReception: e.requester,
	}

	jobs := make(map[string][]model.Action)
	for _, path := range paths {
		for range 4 {
			jobs[e.create(2).ID] = path
		}
	}

	var g errgroup.Group
	for id, path := range jobs {
		g.Go(func() error {
			for _, a := range path {
				if _, err := e.svc.ApplyAction(ctx, id, actorFor[a], a, model.ActionDetails{}); err != nil {
					return fmt.Errorf("%s %s: %w", id, a, err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	inFlight := 0
	for id := range jobs {
		tr := e.stored(id)
		require.NoError(t, tr.CheckTimestamps())

		moves, err := e.ledger.Movements(ctx, id)
		require.NoError(t, err)
		net := map[int64]int{}
		for _, m := range moves {
			if m.RevertedAt == nil {
				net[m.LocationID] += m.Delta
			}
		}

		switch tr.Status {
		case model.StatusCompleted:
			assert.Equal(t, -2, net[e.src])
			assert.Equal(t, 2, net[e.dst])
		case model.StatusDeliveryFailed:
			assert.Equal(t, 0, net[e.src])
			assert.Len(t, moves, 2)
		case model.StatusCancelled:
			assert.Empty(t, moves)
		case model.StatusDelivered:
			assert.Equal(t, -2, net[e.src])
			inFlight += 2
		default:
			t.Fatalf("unexpected status %s", tr.Status)
		}
	}

	assert.Equal(t, 100, e.qty(e.src)+e.qty(e.dst)+inFlight)
	assert.Equal(t, 4*2, e.qty(e.dst))
}
