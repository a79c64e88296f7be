package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/prenos/internal/alert"
	"github.com/erazemk/prenos/internal/model"
)

func TestCreateTransferValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	valid := func() model.NewTransfer {
		return model.NewTransfer{
			VariantID:             variant,
			Quantity:              2,
			SourceLocationID:      e.src,
			DestinationLocationID: e.dst,
			Urgency:               model.UrgencyRestock,
		}
	}

	tests := []struct {
		name   string
		actor  model.Actor
		modify func(*model.NewTransfer)
		want   error
	}{
		{"zero quantity", e.requester, func(n *model.NewTransfer) { n.Quantity = 0 }, model.ErrInvalidInput},
		{"same locations", e.requester, func(n *model.NewTransfer) { n.DestinationLocationID = e.src }, model.ErrInvalidInput},
		{"blank variant", e.requester, func(n *model.NewTransfer) { n.VariantID = "  " }, model.ErrInvalidInput},
		{"bad urgency", e.requester, func(n *model.NewTransfer) { n.Urgency = "asap" }, model.ErrInvalidInput},
		{"bad pickup", e.requester, func(n *model.NewTransfer) { n.PickupType = "drone" }, model.ErrInvalidInput},
		{"unknown location", e.requester, func(n *model.NewTransfer) { n.DestinationLocationID = 999 }, model.ErrNotFound},
		{"too much", e.requester, func(n *model.NewTransfer) { n.Quantity = 11 }, model.ErrInsufficientStock},
		{"handler", e.handler, func(*model.NewTransfer) {}, model.ErrUnauthorizedActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.modify(&in)
			_, err := e.svc.CreateTransfer(ctx, tt.actor, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	tr, err := e.svc.CreateTransfer(ctx, e.requester, valid())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, tr.Status)
	assert.Equal(t, model.PickupByCarrier, tr.PickupType)
	assert.Equal(t, int64(1), tr.Version)
	assert.Equal(t, 10, e.qty(e.src), "creation reserves nothing")
}

func TestListTransfersScoping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pending := e.create(1)
	accepted := e.create(1)
	e.must(accepted.ID, e.handler, model.ActionAccept)
	assigned := e.toCourierAssigned(1)

	ids := func(ts []model.Transfer) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.ID)
		}
		return out
	}
	list := func(actor model.Actor, f ListFilter) []string {
		t.Helper()
		ts, err := e.svc.ListTransfers(ctx, actor, f)
		require.NoError(t, err)
		return ids(ts)
	}

	all := []string{pending.ID, accepted.ID, assigned.ID}
	assert.Equal(t, all, list(e.admin, ListFilter{}))
	assert.Equal(t, all, list(e.requester, ListFilter{}))
	assert.Empty(t, list(e.otherReq, ListFilter{}))

	assert.Equal(t, []string{pending.ID, accepted.ID}, list(e.handler, ListFilter{}))
	assert.Empty(t, list(e.handler, ListFilter{Statuses: []model.Status{model.StatusCourierAssigned}}))
	assert.Equal(t, []string{accepted.ID},
		list(e.handler, ListFilter{Statuses: []model.Status{model.StatusAccepted, model.StatusInTransit}}))
	assert.Empty(t, list(model.Actor{ID: 7, Role: model.RoleHandler}, ListFilter{}))

	assert.Equal(t, []string{accepted.ID, assigned.ID}, list(e.carrier, ListFilter{}))
	assert.Equal(t, []string{accepted.ID}, list(e.otherCarrier, ListFilter{}))

	assert.Equal(t, []string{assigned.ID},
		list(e.admin, ListFilter{Statuses: []model.Status{model.StatusCourierAssigned}}))
	assert.Equal(t, all, list(e.admin, ListFilter{LocationID: e.dst}))

	_, err := e.svc.ListTransfers(ctx, e.admin, ListFilter{Statuses: []model.Status{"lost"}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = e.svc.ListTransfers(ctx, model.Actor{ID: 8, Role: "guest"}, ListFilter{})
	assert.ErrorIs(t, err, model.ErrUnauthorizedActor)
}

func TestSummary(t *testing.T) {
	e := newEnv(t)

	e.create(1)
	e.create(1)
	tr := e.create(1)
	e.must(tr.ID, e.requester, model.ActionCancel)

	counts, err := e.svc.Summary(context.Background(), e.requester)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusCancelled])
	assert.Equal(t, 0, counts[model.StatusCompleted])
	assert.Len(t, counts, len(model.Statuses))
}

func TestGetVisible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.toCourierAssigned(1)

	for _, actor := range []model.Actor{e.requester, e.handler, e.carrier, e.admin} {
		got, err := e.svc.GetVisible(ctx, tr.ID, actor)
		require.NoError(t, err, actor.Role)
		assert.Equal(t, tr.ID, got.ID)
	}

	for _, actor := range []model.Actor{e.otherReq, e.otherCarrier} {
		_, err := e.svc.GetVisible(ctx, tr.ID, actor)
		assert.ErrorIs(t, err, model.ErrNotFound, actor.Role)
	}

	_, err := e.svc.GetTransfer(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAvailableActionsForActors(t *testing.T) {
	e := newEnv(t)
	tr := e.create(1)

	assert.Equal(t, []model.Action{model.ActionAccept, model.ActionReject}, e.svc.AvailableActions(tr, e.handler))
	assert.Equal(t, []model.Action{model.ActionCancel}, e.svc.AvailableActions(tr, e.requester))
	assert.Empty(t, e.svc.AvailableActions(tr, e.carrier))
	assert.Empty(t, e.svc.AvailableActions(tr, e.admin))
}

func TestReportIncident(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pending := e.create(1)
	_, err := e.svc.ReportIncident(ctx, pending.ID, e.carrier, "traffic", "stuck")
	assert.ErrorIs(t, err, model.ErrUnauthorizedActor)

	tr := e.toCourierAssigned(1)

	_, err = e.svc.ReportIncident(ctx, tr.ID, e.otherCarrier, "traffic", "stuck")
	assert.ErrorIs(t, err, model.ErrUnauthorizedActor)
	_, err = e.svc.ReportIncident(ctx, tr.ID, e.carrier, "traffic", " ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	in, err := e.svc.ReportIncident(ctx, tr.ID, e.carrier, "", "flat tyre")
	require.NoError(t, err)
	assert.Equal(t, "other", in.Type)
	assert.NotZero(t, in.ID)

	e.must(tr.ID, e.carrier, model.ActionConfirmPickup)
	_, err = e.svc.ReportIncident(ctx, tr.ID, e.carrier, "delay", "road closed")
	require.NoError(t, err)

	assert.Equal(t, model.StatusInTransit, e.stored(tr.ID).Status)

	e.must(tr.ID, e.carrier, model.ActionConfirmDelivery)
	_, err = e.svc.ReportIncident(ctx, tr.ID, e.carrier, "delay", "late")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	incidents, err := e.svc.Incidents(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, "flat tyre", incidents[0].Description)

	_, err = e.svc.Incidents(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSweepAlerts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	urgent := e.create(1)
	done := e.create(1)
	e.must(done.ID, e.requester, model.ActionCancel)

	alerts, err := e.svc.SweepAlerts(ctx, e.clk.Now())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	e.clk.Advance(31 * time.Minute)
	alerts, err = e.svc.SweepAlerts(ctx, e.clk.Now())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, urgent.ID, alerts[0].TransferID)
	assert.Equal(t, alert.RulePendingCustomer, alerts[0].Rule)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)

	e.clk.Advance(24 * time.Hour)
	alerts, err = e.svc.SweepAlerts(ctx, e.clk.Now())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, alert.RulePendingCustomer, alerts[0].Rule)
	assert.Equal(t, alert.RuleStale, alerts[1].Rule)

	stored := e.stored(urgent.ID)
	assert.Equal(t, model.StatusPending, stored.Status, "alerts never transition")
}
