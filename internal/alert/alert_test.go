package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/model"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) time.Time { return now.Add(-d) }

func ptr(t time.Time) *time.Time { return &t }

func TestSweep(t *testing.T) {
	transfers := []model.Transfer{
		{ID: "fresh-customer", Status: model.StatusPending, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(10 * time.Minute)},
		{ID: "waiting-customer", Status: model.StatusPending, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(45 * time.Minute)},
		{ID: "waiting-restock", Status: model.StatusPending, Urgency: model.UrgencyRestock, CreatedAt: ago(45 * time.Minute)},
		{ID: "accepted-customer", Status: model.StatusAccepted, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(45 * time.Minute)},
		{ID: "delivered-recent", Status: model.StatusDelivered, Urgency: model.UrgencyRestock, CreatedAt: ago(5 * time.Hour), DeliveredAt: ptr(ago(time.Hour))},
		{ID: "delivered-old", Status: model.StatusDelivered, Urgency: model.UrgencyRestock, CreatedAt: ago(5 * time.Hour), DeliveredAt: ptr(ago(3 * time.Hour))},
		{ID: "stale", Status: model.StatusInTransit, Urgency: model.UrgencyRestock, CreatedAt: ago(30 * time.Hour)},
		{ID: "completed-old", Status: model.StatusCompleted, Urgency: model.UrgencyRestock, CreatedAt: ago(72 * time.Hour)},
		{ID: "stale-customer", Status: model.StatusPending, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(25 * time.Hour)},
	}

	alerts := Sweep(now, transfers, Thresholds{})

	type key struct {
		id   string
		rule string
	}
	var got []key
	for _, a := range alerts {
		got = append(got, key{a.TransferID, a.Rule})
	}

	assert.Equal(t, []key{
		{"stale-customer", RulePendingCustomer},
		{"waiting-customer", RulePendingCustomer},
		{"delivered-old", RuleUnconfirmed},
		{"stale", RuleStale},
		{"stale-customer", RuleStale},
	}, got)

	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, model.SeverityMedium, alerts[2].Severity)
	assert.Equal(t, 3*time.Hour, alerts[2].Age)
	assert.Equal(t, model.SeverityReview, alerts[3].Severity)
}

func TestSweepExactThresholdDoesNotFire(t *testing.T) {
	transfers := []model.Transfer{
		{ID: "t", Status: model.StatusPending, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(30 * time.Minute)},
	}
	assert.Empty(t, Sweep(now, transfers, DefaultThresholds))
}

func TestSweepCustomThresholds(t *testing.T) {
	transfers := []model.Transfer{
		{ID: "t", Status: model.StatusPending, Urgency: model.UrgencyCustomerPresent, CreatedAt: ago(10 * time.Minute)},
	}
	alerts := Sweep(now, transfers, Thresholds{PendingCustomer: 5 * time.Minute})
	require.Len(t, alerts, 1)
	assert.Equal(t, "customer waiting, transfer not accepted for 10m0s", alerts[0].Message)
}

func TestSweepDoesNotMutate(t *testing.T) {
	transfers := []model.Transfer{
		{ID: "t", Status: model.StatusInTransit, CreatedAt: ago(48 * time.Hour), Version: 4},
	}
	before := transfers[0]
	Sweep(now, transfers, DefaultThresholds)
	assert.Equal(t, before, transfers[0])
}

type fakeSource struct {
	transfers []model.Transfer
	err       error
}

func (f fakeSource) NonTerminal(context.Context) ([]model.Transfer, error) {
	return f.transfers, f.err
}

func TestMonitorSweepOnceLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := &Monitor{
		Source: fakeSource{transfers: []model.Transfer{
			{ID: "t", Status: model.StatusInTransit, CreatedAt: ago(48 * time.Hour)},
		}},
		Clock:  clock.NewFixed(now),
		Logger: zap.New(core),
	}

	alerts, err := m.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	entries := logs.FilterMessage("transfer alert").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "t", entries[0].ContextMap()["transfer_id"])
	assert.Equal(t, RuleStale, entries[0].ContextMap()["rule"])
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := &Monitor{
		Source:   fakeSource{err: errors.New("database is locked")},
		Clock:    clock.NewFixed(now),
		Interval: time.Millisecond,
		Logger:   zap.New(core),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, m.Run(ctx))
	assert.NotZero(t, logs.FilterMessage("alert sweep failed").Len())
}
