package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
)

// Source supplies the transfers still in progress.
type Source interface {
	NonTerminal(ctx context.Context) ([]model.Transfer, error)
}

// Monitor sweeps the open transfers on a fixed interval and logs every alert.
type Monitor struct {
	Source     Source
	Clock      clock.Clock
	Thresholds Thresholds
	Interval   time.Duration
	Logger     *zap.Logger
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	logger := logging.OrNop(m.Logger)
	interval := m.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Error(ctx, logger, "alert sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce loads the open transfers, sweeps them and logs the alerts.
func (m *Monitor) SweepOnce(ctx context.Context) ([]model.Alert, error) {
	logger := logging.OrNop(m.Logger)
	clk := m.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	transfers, err := m.Source.NonTerminal(ctx)
	if err != nil {
		return nil, err
	}

	alerts := Sweep(clk.Now(), transfers, m.Thresholds)
	for _, a := range alerts {
		logging.Warn(ctx, logger, "transfer alert",
			zap.String("transfer_id", a.TransferID),
			zap.String("severity", string(a.Severity)),
			zap.String("rule", a.Rule),
			zap.String("status", string(a.Status)),
			zap.Duration("age", a.Age),
		)
	}
	return alerts, nil
}
