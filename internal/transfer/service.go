// Package transfer is the only place that changes both transfer records and
// inventory. Every action runs as decide, apply the ledger effect, persist,
// and a failed persist is retried or compensated before an error is returned.
package transfer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/alert"
	"github.com/erazemk/prenos/internal/clock"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// Ledger is the inventory side of a transition.
type Ledger interface {
	Apply(ctx context.Context, eff model.LedgerEffect, ref model.LedgerRef) (int, bool, error)
	Revert(ctx context.Context, ref model.LedgerRef) (bool, error)
	Quantity(ctx context.Context, key model.LineKey) (int, error)
	Movements(ctx context.Context, transferID string) ([]model.Movement, error)
}

// Records is the transfer record store.
type Records interface {
	Create(ctx context.Context, t *model.Transfer) error
	Get(ctx context.Context, id string) (*model.Transfer, error)
	Update(ctx context.Context, t *model.Transfer, expected int64) error
	List(ctx context.Context, f store.TransferFilter) ([]model.Transfer, error)
	NonTerminal(ctx context.Context) ([]model.Transfer, error)
	Hold(ctx context.Context, h *model.Hold) error
	Held(ctx context.Context, id string) (*model.Hold, error)
	Release(ctx context.Context, id string) error
}

// Catalog resolves locations and stores transport incidents.
type Catalog interface {
	Location(ctx context.Context, id int64) (*model.Location, error)
	AddIncident(ctx context.Context, in *model.Incident) error
	Incidents(ctx context.Context, transferID string) ([]model.Incident, error)
}

// Options tunes retries and alerting. Zero values use the defaults.
type Options struct {
	// MaxAttempts bounds both the conflict retries of a whole action and
	// the retries of a failed persist.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Thresholds     alert.Thresholds
}

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 10 * time.Millisecond
	defaultMaxBackoff     = 500 * time.Millisecond
)

// Service orchestrates transfers.
type Service struct {
	ledger  Ledger
	records Records
	catalog Catalog
	clock   clock.Clock
	logger  *zap.Logger
	tracer  trace.Tracer
	opts    Options
	locks   *keyedMutex
}

// New returns a transfer service.
func New(ledger Ledger, records Records, catalog Catalog, clk clock.Clock, logger *zap.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return &Service{
		ledger:  ledger,
		records: records,
		catalog: catalog,
		clock:   clk,
		logger:  logging.OrNop(logger).Named("transfer"),
		tracer:  otel.Tracer("github.com/erazemk/prenos/internal/transfer"),
		opts:    opts,
		locks:   newKeyedMutex(),
	}
}

func (s *Service) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)
}
