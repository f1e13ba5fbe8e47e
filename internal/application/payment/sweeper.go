package payment

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
)

const (
	sweeperService   = "payment_sweeper"
	defaultSweepSize = 100
)

// Sweeper polls the processor for card payments that stayed pending longer
// than Age, covering webhooks that never arrived and clients that never
// confirmed.
type Sweeper struct {
	payments   domain.Repository
	gateway    domain.Gateway
	reconciler *Reconciler
	interval   time.Duration
	age        time.Duration
	timeout    time.Duration
	batch      int
	log        observability.Logger
	now        func() time.Time
}

type SweeperConfig struct {
	Interval       time.Duration
	Age            time.Duration
	GatewayTimeout time.Duration
	BatchSize      int
}

func NewSweeper(
	payments domain.Repository,
	gateway domain.Gateway,
	reconciler *Reconciler,
	cfg SweeperConfig,
	tel observability.Observability,
) *Sweeper {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepSize
	}
	return &Sweeper{
		payments:   payments,
		gateway:    gateway,
		reconciler: reconciler,
		interval:   cfg.Interval,
		age:        cfg.Age,
		timeout:    cfg.GatewayTimeout,
		batch:      cfg.BatchSize,
		log:        tel.Logger().With(observability.F("service", sweeperService)),
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	logger := logctx.FromOr(ctx, s.log)
	logger.Info("payment_sweeper_started", observability.F("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("payment_sweeper_stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("payment_sweep_failed", observability.Err(err))
			}
		}
	}
}

// SweepOnce reconciles one batch and reports how many payments changed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	logger := logctx.FromOr(ctx, s.log)
	pending, err := s.payments.ListPending(ctx, s.now().Add(-s.age), s.batch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if !p.Method.RemoteIntent() {
			continue
		}
		outcome, err := s.status(ctx, p.TransactionRef)
		if err != nil {
			logger.Warn("payment_sweep_status_failed",
				observability.F("payment_id", p.ID),
				observability.Err(err),
			)
			continue
		}
		if outcome == domain.OutcomePending {
			continue
		}
		res, err := s.reconciler.Apply(ctx, Signal{PaymentID: p.ID, Outcome: outcome, Source: SourceSweeper})
		if err != nil {
			logger.Warn("payment_sweep_apply_failed",
				observability.F("payment_id", p.ID),
				observability.Err(err),
			)
			continue
		}
		if res.Changed {
			settled++
		}
	}

	if len(pending) > 0 {
		logger.Debug("payment_sweep_done",
			observability.F("scanned", len(pending)),
			observability.F("settled", settled),
		)
	}
	return settled, nil
}

func (s *Sweeper) status(ctx context.Context, ref string) (domain.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.gateway.IntentStatus(ctx, ref)
}
