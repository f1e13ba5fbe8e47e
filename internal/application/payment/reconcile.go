package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService       = "payment-service"
	useCasePaymentApply  = "payment.reconcile"
	SourceConfirm        = "confirm"
	SourceWebhook        = "webhook"
	SourceSweeper        = "sweeper"
	SourceFulfillment    = "fulfillment"
	resultApplied        = "applied"
	resultDuplicate      = "duplicate"
	resultConflict       = "conflict"
	resultPending        = "pending"
	statusOrderUncoupled = "ORDER_NOT_COUPLED"
	statusSuperseded     = "DECLINE_SUPERSEDED"

	defaultCancelTimeout = 10 * time.Second
)

var errStockNotReturned = errors.New("payment: stock not returned")

// Signal is one report of what happened to a payment, from any channel.
type Signal struct {
	PaymentID string
	Outcome   domain.Outcome
	Reason    string
	Source    string
}

type Result struct {
	Payment *domain.Payment
	Order   *domorder.Order
	// Changed is set only for the signal that moved the payment out of pending.
	Changed bool
}

// Reconciler owns the single "apply terminal outcome" operation every channel
// funnels into. The payment moves under its own lock first; the order is then
// brought in line under the order lock. Replaying a signal re-runs the order
// step, so a half-applied signal converges on the next delivery.
//
// A failure for a card payment first cancels the processor intent, so a retry
// the customer makes afterwards cannot capture money for a failed payment.
// A cancelled order gets its stock back through stock before it is stored.
type Reconciler struct {
	payments  domain.Repository
	orders    domorder.Repository
	gateway   domain.Gateway
	stock     StockReturner
	publisher domoutbox.Publisher
	in        *application.Instrument
	signals   observability.Counter // payment_reconcile_signals_total{source,result}
	timeout   time.Duration
	now       func() time.Time
}

func NewReconciler(
	payments domain.Repository,
	orders domorder.Repository,
	gateway domain.Gateway,
	stock StockReturner,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Reconciler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Reconciler{
		payments:  payments,
		orders:    orders,
		gateway:   gateway,
		stock:     stock,
		publisher: publisher,
		in:        application.NewInstrument(tel, paymentService),
		signals:   tel.Metrics().Counter(observability.MReconcileSignals),
		timeout:   defaultCancelTimeout,
		now:       time.Now,
	}
}

func (r *Reconciler) Apply(ctx context.Context, sig Signal) (_ *Result, err error) {
	ctx, run := r.in.Begin(ctx, useCasePaymentApply, "ApplyOutcome",
		attribute.String("payment.id", sig.PaymentID),
		attribute.String("payment.outcome", string(sig.Outcome)),
		attribute.String("payment.signal_source", sig.Source),
	)
	defer func() { run.End(err) }()
	run.Annotate(
		observability.F("payment_id", sig.PaymentID),
		observability.F("outcome", string(sig.Outcome)),
		observability.F("source", sig.Source),
	)

	if sig.Outcome == domain.OutcomePending {
		p, gerr := r.payments.Get(ctx, sig.PaymentID)
		if gerr != nil {
			return nil, run.Fail(lookupError(gerr))
		}
		r.count(sig.Source, resultPending)
		run.Status("PAYMENT_PENDING")
		return &Result{Payment: p}, nil
	}

	if sig.Outcome == domain.OutcomeFailed {
		p, outcome, cerr := r.closeIntent(ctx, sig.PaymentID)
		if cerr != nil {
			return nil, run.Fail(cerr)
		}
		switch outcome {
		case domain.OutcomePending:
			r.count(sig.Source, resultPending)
			run.Status("PAYMENT_PENDING")
			return &Result{Payment: p}, nil
		case domain.OutcomeSucceeded:
			run.Status(statusSuperseded)
			run.Logger().Info("payment_decline_superseded",
				observability.F("payment_id", sig.PaymentID),
				observability.F("declined_reason", sig.Reason),
			)
			sig.Outcome, sig.Reason = domain.OutcomeSucceeded, ""
		}
	}

	var changed bool
	p, err := r.payments.Transition(ctx, sig.PaymentID, func(p *domain.Payment) error {
		c, aerr := p.ApplyOutcome(sig.Outcome, sig.Reason, r.now())
		changed = c
		return aerr
	})
	switch {
	case errors.Is(err, domain.ErrIdempotencyConflict):
		r.count(sig.Source, resultConflict)
		run.Logger().Warn("payment_conflict",
			observability.F("payment_id", sig.PaymentID),
			observability.F("outcome", string(sig.Outcome)),
			observability.F("source", sig.Source),
			observability.Err(err),
		)
		return nil, run.Fail(apperr.Conflict("OUTCOME_CONFLICT",
			"payment already settled with a different outcome", err))
	case err != nil:
		return nil, run.Fail(lookupError(err))
	}

	if changed {
		r.count(sig.Source, resultApplied)
		run.Publish(ctx, r.publisher, domain.NewOutcomeEvent(p, sig.Source))
		run.Event("payment."+string(p.Status), attribute.String("payment.id", p.ID))
	} else {
		r.count(sig.Source, resultDuplicate)
		run.Status("DUPLICATE_SIGNAL")
	}

	o, err := r.couple(ctx, run, p, sig.Source)
	if err != nil {
		return nil, run.Fail(err)
	}
	return &Result{Payment: p, Order: o, Changed: changed}, nil
}

// closeIntent cancels the processor intent of a pending card payment and
// reports where the intent ended up. Anything other than a pending card
// payment reports OutcomeFailed untouched.
func (r *Reconciler) closeIntent(ctx context.Context, paymentID string) (*domain.Payment, domain.Outcome, error) {
	p, err := r.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, "", lookupError(err)
	}
	if r.gateway == nil || p.Status != domain.StatusPending || !p.Method.RemoteIntent() || p.TransactionRef == "" {
		return p, domain.OutcomeFailed, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	outcome, err := r.gateway.CancelIntent(ctx, p.TransactionRef)
	if err != nil {
		return nil, "", apperr.Gateway("GATEWAY_UNAVAILABLE", err)
	}
	return p, outcome, nil
}

// couple mirrors a terminal payment onto its order. An order that has moved on
// in a way the payment cannot change is reported and left alone.
func (r *Reconciler) couple(ctx context.Context, run *application.Run, p *domain.Payment, source string) (*domorder.Order, error) {
	var (
		from      domorder.Status
		changed   bool
		lines     []domorder.Line
		restocked bool
	)
	o, err := r.orders.Transition(ctx, p.OrderID, func(o *domorder.Order) error {
		from = o.Status
		var cerr error
		if p.Status == domain.StatusCompleted {
			changed, cerr = o.ApplyPaymentCompleted()
		} else {
			changed, cerr = o.ApplyPaymentFailed()
		}
		if cerr != nil || !changed || o.Status != domorder.StatusCancelled || r.stock == nil {
			return cerr
		}
		lines = o.Lines()
		ok, rerr := r.stock.ReturnStock(ctx, o.ID, lines)
		if rerr != nil {
			return fmt.Errorf("%w: %w", errStockNotReturned, rerr)
		}
		restocked = ok
		return nil
	})
	if err != nil && restocked {
		if terr := r.stock.TakeBack(ctx, p.OrderID, lines); terr != nil {
			run.Logger().Error("stock_take_back_failed",
				observability.F("order_id", p.OrderID),
				observability.Err(terr),
			)
		}
	}
	switch {
	case errors.Is(err, errStockNotReturned):
		return nil, apperr.Internal("RESTOCK_FAILED", err)
	case errors.Is(err, domorder.ErrInvalidStateTransition):
		run.Status(statusOrderUncoupled)
		run.Logger().Warn("order_not_coupled",
			observability.F("order_id", p.OrderID),
			observability.F("order_status", string(from)),
			observability.F("payment_status", string(p.Status)),
		)
		current, gerr := r.orders.Get(ctx, p.OrderID)
		if gerr != nil {
			return nil, apperr.Internal("ORDER_LOOKUP_FAILED", gerr)
		}
		return current, nil
	case err != nil:
		return nil, apperr.Internal("ORDER_COUPLING_FAILED", err)
	}

	if changed {
		run.Publish(ctx, r.publisher, domorder.NewStatusChangedEvent(o, from, source))
		if restocked {
			for _, l := range lines {
				run.Publish(ctx, r.publisher, dominv.NewStockReleasedEvent(o.ID, l.ProductID, l.Quantity, dominv.ReleaseReasonOrderCancelled))
			}
		}
		run.Annotate(
			observability.F("order_id", o.ID),
			observability.F("order_from", string(from)),
			observability.F("order_to", string(o.Status)),
			observability.F("restocked", restocked),
		)
	}
	return o, nil
}

func (r *Reconciler) count(source, result string) {
	r.signals.Add(1,
		observability.L("source", source),
		observability.L("result", result),
	)
}

func lookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
	}
	return apperr.Internal("PAYMENT_REPOSITORY_FAILED", err)
}
