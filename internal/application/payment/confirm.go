package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCasePaymentConfirm = "payment.confirm"
	useCasePaymentCollect = "payment.collect"
)

// ConfirmPaymentUseCase handles the browser telling us a card payment finished.
// The client is never trusted for the outcome; the processor is asked.
type ConfirmPaymentUseCase struct {
	payments   domain.Repository
	gateway    domain.Gateway
	reconciler *Reconciler
	timeout    time.Duration
	in         *application.Instrument
}

func NewConfirmPaymentUseCase(
	payments domain.Repository,
	gateway domain.Gateway,
	reconciler *Reconciler,
	gatewayTimeout time.Duration,
	tel observability.Observability,
) *ConfirmPaymentUseCase {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &ConfirmPaymentUseCase{
		payments:   payments,
		gateway:    gateway,
		reconciler: reconciler,
		timeout:    gatewayTimeout,
		in:         application.NewInstrument(tel, paymentService),
	}
}

type ConfirmPaymentInput struct {
	Actor     application.Actor
	PaymentID string
}

func (uc *ConfirmPaymentUseCase) Execute(ctx context.Context, cmd ConfirmPaymentInput) (_ *Result, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentConfirm, "ConfirmPayment",
		attribute.String("payment.id", cmd.PaymentID),
	)
	defer func() { run.End(err) }()

	p, err := uc.payments.Get(ctx, cmd.PaymentID)
	if err != nil {
		return nil, run.Fail(lookupError(err))
	}
	if !cmd.Actor.CanAccess(p.UserID) {
		return nil, run.Fail(apperr.Forbidden("PAYMENT_FORBIDDEN", "payment belongs to another user"))
	}
	if !p.Method.RemoteIntent() {
		return nil, run.Fail(apperr.Validation("PAYMENT_METHOD_UNSUPPORTED",
			"cash on delivery payments are settled at fulfillment"))
	}
	var outcome domain.Outcome
	switch p.Status {
	case domain.StatusCompleted:
		outcome = domain.OutcomeSucceeded
		run.Status("ALREADY_SETTLED")
	case domain.StatusFailed:
		outcome = domain.OutcomeFailed
		run.Status("ALREADY_SETTLED")
	default:
		outcome, err = uc.status(ctx, p.TransactionRef)
		if err != nil {
			return nil, run.Fail(apperr.Gateway("GATEWAY_UNAVAILABLE", err))
		}
	}

	res, err := uc.reconciler.Apply(ctx, Signal{
		PaymentID: p.ID,
		Outcome:   outcome,
		Source:    SourceConfirm,
	})
	if err != nil {
		return nil, run.Fail(err)
	}
	run.Annotate(observability.F("payment_status", string(res.Payment.Status)))
	return res, nil
}

func (uc *ConfirmPaymentUseCase) status(ctx context.Context, ref string) (domain.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	return uc.gateway.IntentStatus(ctx, ref)
}

// CollectCashUseCase records the outcome of a cash-on-delivery collection.
type CollectCashUseCase struct {
	payments   domain.Repository
	reconciler *Reconciler
	in         *application.Instrument
}

func NewCollectCashUseCase(payments domain.Repository, reconciler *Reconciler, tel observability.Observability) *CollectCashUseCase {
	return &CollectCashUseCase{
		payments:   payments,
		reconciler: reconciler,
		in:         application.NewInstrument(tel, paymentService),
	}
}

type CollectCashInput struct {
	Actor     application.Actor
	PaymentID string
	// Collected is false when the customer refused or could not pay.
	Collected bool
	Reason    string
}

func (uc *CollectCashUseCase) Execute(ctx context.Context, cmd CollectCashInput) (_ *Result, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentCollect, "CollectCash",
		attribute.String("payment.id", cmd.PaymentID),
		attribute.Bool("payment.collected", cmd.Collected),
	)
	defer func() { run.End(err) }()

	if !cmd.Actor.Admin {
		return nil, run.Fail(apperr.Forbidden("ADMIN_REQUIRED", "administrator role required"))
	}
	p, err := uc.payments.Get(ctx, cmd.PaymentID)
	if err != nil {
		return nil, run.Fail(lookupError(err))
	}
	if p.Method != domain.MethodCashOnDelivery {
		return nil, run.Fail(apperr.Validation("PAYMENT_METHOD_UNSUPPORTED",
			fmt.Sprintf("%s payments are settled by the processor", p.Method)))
	}

	outcome := domain.OutcomeSucceeded
	if !cmd.Collected {
		outcome = domain.OutcomeFailed
	}
	res, err := uc.reconciler.Apply(ctx, Signal{
		PaymentID: p.ID,
		Outcome:   outcome,
		Reason:    cmd.Reason,
		Source:    SourceFulfillment,
	})
	if err != nil {
		return nil, run.Fail(err)
	}
	return res, nil
}
