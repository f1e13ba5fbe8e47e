package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCasePaymentCreate = "payment.create"

// Settings are the payment parameters fixed at wiring time.
type Settings struct {
	Currency       string
	GatewayTimeout time.Duration
}

func (s Settings) timeout() time.Duration {
	if s.GatewayTimeout <= 0 {
		return 10 * time.Second
	}
	return s.GatewayTimeout
}

// CreatePaymentUseCase opens the single payment of a pending order. Card
// payments get a remote intent first; nothing is stored if that fails.
type CreatePaymentUseCase struct {
	payments domain.Repository
	orders   domorder.Repository
	gateway  domain.Gateway
	ids      IDGenerator
	settings Settings
	in       *application.Instrument
}

func NewCreatePaymentUseCase(
	payments domain.Repository,
	orders domorder.Repository,
	gateway domain.Gateway,
	ids IDGenerator,
	settings Settings,
	tel observability.Observability,
) *CreatePaymentUseCase {
	return &CreatePaymentUseCase{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		ids:      ids,
		settings: settings,
		in:       application.NewInstrument(tel, paymentService),
	}
}

type CreatePaymentInput struct {
	Actor   application.Actor
	OrderID string
	Method  domain.Method
	// Amount must equal the order total; it guards against paying a stale cart.
	Amount int64
}

type CreatePaymentResult struct {
	Payment  *domain.Payment
	Replayed bool
}

func (uc *CreatePaymentUseCase) Execute(ctx context.Context, cmd CreatePaymentInput) (_ *CreatePaymentResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentCreate, "CreatePayment",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.method", string(cmd.Method)),
		attribute.Int64("payment.amount", cmd.Amount),
	)
	defer func() { run.End(err) }()

	if !cmd.Actor.Authenticated() {
		return nil, run.Fail(apperr.Forbidden("AUTH_REQUIRED", "authentication required"))
	}
	if cmd.Method != domain.MethodCard && cmd.Method != domain.MethodCashOnDelivery {
		return nil, run.Fail(apperr.Validation("METHOD_INVALID", "unsupported payment method"))
	}
	if cmd.Amount <= 0 {
		return nil, run.Fail(apperr.Validation("AMOUNT_INVALID", "amount must be greater than zero"))
	}

	o, err := uc.orders.Get(ctx, cmd.OrderID)
	switch {
	case errors.Is(err, domorder.ErrNotFound):
		return nil, run.Fail(apperr.NotFound("ORDER_NOT_FOUND", "order not found"))
	case err != nil:
		return nil, run.Fail(apperr.Internal("ORDER_LOOKUP_FAILED", err))
	}
	if !o.OwnedBy(cmd.Actor.UserID) {
		return nil, run.Fail(apperr.Forbidden("ORDER_FORBIDDEN", "order belongs to another user"))
	}
	if cmd.Amount != o.TotalPrice() {
		return nil, run.Fail(apperr.Validation("AMOUNT_MISMATCH",
			fmt.Sprintf("amount %d does not match order total %d", cmd.Amount, o.TotalPrice())).
			With("order_total", o.TotalPrice()))
	}

	existing, err := uc.payments.GetByOrder(ctx, o.ID)
	switch {
	case err == nil:
		res, rerr := uc.replay(existing, cmd)
		if rerr != nil {
			return nil, run.Fail(rerr)
		}
		run.Status("IDEMPOTENT_REPLAY")
		return res, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, run.Fail(apperr.Internal("PAYMENT_LOOKUP_FAILED", err))
	}

	if o.Status != domorder.StatusPending {
		return nil, run.Fail(apperr.Validation("ORDER_NOT_PAYABLE",
			fmt.Sprintf("order is %s", o.Status)))
	}
	if err := run.FailCtx(ctx); err != nil {
		return nil, err
	}

	ref, secret := domain.CashRef(o.ID), ""
	if cmd.Method.RemoteIntent() {
		intent, gerr := uc.openIntent(ctx, o)
		if gerr != nil {
			return nil, run.Fail(apperr.Gateway("GATEWAY_UNAVAILABLE", gerr))
		}
		ref, secret = intent.Ref, intent.ClientSecret
	}

	p, derr := domain.New(uc.ids.NewID(), o.ID, o.UserID, o.TotalPrice(), uc.settings.Currency, cmd.Method, ref)
	if derr != nil {
		return nil, run.Fail(apperr.Internal("DOMAIN_CONSTRUCTION_FAILED", derr))
	}
	p.ClientSecret = secret

	if err := uc.payments.Insert(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			if existing, lookupErr := uc.payments.GetByOrder(ctx, o.ID); lookupErr == nil {
				res, rerr := uc.replay(existing, cmd)
				if rerr != nil {
					return nil, run.Fail(rerr)
				}
				run.Status("IDEMPOTENT_REPLAY")
				return res, nil
			}
		}
		return nil, run.Fail(apperr.Internal("PAYMENT_PERSIST_FAILED", err))
	}

	run.Span().SetAttributes(attribute.String("payment.id", p.ID))
	run.Annotate(
		observability.F("payment_id", p.ID),
		observability.F("order_id", o.ID),
		observability.F("method", string(p.Method)),
	)
	return &CreatePaymentResult{Payment: p}, nil
}

// openIntent asks the processor for an intent keyed by the order id, so a
// retried request resolves to the same remote intent.
func (uc *CreatePaymentUseCase) openIntent(ctx context.Context, o *domorder.Order) (domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.settings.timeout())
	defer cancel()
	return uc.gateway.OpenIntent(ctx, domain.IntentRequest{
		Amount:         o.TotalPrice(),
		Currency:       uc.settings.Currency,
		IdempotencyKey: "order-" + o.ID,
		Metadata: map[string]string{
			"order_id": o.ID,
			"user_id":  o.UserID,
		},
	})
}

// replay returns an existing pending payment opened the same way. Anything
// else means the order was already paid for or settled differently.
func (uc *CreatePaymentUseCase) replay(existing *domain.Payment, cmd CreatePaymentInput) (*CreatePaymentResult, error) {
	if existing.Status != domain.StatusPending {
		return nil, apperr.Conflict("PAYMENT_EXISTS",
			fmt.Sprintf("order already has a %s payment", existing.Status), nil)
	}
	if existing.Method != cmd.Method {
		return nil, apperr.Conflict("PAYMENT_EXISTS",
			fmt.Sprintf("order already has a pending %s payment", existing.Method), nil)
	}
	return &CreatePaymentResult{Payment: existing, Replayed: true}, nil
}
