package payment

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

type Queries struct {
	payments domain.Repository
	orders   domorder.Repository
	in       *application.Instrument
}

func NewQueries(payments domain.Repository, orders domorder.Repository, tel observability.Observability) *Queries {
	return &Queries{payments: payments, orders: orders, in: application.NewInstrument(tel, paymentService)}
}

func (q *Queries) Get(ctx context.Context, actor application.Actor, id string) (_ *domain.Payment, err error) {
	ctx, run := q.in.Begin(ctx, "payment.get", "GetPayment", attribute.String("payment.id", id))
	defer func() { run.End(err) }()

	p, err := q.payments.Get(ctx, id)
	if err != nil {
		return nil, run.Fail(lookupError(err))
	}
	if !actor.CanAccess(p.UserID) {
		return nil, run.Fail(apperr.Forbidden("PAYMENT_FORBIDDEN", "payment belongs to another user"))
	}
	return p, nil
}

// GetByOrder checks order ownership before revealing whether a payment exists.
func (q *Queries) GetByOrder(ctx context.Context, actor application.Actor, orderID string) (_ *domain.Payment, err error) {
	ctx, run := q.in.Begin(ctx, "payment.get_by_order", "GetPaymentByOrder", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()

	o, err := q.orders.Get(ctx, orderID)
	switch {
	case errors.Is(err, domorder.ErrNotFound):
		return nil, run.Fail(apperr.NotFound("ORDER_NOT_FOUND", "order not found"))
	case err != nil:
		return nil, run.Fail(apperr.Internal("ORDER_LOOKUP_FAILED", err))
	}
	if !actor.CanAccess(o.UserID) {
		return nil, run.Fail(apperr.Forbidden("ORDER_FORBIDDEN", "order belongs to another user"))
	}

	p, err := q.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, run.Fail(lookupError(err))
	}
	return p, nil
}
