package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Queries serves the read side of orders.
type Queries struct {
	repo domain.Repository
	in   *application.Instrument
}

func NewQueries(repo domain.Repository, tel observability.Observability) *Queries {
	return &Queries{repo: repo, in: application.NewInstrument(tel, orderService)}
}

// Get returns the order when the actor owns it or is an administrator.
func (q *Queries) Get(ctx context.Context, actor application.Actor, id string) (_ *domain.Order, err error) {
	ctx, run := q.in.Begin(ctx, "order.get", "GetOrder", attribute.String("order.id", id))
	defer func() { run.End(err) }()

	o, err := q.repo.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, run.Fail(apperr.NotFound("ORDER_NOT_FOUND", "order not found"))
	case err != nil:
		return nil, run.Fail(apperr.Internal("ORDER_LOOKUP_FAILED", err))
	}
	if !actor.CanAccess(o.UserID) {
		return nil, run.Fail(apperr.Forbidden("ORDER_FORBIDDEN", "order belongs to another user"))
	}
	return o, nil
}

// List returns the actor's own orders, newest first.
func (q *Queries) List(ctx context.Context, actor application.Actor) (_ []*domain.Order, err error) {
	ctx, run := q.in.Begin(ctx, "order.list", "ListOrders", attribute.String("order.user_id", actor.UserID))
	defer func() { run.End(err) }()

	if !actor.Authenticated() {
		return nil, run.Fail(apperr.Forbidden("AUTH_REQUIRED", "authentication required"))
	}
	orders, err := q.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, run.Fail(apperr.Internal("ORDER_LIST_FAILED", err))
	}
	run.Annotate(observability.F("count", len(orders)))
	return orders, nil
}
