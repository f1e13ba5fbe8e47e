package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderStatus = "order.update_status"
	sourceAdmin        = "admin"
)

var errStockNotReturned = errors.New("order: stock not returned")

// UpdateStatusUseCase lets an administrator move an order along its lifecycle.
// Cancelling returns the order's stock through stock, when set, before the
// cancellation is stored.
type UpdateStatusUseCase struct {
	repo      domain.Repository
	stock     StockReturner
	publisher domoutbox.Publisher
	in        *application.Instrument
}

func NewUpdateStatusUseCase(repo domain.Repository, stock StockReturner, publisher domoutbox.Publisher, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{
		repo:      repo,
		stock:     stock,
		publisher: publisher,
		in:        application.NewInstrument(tel, orderService),
	}
}

type UpdateStatusInput struct {
	Actor   application.Actor
	OrderID string
	Status  string
}

type UpdateStatusResult struct {
	Order   *domain.Order
	Changed bool
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *UpdateStatusResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderStatus, "UpdateOrderStatus",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", cmd.Status),
	)
	defer func() { run.End(err) }()

	if !cmd.Actor.Admin {
		return nil, run.Fail(apperr.Forbidden("ADMIN_REQUIRED", "administrator role required"))
	}
	target, perr := domain.ParseStatus(cmd.Status)
	if perr != nil {
		return nil, run.Fail(apperr.Validation("STATUS_INVALID", fmt.Sprintf("unknown status %q", cmd.Status)))
	}

	var (
		from      domain.Status
		changed   bool
		lines     []domain.Line
		restocked bool
	)
	updated, err := uc.repo.Transition(ctx, cmd.OrderID, func(o *domain.Order) error {
		from = o.Status
		c, terr := o.TransitionTo(target)
		changed = c
		if terr != nil || !c || o.Status != domain.StatusCancelled || uc.stock == nil {
			return terr
		}
		lines = o.Lines()
		ok, rerr := uc.stock.ReturnStock(ctx, o.ID, lines)
		if rerr != nil {
			return fmt.Errorf("%w: %w", errStockNotReturned, rerr)
		}
		restocked = ok
		return nil
	})
	if err != nil && restocked {
		if terr := uc.stock.TakeBack(ctx, cmd.OrderID, lines); terr != nil {
			run.Logger().Error("stock_take_back_failed",
				observability.F("order_id", cmd.OrderID),
				observability.Err(terr),
			)
		}
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, run.Fail(apperr.NotFound("ORDER_NOT_FOUND", "order not found"))
	case errors.Is(err, errStockNotReturned):
		return nil, run.Fail(apperr.Internal("RESTOCK_FAILED", err))
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return nil, run.Fail(apperr.Wrap(apperr.KindAuthorization, "TRANSITION_FORBIDDEN",
			fmt.Sprintf("cannot move order from %s to %s", from, target), err))
	case err != nil:
		return nil, run.Fail(apperr.Internal("ORDER_UPDATE_FAILED", err))
	}

	if changed {
		run.Publish(ctx, uc.publisher, domain.NewStatusChangedEvent(updated, from, sourceAdmin))
		if restocked {
			for _, l := range lines {
				run.Publish(ctx, uc.publisher, dominv.NewStockReleasedEvent(updated.ID, l.ProductID, l.Quantity, dominv.ReleaseReasonOrderCancelled))
			}
			run.Annotate(observability.F("restocked", true))
		}
	} else {
		run.Status("NOOP")
	}
	run.Annotate(
		observability.F("order_id", updated.ID),
		observability.F("from", string(from)),
		observability.F("to", string(updated.Status)),
	)
	return &UpdateStatusResult{Order: updated, Changed: changed}, nil
}
