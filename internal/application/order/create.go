package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService       = "order-service"
	useCaseOrderCreate = "order.create"
)

// CreateOrderUseCase turns requested items into a pending order with stock
// reserved. Either every line is reserved and the order is stored, or nothing
// changes.
type CreateOrderUseCase struct {
	repo      domain.Repository
	catalog   catalog.Reader
	ledger    dominv.Ledger
	ids       IDGenerator
	publisher domoutbox.Publisher
	in        *application.Instrument

	compensations observability.Counter // inventory_compensations_total{reason}
}

func NewCreateOrderUseCase(
	repo domain.Repository,
	products catalog.Reader,
	ledger dominv.Ledger,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CreateOrderUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &CreateOrderUseCase{
		repo:          repo,
		catalog:       products,
		ledger:        ledger,
		ids:           idGen,
		publisher:     publisher,
		in:            application.NewInstrument(tel, orderService),
		compensations: tel.Metrics().Counter(observability.MStockCompensations),
	}
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	Actor           application.Actor
	Items           []ItemInput
	ShippingAddress *domain.Address
	IdempotencyKey  string
}

type CreateOrderResult struct {
	Order *domain.Order
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.user_id", cmd.Actor.UserID),
		attribute.Int("order.line_count", len(cmd.Items)),
	)
	defer func() { run.End(err) }()

	if !cmd.Actor.Authenticated() {
		return nil, run.Fail(apperr.Forbidden("AUTH_REQUIRED", "authentication required"))
	}
	if len(cmd.Items) == 0 {
		return nil, run.Fail(apperr.Validation("ITEMS_REQUIRED", "at least one item is required"))
	}
	if err := run.FailCtx(ctx); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, repoErr := uc.repo.FindByIdempotency(ctx, cmd.Actor.UserID, cmd.IdempotencyKey)
		switch {
		case repoErr == nil:
			return uc.replay(run, existing), nil
		case errors.Is(repoErr, domain.ErrNotFound):
		default:
			return nil, run.Fail(apperr.Internal("IDEMPOTENCY_LOOKUP_FAILED", repoErr))
		}
	}

	lines, err := uc.resolve(ctx, cmd.Items)
	if err != nil {
		return nil, run.Fail(err)
	}

	if err := uc.reserve(ctx, run, lines); err != nil {
		return nil, run.Fail(err)
	}

	entity, derr := domain.New(uc.ids.NewID(), cmd.Actor.UserID, cmd.IdempotencyKey, lines, cmd.ShippingAddress)
	if derr != nil {
		uc.release(ctx, run, "", lines, dominv.ReleaseReasonReservationRolledBack)
		return nil, run.Fail(apperr.Internal("DOMAIN_CONSTRUCTION_FAILED", derr))
	}

	if err := uc.repo.Insert(ctx, entity); err != nil {
		uc.release(ctx, run, entity.ID, lines, dominv.ReleaseReasonPersistenceError)
		if errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "" {
			if existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.Actor.UserID, cmd.IdempotencyKey); lookupErr == nil {
				return uc.replay(run, existing), nil
			}
		}
		return nil, run.Fail(apperr.Internal("ORDER_PERSIST_FAILED", err))
	}

	run.Publish(ctx, uc.publisher, domain.NewOrderCreatedEvent(entity))

	run.Span().SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.Int64("order.total_price", entity.TotalPrice()),
	)
	run.Event("order.created", attribute.String("order.id", entity.ID))
	run.Annotate(
		observability.F("order_id", entity.ID),
		observability.F("total_price", entity.TotalPrice()),
	)

	return &CreateOrderResult{Order: entity}, nil
}

func (uc *CreateOrderUseCase) replay(run *application.Run, existing *domain.Order) *CreateOrderResult {
	run.Status("IDEMPOTENT_REPLAY")
	run.Event("order.idempotent_replay", attribute.String("order.id", existing.ID))
	run.Annotate(observability.F("order_id", existing.ID))
	return &CreateOrderResult{Order: existing, Replayed: true}
}

// resolve validates every item and snapshots name and price from the catalog.
// All line problems are reported together.
func (uc *CreateOrderUseCase) resolve(ctx context.Context, items []ItemInput) ([]domain.Line, error) {
	lines := make([]domain.Line, 0, len(items))
	var bad []apperr.LineError

	for i, it := range items {
		if it.Quantity < 1 {
			bad = append(bad, apperr.LineError{
				Index: i, ProductID: it.ProductID, Code: "QUANTITY_INVALID",
				Message: "quantity must be at least 1",
			})
		}
		p, err := uc.catalog.Get(ctx, it.ProductID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			bad = append(bad, apperr.LineError{
				Index: i, ProductID: it.ProductID, Code: "PRODUCT_NOT_FOUND",
				Message: fmt.Sprintf("product %q does not exist", it.ProductID),
			})
			continue
		case err != nil:
			return nil, apperr.Internal("CATALOG_LOOKUP_FAILED", err)
		}
		lines = append(lines, domain.Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.UnitPrice,
		})
	}

	if len(bad) > 0 {
		return nil, apperr.Lines("LINES_INVALID", "one or more items are invalid", bad)
	}
	return lines, nil
}

// reserve takes stock for each line in order. On the first refusal every
// earlier reservation is returned before the error is reported.
func (uc *CreateOrderUseCase) reserve(ctx context.Context, run *application.Run, lines []domain.Line) error {
	for i, l := range lines {
		err := uc.ledger.Reserve(ctx, l.ProductID, l.Quantity)
		if err == nil {
			continue
		}
		uc.release(ctx, run, "", lines[:i], dominv.ReleaseReasonReservationRolledBack)

		var short *dominv.InsufficientStockError
		switch {
		case errors.As(err, &short):
			name := short.ProductName
			if name == "" {
				name = l.ProductName
			}
			return apperr.Wrap(apperr.KindInsufficientStock, "INSUFFICIENT_STOCK",
				fmt.Sprintf("%s has only %d items left", name, short.Available), err).
				With("product_id", l.ProductID).
				With("product_name", name).
				With("available", short.Available).
				With("line", i)
		case errors.Is(err, dominv.ErrNotFound):
			return apperr.Lines("LINES_INVALID", "one or more items are invalid", []apperr.LineError{{
				Index: i, ProductID: l.ProductID, Code: "PRODUCT_NOT_FOUND",
				Message: fmt.Sprintf("product %q does not exist", l.ProductID),
			}})
		case ctx.Err() != nil:
			return apperr.Internal("CONTEXT_CANCELED", ctx.Err())
		default:
			return apperr.Internal("STOCK_RESERVE_FAILED", err)
		}
	}
	return nil
}

// release restocks lines in reverse order. It runs detached from ctx
// cancellation so an aborted request still returns its stock.
func (uc *CreateOrderUseCase) release(ctx context.Context, run *application.Run, orderID string, lines []domain.Line, reason string) {
	ctx = context.WithoutCancel(ctx)
	for i := len(lines) - 1; i >= 0; i-- {
		l := lines[i]
		if err := uc.ledger.Restock(ctx, l.ProductID, l.Quantity); err != nil {
			run.Logger().Error("stock_compensation_failed",
				observability.F("product_id", l.ProductID),
				observability.F("quantity", l.Quantity),
				observability.F("reason", reason),
				observability.Err(err),
			)
			continue
		}
		uc.compensations.Add(1, observability.L("reason", reason))
		run.Publish(ctx, uc.publisher, dominv.NewStockReleasedEvent(orderID, l.ProductID, l.Quantity, reason))
	}
}
