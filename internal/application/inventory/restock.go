package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront/internal/application"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService       = "inventory-service"
	useCaseRestockOnCancel = "inventory.restock_on_cancel"
	useCaseTakeBack        = "inventory.take_back"
)

type RestockCommand struct {
	OrderID string
	Lines   []domorder.Line
}

// RestockResult reports what a cancellation did to stock.
type RestockResult struct {
	Restocked bool
	Units     int
}

// RestockOnCancelUseCase returns a cancelled order's units to stock. Whether
// cancellation restocks at all is a deployment policy. It runs inside the
// cancel transition of the order and payment use cases, so a failure here
// aborts the cancellation instead of losing stock.
type RestockOnCancelUseCase struct {
	ledger  dominv.Ledger
	enabled bool
	in      *application.Instrument
}

func NewRestockOnCancelUseCase(ledger dominv.Ledger, enabled bool, tel observability.Observability) *RestockOnCancelUseCase {
	return &RestockOnCancelUseCase{
		ledger:  ledger,
		enabled: enabled,
		in:      application.NewInstrument(tel, inventoryService),
	}
}

// Execute returns every line or none: when a line fails, the lines already
// returned are reserved again.
func (uc *RestockOnCancelUseCase) Execute(ctx context.Context, cmd RestockCommand) (_ *RestockResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseRestockOnCancel, "RestockOnCancel",
		attribute.String("order.id", cmd.OrderID),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { run.End(err) }()
	run.Annotate(observability.F("order_id", cmd.OrderID))

	if !uc.enabled {
		run.Status("POLICY_DISABLED")
		return &RestockResult{}, nil
	}

	returned := make([]domorder.Line, 0, len(cmd.Lines))
	units := 0
	for _, l := range cmd.Lines {
		if rerr := uc.ledger.Restock(ctx, l.ProductID, l.Quantity); rerr != nil {
			rerr = fmt.Errorf("restock %s: %w", l.ProductID, rerr)
			if cerr := uc.reserve(ctx, returned); cerr != nil {
				run.Logger().Error("restock_undo_failed",
					observability.F("order_id", cmd.OrderID),
					observability.Err(cerr),
				)
				rerr = errors.Join(rerr, cerr)
			}
			return nil, run.Fail(rerr)
		}
		returned = append(returned, l)
		units += l.Quantity
	}
	run.Annotate(observability.F("units", units))
	return &RestockResult{Restocked: true, Units: units}, nil
}

// ReturnStock is the cancellation hook the order and payment use cases call.
func (uc *RestockOnCancelUseCase) ReturnStock(ctx context.Context, orderID string, lines []domorder.Line) (bool, error) {
	res, err := uc.Execute(ctx, RestockCommand{OrderID: orderID, Lines: lines})
	if err != nil {
		return false, err
	}
	return res.Restocked, nil
}

// TakeBack reserves lines again after a cancellation that returned them failed
// to persist.
func (uc *RestockOnCancelUseCase) TakeBack(ctx context.Context, orderID string, lines []domorder.Line) (err error) {
	ctx, run := uc.in.Begin(ctx, useCaseTakeBack, "TakeBackStock",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()
	run.Annotate(observability.F("order_id", orderID))

	if err := uc.reserve(ctx, lines); err != nil {
		return run.Fail(err)
	}
	return nil
}

func (uc *RestockOnCancelUseCase) reserve(ctx context.Context, lines []domorder.Line) error {
	var errs []error
	for _, l := range lines {
		if err := uc.ledger.Reserve(ctx, l.ProductID, l.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("reserve %s: %w", l.ProductID, err))
		}
	}
	return errors.Join(errs...)
}
