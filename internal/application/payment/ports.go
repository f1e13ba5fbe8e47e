package payment

import (
	"context"

	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

// DeliveryStore remembers webhook delivery ids that were fully processed.
type DeliveryStore interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Remember(ctx context.Context, deliveryID string) error
}

// StockReturner returns a cancelled order's units to stock. TakeBack undoes a
// return whose cancellation could not be stored.
type StockReturner interface {
	ReturnStock(ctx context.Context, orderID string, lines []domorder.Line) (restocked bool, err error)
	TakeBack(ctx context.Context, orderID string, lines []domorder.Line) error
}
