package order

import (
	"context"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

// StockReturner puts a cancelled order's units back on the shelf. ReturnStock
// runs inside the cancel transition and returns all lines or none; restocked is
// false when the deployment keeps stock on cancellation. TakeBack undoes a
// return whose transition then failed to persist.
type StockReturner interface {
	ReturnStock(ctx context.Context, orderID string, lines []domain.Line) (restocked bool, err error)
	TakeBack(ctx context.Context, orderID string, lines []domain.Line) error
}
