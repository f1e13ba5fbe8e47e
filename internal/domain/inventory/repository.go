package inventory

import (
	"context"
)

// Ledger owns product stock. Reserve is an atomic check-and-decrement per product:
// concurrent callers can never drive stock below zero.
type Ledger interface {
	// Reserve returns *InsufficientStockError when stock < quantity and ErrNotFound
	// for unknown products. Nothing is decremented on error.
	Reserve(ctx context.Context, productID string, quantity int) error
	// Restock returns previously reserved units.
	Restock(ctx context.Context, productID string, quantity int) error
}
