// Package catalog describes the products orders are placed against. The
// catalog itself is maintained elsewhere; this service only reads it and
// moves stock through the inventory ledger.
package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("catalog: product not found")

type Product struct {
	ID   string
	Name string
	// UnitPrice is in the smallest currency unit.
	UnitPrice int64
	Stock     int
}

type Reader interface {
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
}
