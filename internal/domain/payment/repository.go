package payment

import (
	"context"
	"time"
)

type MutateFunc func(p *Payment) error

type Repository interface {
	// Insert fails with ErrConflict when the order already has a payment or the
	// transaction reference is taken.
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	GetByRef(ctx context.Context, ref string) (*Payment, error)
	// ListPending returns pending payments created before cutoff, oldest first.
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)
	// Transition runs fn under the payment's write lock and persists the result.
	Transition(ctx context.Context, id string, fn MutateFunc) (*Payment, error)
}
