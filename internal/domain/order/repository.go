package order

import "context"

// MutateFunc edits a private copy of an order; returning an error discards the edit.
type MutateFunc func(o *Order) error

type Repository interface {
	// Insert stores the order and all its lines as one unit. ErrConflict when the
	// id or the (user, idempotency key) pair is taken.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	// Transition runs fn under the order's write lock and persists the result.
	Transition(ctx context.Context, id string, fn MutateFunc) (*Order, error)
}
