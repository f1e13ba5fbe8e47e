package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
)

type OrderRepository struct {
	mu          sync.RWMutex
	transitions keyLocks
	orders      map[string]*domain.Order
	byUser      map[string][]string
	idempotency map[string]string // user id + "\x00" + key -> order id
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]*domain.Order),
		byUser:      make(map[string][]string),
		idempotency: make(map[string]string),
	}
}

func idemKey(userID, key string) string { return userID + "\x00" + key }

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if key := order.IdempotencyKey; key != "" {
		if _, exists := r.idempotency[idemKey(order.UserID, key)]; exists {
			return domain.ErrConflict
		}
		r.idempotency[idemKey(order.UserID, key)] = order.ID
	}

	r.orders[order.ID] = order.Clone()
	r.byUser[order.UserID] = append(r.byUser[order.UserID], order.ID)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.orders[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.idempotency[idemKey(userID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.orders[orderID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

// Transition serializes read-modify-write per order. fn runs without the
// repository lock, so other orders and readers are not held up by it.
func (r *OrderRepository) Transition(ctx context.Context, id string, fn domain.MutateFunc) (*domain.Order, error) {
	unlock := r.transitions.lock(id)
	defer unlock()

	draft, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(draft); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.orders[id] = draft.Clone()
	r.mu.Unlock()
	return draft, nil
}
