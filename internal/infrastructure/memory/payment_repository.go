package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
)

type PaymentRepository struct {
	mu          sync.RWMutex
	transitions keyLocks
	payments    map[string]*domain.Payment
	byOrder     map[string]string
	byRef       map[string]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		byOrder:  make(map[string]string),
		byRef:    make(map[string]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrConflict
	}
	if _, exists := r.byOrder[p.OrderID]; exists {
		return domain.ErrConflict
	}
	if p.TransactionRef != "" {
		if _, exists := r.byRef[p.TransactionRef]; exists {
			return domain.ErrConflict
		}
		r.byRef[p.TransactionRef] = p.ID
	}
	r.byOrder[p.OrderID] = p.ID
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byOrder[orderID])
}

func (r *PaymentRepository) GetByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byRef[ref])
}

func (r *PaymentRepository) lookup(id string) (*domain.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.StatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition serializes read-modify-write per payment.
func (r *PaymentRepository) Transition(ctx context.Context, id string, fn domain.MutateFunc) (*domain.Payment, error) {
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
	r.payments[id] = draft.Clone()
	r.mu.Unlock()
	return draft, nil
}
