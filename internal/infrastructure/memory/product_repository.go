package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
)

// ProductRepository is the in-memory catalog and stock ledger. Each product
// has its own mutex so reservations on different products never contend.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*productSlot
}

type productSlot struct {
	mu      sync.Mutex
	product catalog.Product
}

func NewProductRepository(seed ...catalog.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]*productSlot, len(seed))}
	for _, p := range seed {
		r.Put(p)
	}
	return r
}

// Put adds or replaces a product.
func (r *ProductRepository) Put(p catalog.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.products[p.ID]; ok {
		slot.mu.Lock()
		slot.product = p
		slot.mu.Unlock()
		return
	}
	r.products[p.ID] = &productSlot{product: p}
}

func (r *ProductRepository) slot(id string) (*productSlot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.products[id]
	return s, ok
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx
	s, ok := r.slot(id)
	if !ok {
		return nil, catalog.ErrNotFound
	}
	s.mu.Lock()
	p := s.product
	s.mu.Unlock()
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*catalog.Product, error) {
	_ = ctx
	r.mu.RLock()
	slots := make([]*productSlot, 0, len(r.products))
	for _, s := range r.products {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]*catalog.Product, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		p := s.product
		s.mu.Unlock()
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	if err := dominv.ValidateQuantity(quantity); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s, ok := r.slot(productID)
	if !ok {
		return dominv.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.product.Stock < quantity {
		return &dominv.InsufficientStockError{
			ProductID:   productID,
			ProductName: s.product.Name,
			Requested:   quantity,
			Available:   s.product.Stock,
		}
	}
	s.product.Stock -= quantity
	return nil
}

func (r *ProductRepository) Restock(ctx context.Context, productID string, quantity int) error {
	_ = ctx
	if err := dominv.ValidateQuantity(quantity); err != nil {
		return err
	}
	s, ok := r.slot(productID)
	if !ok {
		return dominv.ErrNotFound
	}
	s.mu.Lock()
	s.product.Stock += quantity
	s.mu.Unlock()
	return nil
}
