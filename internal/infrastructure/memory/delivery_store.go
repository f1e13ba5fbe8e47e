package memory

import (
	"context"
	"sync"
	"time"
)

// DeliveryStore remembers webhook delivery ids for ttl. Expired ids are
// dropped lazily on access.
type DeliveryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewDeliveryStore(ttl time.Duration) *DeliveryStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &DeliveryStore{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (s *DeliveryStore) Seen(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.seen[id]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.seen, id)
		return false, nil
	}
	return true, nil
}

func (s *DeliveryStore) Remember(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = s.now().Add(s.ttl)
	return nil
}
