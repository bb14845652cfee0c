package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ OrderStore = (*MemoryStore)(nil)

// MemoryStore implements OrderStore in process memory. Orders are copied in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrders inserts all orders or none of them.
func (s *MemoryStore) CreateOrders(_ context.Context, orders []*domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		if _, ok := s.orders[o.ID]; ok {
			return fmt.Errorf("order %s already exists", o.ID)
		}
	}
	for _, o := range orders {
		cp := *o
		s.orders[o.ID] = &cp
	}
	return nil
}

// GetOrder retrieves a single order by its ID.
func (s *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

// ListOrders returns orders matching the filter ordered by creation time.
func (s *MemoryStore) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if filter.Match(o) {
			out = append(out, *o)
		}
	}
	s.mu.RUnlock()

	sortOrders(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListGroup returns every member of a family group.
func (s *MemoryStore) ListGroup(ctx context.Context, groupID string) ([]domain.Order, error) {
	return s.ListOrders(ctx, domain.OrderFilter{GroupID: groupID})
}

// UpdateOrder writes order if its version matches the stored one.
func (s *MemoryStore) UpdateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, order.ID)
	}
	if cur.Version != order.Version {
		return fmt.Errorf("%w: order %s at version %d, have %d", domain.ErrConflict, order.ID, cur.Version, order.Version)
	}

	order.Version++
	order.UpdatedAt = s.now()
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

// CompareAndSwapStatus moves an order from any of `from` to `to`.
func (s *MemoryStore) CompareAndSwapStatus(_ context.Context, id string, from []domain.Status, to domain.Status, reason string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if !domain.ContainsStatus(from, cur.Status) {
		cp := *cur
		return &cp, fmt.Errorf("%w: order %s is %s", domain.ErrConflict, id, cur.Status)
	}

	cur.Status = to
	if reason != "" {
		cur.Reason = reason
	}
	cur.Version++
	cur.UpdatedAt = s.now()
	cp := *cur
	return &cp, nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
