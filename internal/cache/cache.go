// Package cache holds per-customer cart state. Carts are working state,
// not records: they live outside the relational store and are dropped
// wholesale on checkout.
package cache

import (
	"context"
	"sync"
	"time"

	"retailops/backend/internal/domain"
)

type CartStore interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart, ttl time.Duration) error
	Clear(ctx context.Context, customerID string) error
}

// MemoryCartStore backs dev/demo mode and tests. TTLs are ignored; carts
// live until cleared or the process exits.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]domain.Cart)}
}

func (s *MemoryCartStore) Get(_ context.Context, customerID string) (*domain.Cart, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[customerID]
	if !ok {
		return nil, false, nil
	}
	found := cart
	return &found, true, nil
}

func (s *MemoryCartStore) Save(_ context.Context, cart domain.Cart, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[cart.CustomerID] = cart
	return nil
}

func (s *MemoryCartStore) Clear(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, customerID)
	return nil
}
