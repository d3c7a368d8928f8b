package storage

import (
	"context"
	"sync"

	"github.com/example/ride-booking/internal/models"
)

// OrderJournal keeps a local record of every order this client has tracked.
type OrderJournal interface {
	SaveOrder(ctx context.Context, o models.Order) error
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error
}

type MemoryJournal struct {
	mu     sync.RWMutex
	orders map[int64]models.Order
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{orders: make(map[int64]models.Order)}
}

func (m *MemoryJournal) SaveOrder(_ context.Context, o models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryJournal) UpdateStatus(_ context.Context, id int64, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		o = models.Order{ID: id}
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *MemoryJournal) Get(id int64) (models.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o.Clone(), ok
}
