package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// MemoryTicketStore keeps the collection in process. Used by tests and STORE_DRIVER=memory.
// Seeded tickets that fail validation are held like invalid records in a payload.
type MemoryTicketStore struct {
	mu      sync.Mutex
	current slot
	saves   int
}

// NewMemoryTicketStore returns a store seeded with tickets.
func NewMemoryTicketStore(seed ...domain.Ticket) *MemoryTicketStore {
	return &MemoryTicketStore{current: slotFromTickets(seed)}
}

func (s *MemoryTicketStore) LoadAll(ctx context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTickets(s.current.tickets), nil
}

func (s *MemoryTicketStore) SaveAll(ctx context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(tickets)
}

func (s *MemoryTicketStore) Transact(ctx context.Context, fn MutateFunc) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := cloneTickets(s.current.tickets)
	next, changed, err := fn(current)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	if err := s.saveLocked(next); err != nil {
		return nil, err
	}
	return cloneTickets(next), nil
}

// Saves reports how many writes reached the store.
func (s *MemoryTicketStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Held reports how many invalid records the store is carrying.
func (s *MemoryTicketStore) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.current.held)
}

func (s *MemoryTicketStore) saveLocked(tickets []domain.Ticket) error {
	if _, err := s.current.encode(tickets); err != nil {
		return err
	}
	s.current = s.current.with(tickets)
	s.saves++
	return nil
}
