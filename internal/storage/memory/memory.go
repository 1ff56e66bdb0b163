package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	"github.com/google/uuid"
)

// Storage is the reference in-memory ticket store. A single mutex guards the
// map, so ConditionalAdmit's occupant count and the entered_at transition
// happen in one critical section, the same atomicity the SQL stores provide
// with transactions.
type Storage struct {
	mu      sync.RWMutex
	tickets map[uuid.UUID]models.Ticket
}

func New() *Storage {
	return &Storage{tickets: make(map[uuid.UUID]models.Ticket)}
}

func (s *Storage) SaveTicket(ctx context.Context, ticket models.Ticket) error {
	const op = "storage.memory.SaveTicket"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticket.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrTicketExists)
	}

	s.tickets[ticket.ID] = ticket
	return nil
}

func (s *Storage) Ticket(ctx context.Context, id uuid.UUID) (models.Ticket, error) {
	const op = "storage.memory.Ticket"

	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
	}

	return ticket, nil
}

func (s *Storage) CountOccupants(ctx context.Context, product string, asOf time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countOccupantsLocked(product, asOf), nil
}

func (s *Storage) countOccupantsLocked(product string, asOf time.Time) int {
	count := 0
	for _, ticket := range s.tickets {
		if ticket.Product == product && ticket.Occupant(asOf) {
			count++
		}
	}

	return count
}

func (s *Storage) WaitingTickets(ctx context.Context, product string, limit int) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	waiting := s.waitingLocked(product)
	if limit >= 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}

	return waiting, nil
}

// waitingLocked returns the waiting tickets of a product in FIFO order:
// created_at ascending, id ascending on equal timestamps.
func (s *Storage) waitingLocked(product string) []models.Ticket {
	var waiting []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.Product == product && ticket.Waiting() {
			waiting = append(waiting, ticket)
		}
	}

	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
		}
		return waiting[i].ID.String() < waiting[j].ID.String()
	})

	return waiting
}

func (s *Storage) WaitingRank(ctx context.Context, product string, id uuid.UUID) (int, error) {
	const op = "storage.memory.WaitingRank"

	s.mu.RLock()
	defer s.mu.RUnlock()

	for rank, ticket := range s.waitingLocked(product) {
		if ticket.ID == id {
			return rank, nil
		}
	}

	return 0, fmt.Errorf("%s: %w", op, storage.ErrTicketNotWaiting)
}

func (s *Storage) ConditionalAdmit(ctx context.Context, id uuid.UUID, capacity int, now time.Time, occupancy time.Duration) (bool, error) {
	const op = "storage.memory.ConditionalAdmit"

	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
	}

	if ticket.EnteredAt != nil {
		return false, nil
	}

	if s.countOccupantsLocked(ticket.Product, now) >= capacity {
		return false, nil
	}

	enteredAt := now
	expiresAt := now.Add(occupancy)
	ticket.EnteredAt = &enteredAt
	ticket.ExpiresAt = &expiresAt
	s.tickets[id] = ticket

	return true, nil
}

func (s *Storage) SoonestExits(ctx context.Context, product string, asOf time.Time, limit int) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exits []time.Time
	for _, ticket := range s.tickets {
		if ticket.Product == product && ticket.Occupant(asOf) {
			exits = append(exits, *ticket.ExpiresAt)
		}
	}

	sort.Slice(exits, func(i, j int) bool { return exits[i].Before(exits[j]) })

	if limit >= 0 && len(exits) > limit {
		exits = exits[:limit]
	}

	return exits, nil
}

func (s *Storage) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, ticket := range s.tickets {
		if ticket.ExpiresAt != nil && ticket.ExpiresAt.Before(asOf) {
			delete(s.tickets, id)
			removed++
		}
	}

	return removed, nil
}
