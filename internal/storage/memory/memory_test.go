package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const occupancy = 10 * time.Minute

func newTicket(product string, createdAt time.Time) models.Ticket {
	return models.Ticket{
		ID:        uuid.New(),
		Product:   product,
		CreatedAt: createdAt,
	}
}

func TestSaveTicket_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := New()

	ticket := newTicket(gofakeit.ProductName(), time.Now())
	require.NoError(t, store.SaveTicket(ctx, ticket))

	err := store.SaveTicket(ctx, ticket)
	assert.ErrorIs(t, err, storage.ErrTicketExists)
}

func TestTicket_NotFound(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Ticket(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrTicketNotFound)
}

func TestWaitingTickets_FifoOrder(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	base := time.Now()

	second := newTicket(product, base.Add(time.Second))
	first := newTicket(product, base)
	require.NoError(t, store.SaveTicket(ctx, second))
	require.NoError(t, store.SaveTicket(ctx, first))

	// a different product must not leak into the partition
	require.NoError(t, store.SaveTicket(ctx, newTicket(product+"-other", base)))

	waiting, err := store.WaitingTickets(ctx, product, 10)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, first.ID, waiting[0].ID)
	assert.Equal(t, second.ID, waiting[1].ID)
}

func TestWaitingTickets_TieBrokenByID(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	createdAt := time.Now()

	var tickets []models.Ticket
	for i := 0; i < 5; i++ {
		ticket := newTicket(product, createdAt)
		tickets = append(tickets, ticket)
		require.NoError(t, store.SaveTicket(ctx, ticket))
	}

	waiting, err := store.WaitingTickets(ctx, product, 10)
	require.NoError(t, err)
	require.Len(t, waiting, 5)

	for i := 1; i < len(waiting); i++ {
		assert.Less(t, waiting[i-1].ID.String(), waiting[i].ID.String())
	}
}

func TestWaitingRank(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	base := time.Now()

	first := newTicket(product, base)
	second := newTicket(product, base.Add(time.Second))
	require.NoError(t, store.SaveTicket(ctx, first))
	require.NoError(t, store.SaveTicket(ctx, second))

	rank, err := store.WaitingRank(ctx, product, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)

	rank, err = store.WaitingRank(ctx, product, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	_, err = store.WaitingRank(ctx, product, uuid.New())
	assert.ErrorIs(t, err, storage.ErrTicketNotWaiting)
}

func TestConditionalAdmit_SetsWindowOnce(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	now := time.Now()

	ticket := newTicket(product, now)
	require.NoError(t, store.SaveTicket(ctx, ticket))

	admitted, err := store.ConditionalAdmit(ctx, ticket.ID, 1, now, occupancy)
	require.NoError(t, err)
	require.True(t, admitted)

	stored, err := store.Ticket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EnteredAt)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, stored.EnteredAt.Add(occupancy), *stored.ExpiresAt)

	// a second transition must not move the window
	admitted, err = store.ConditionalAdmit(ctx, ticket.ID, 1, now.Add(time.Minute), occupancy)
	require.NoError(t, err)
	assert.False(t, admitted)

	again, err := store.Ticket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, *stored.ExpiresAt, *again.ExpiresAt)
}

func TestConditionalAdmit_UnknownTicket(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.ConditionalAdmit(ctx, uuid.New(), 1, time.Now(), occupancy)
	assert.ErrorIs(t, err, storage.ErrTicketNotFound)
}

// The capacity invariant must hold even when far more callers than slots race
// for the same product.
func TestConditionalAdmit_ConcurrentCapacityInvariant(t *testing.T) {
	const (
		capacity = 3
		callers  = 50
	)

	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	now := time.Now()

	ids := make([]uuid.UUID, callers)
	for i := range ids {
		ticket := newTicket(product, now.Add(time.Duration(i)*time.Millisecond))
		ids[i] = ticket.ID
		require.NoError(t, store.SaveTicket(ctx, ticket))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()

			admitted, err := store.ConditionalAdmit(ctx, id, capacity, now, occupancy)
			assert.NoError(t, err)
			if admitted {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, capacity, succeeded)

	occupants, err := store.CountOccupants(ctx, product, now)
	require.NoError(t, err)
	assert.Equal(t, capacity, occupants)
}

func TestCountOccupants_ExcludesExpired(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	now := time.Now()

	ticket := newTicket(product, now)
	require.NoError(t, store.SaveTicket(ctx, ticket))

	admitted, err := store.ConditionalAdmit(ctx, ticket.ID, 1, now, occupancy)
	require.NoError(t, err)
	require.True(t, admitted)

	occupants, err := store.CountOccupants(ctx, product, now)
	require.NoError(t, err)
	assert.Equal(t, 1, occupants)

	// past the window the slot is free even before reclamation runs
	occupants, err = store.CountOccupants(ctx, product, now.Add(occupancy).Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, occupants)
}

func TestSoonestExits_SortedAscending(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	now := time.Now()

	for i := 3; i > 0; i-- {
		ticket := newTicket(product, now)
		require.NoError(t, store.SaveTicket(ctx, ticket))

		admitted, err := store.ConditionalAdmit(ctx, ticket.ID, 3, now.Add(time.Duration(i)*time.Minute), occupancy)
		require.NoError(t, err)
		require.True(t, admitted)
	}

	exits, err := store.SoonestExits(ctx, product, now, 10)
	require.NoError(t, err)
	require.Len(t, exits, 3)

	for i := 1; i < len(exits); i++ {
		assert.True(t, exits[i-1].Before(exits[i]), fmt.Sprintf("exit %d not before exit %d", i-1, i))
	}
}

func TestDeleteExpired_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := New()
	product := gofakeit.ProductName()
	now := time.Now()

	waiting := newTicket(product, now)
	require.NoError(t, store.SaveTicket(ctx, waiting))

	occupant := newTicket(product, now)
	require.NoError(t, store.SaveTicket(ctx, occupant))

	admitted, err := store.ConditionalAdmit(ctx, occupant.ID, 2, now, occupancy)
	require.NoError(t, err)
	require.True(t, admitted)

	asOf := now.Add(occupancy).Add(time.Second)

	removed, err := store.DeleteExpired(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// waiting tickets are never reaped
	_, err = store.Ticket(ctx, waiting.ID)
	require.NoError(t, err)

	_, err = store.Ticket(ctx, occupant.ID)
	assert.ErrorIs(t, err, storage.ErrTicketNotFound)

	removed, err = store.DeleteExpired(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
