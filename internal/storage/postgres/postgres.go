package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/converter"
	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	storageModel "github.com/BariVakhidov/waitingroom/internal/storage/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Storage struct {
	dbpool *pgxpool.Pool
}

var (
	pgOnce sync.Once
)

func New(dbAddr string) (*Storage, error) {
	const op = "storage.postgres.New"

	var (
		dbpool *pgxpool.Pool
		err    error
	)

	//single instance of the db
	pgOnce.Do(func() {
		dbpool, err = pgxpool.New(context.Background(), dbAddr)
	})

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{dbpool: dbpool}, nil
}

func (s *Storage) SaveTicket(ctx context.Context, ticket models.Ticket) error {
	const op = "storage.postgres.SaveTicket"

	query := "INSERT INTO tickets(id,product,created_at) VALUES(@ticketId,@product,@createdAt)"
	args := pgx.NamedArgs{
		"ticketId":  ticket.ID,
		"product":   ticket.Product,
		"createdAt": ticket.CreatedAt,
	}

	if _, err := s.dbpool.Exec(ctx, query, args); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, storage.ErrTicketExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Ticket(ctx context.Context, id uuid.UUID) (models.Ticket, error) {
	const op = "storage.postgres.Ticket"

	query := "SELECT id,product,created_at,entered_at,expires_at FROM tickets WHERE id=$1"
	var ticket storageModel.Ticket

	err := s.dbpool.QueryRow(ctx, query, id).
		Scan(&ticket.ID, &ticket.Product, &ticket.CreatedAt, &ticket.EnteredAt, &ticket.ExpiresAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
		}
		return models.Ticket{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToTicketFromStorage(ticket), nil
}

func (s *Storage) CountOccupants(ctx context.Context, product string, asOf time.Time) (int, error) {
	const op = "storage.postgres.CountOccupants"

	query := "SELECT COUNT(*) FROM tickets WHERE product=$1 AND entered_at IS NOT NULL AND expires_at>$2"
	var count int

	if err := s.dbpool.QueryRow(ctx, query, product, asOf).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) WaitingTickets(ctx context.Context, product string, limit int) ([]models.Ticket, error) {
	const op = "storage.postgres.WaitingTickets"

	query := `SELECT id,product,created_at,entered_at,expires_at FROM tickets
		WHERE product=$1 AND entered_at IS NULL
		ORDER BY created_at,id
		LIMIT $2`

	rows, err := s.dbpool.Query(ctx, query, product, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tickets []storageModel.Ticket
	for rows.Next() {
		var ticket storageModel.Ticket
		if err := rows.Scan(&ticket.ID, &ticket.Product, &ticket.CreatedAt, &ticket.EnteredAt, &ticket.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tickets = append(tickets, ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToTicketsFromStorage(tickets), nil
}

func (s *Storage) WaitingRank(ctx context.Context, product string, id uuid.UUID) (int, error) {
	const op = "storage.postgres.WaitingRank"

	query := `SELECT (SELECT COUNT(*) FROM tickets w
			WHERE w.product=t.product AND w.entered_at IS NULL
			AND (w.created_at,w.id) < (t.created_at,t.id))
		FROM tickets t WHERE t.id=$1 AND t.product=$2 AND t.entered_at IS NULL`

	var rank int
	if err := s.dbpool.QueryRow(ctx, query, id, product).Scan(&rank); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrTicketNotWaiting)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return rank, nil
}

// ConditionalAdmit grants the room slot inside a single transaction. The
// advisory lock on the product partition serializes concurrent admissions for
// the same product, so the occupant count read below cannot observe a stale
// state while another transaction is between its count and its update.
func (s *Storage) ConditionalAdmit(ctx context.Context, id uuid.UUID, capacity int, now time.Time, occupancy time.Duration) (bool, error) {
	const op = "storage.postgres.ConditionalAdmit"

	tx, err := s.dbpool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var product string
	err = tx.QueryRow(ctx, "SELECT product FROM tickets WHERE id=$1", id).Scan(&product)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", product); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	var occupants int
	countQuery := "SELECT COUNT(*) FROM tickets WHERE product=$1 AND entered_at IS NOT NULL AND expires_at>$2"
	if err = tx.QueryRow(ctx, countQuery, product, now).Scan(&occupants); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if occupants >= capacity {
		return false, nil
	}

	updateQuery := "UPDATE tickets SET entered_at=@enteredAt,expires_at=@expiresAt WHERE id=@ticketId AND entered_at IS NULL"
	args := pgx.NamedArgs{
		"enteredAt": now,
		"expiresAt": now.Add(occupancy),
		"ticketId":  id,
	}

	tag, err := tx.Exec(ctx, updateQuery, args)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

func (s *Storage) SoonestExits(ctx context.Context, product string, asOf time.Time, limit int) ([]time.Time, error) {
	const op = "storage.postgres.SoonestExits"

	query := `SELECT expires_at FROM tickets
		WHERE product=$1 AND entered_at IS NOT NULL AND expires_at>$2
		ORDER BY expires_at
		LIMIT $3`

	rows, err := s.dbpool.Query(ctx, query, product, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var exits []time.Time
	for rows.Next() {
		var exit time.Time
		if err := rows.Scan(&exit); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		exits = append(exits, exit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return exits, nil
}

func (s *Storage) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpired"

	tag, err := s.dbpool.Exec(ctx, "DELETE FROM tickets WHERE expires_at<$1", asOf)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) ClosePool() {
	s.dbpool.Close()
}
