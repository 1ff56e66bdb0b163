package sqllite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/converter"
	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	storageModel "github.com/BariVakhidov/waitingroom/internal/storage/model"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) SaveTicket(ctx context.Context, ticket models.Ticket) error {
	const op = "storage.sqlite.SaveTicket"

	stmt, err := s.db.Prepare("INSERT INTO tickets(id,product,created_at) VALUES(?,?,?)")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, ticket.ID.String(), ticket.Product, ticket.CreatedAt.UTC()); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%s: %w", op, storage.ErrTicketExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Ticket(ctx context.Context, id uuid.UUID) (models.Ticket, error) {
	const op = "storage.sqlite.Ticket"

	stmt, err := s.db.Prepare("SELECT id,product,created_at,entered_at,expires_at FROM tickets WHERE id=?")
	if err != nil {
		return models.Ticket{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var ticket storageModel.Ticket
	row := stmt.QueryRowContext(ctx, id.String())
	if err := row.Scan(&ticket.ID, &ticket.Product, &ticket.CreatedAt, &ticket.EnteredAt, &ticket.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Ticket{}, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
		}

		return models.Ticket{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToTicketFromStorage(ticket), nil
}

func (s *Storage) CountOccupants(ctx context.Context, product string, asOf time.Time) (int, error) {
	const op = "storage.sqlite.CountOccupants"

	stmt, err := s.db.Prepare("SELECT COUNT(*) FROM tickets WHERE product=? AND entered_at IS NOT NULL AND expires_at>?")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var count int
	if err := stmt.QueryRowContext(ctx, product, asOf.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) WaitingTickets(ctx context.Context, product string, limit int) ([]models.Ticket, error) {
	const op = "storage.sqlite.WaitingTickets"

	stmt, err := s.db.Prepare(`SELECT id,product,created_at,entered_at,expires_at FROM tickets
		WHERE product=? AND entered_at IS NULL
		ORDER BY created_at,id
		LIMIT ?`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, product, limit)
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
	const op = "storage.sqlite.WaitingRank"

	stmt, err := s.db.Prepare(`SELECT (SELECT COUNT(*) FROM tickets w
			WHERE w.product=t.product AND w.entered_at IS NULL
			AND (w.created_at<t.created_at OR (w.created_at=t.created_at AND w.id<t.id)))
		FROM tickets t WHERE t.id=? AND t.product=? AND t.entered_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var rank int
	if err := stmt.QueryRowContext(ctx, id.String(), product).Scan(&rank); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrTicketNotWaiting)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return rank, nil
}

// ConditionalAdmit relies on sqlite's single-writer model: the capacity check
// and the entered_at transition live in one UPDATE statement, so no other
// writer can slip between the count and the write.
func (s *Storage) ConditionalAdmit(ctx context.Context, id uuid.UUID, capacity int, now time.Time, occupancy time.Duration) (bool, error) {
	const op = "storage.sqlite.ConditionalAdmit"

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets WHERE id=?", id.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%s: %w", op, storage.ErrTicketNotFound)
	}

	stmt, err := s.db.Prepare(`UPDATE tickets SET entered_at=?,expires_at=?
		WHERE id=? AND entered_at IS NULL
		AND (SELECT COUNT(*) FROM tickets o
			WHERE o.product=tickets.product AND o.entered_at IS NOT NULL AND o.expires_at>?) < ?`)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, now.UTC(), now.Add(occupancy).UTC(), id.String(), now.UTC(), capacity)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return affected > 0, nil
}

func (s *Storage) SoonestExits(ctx context.Context, product string, asOf time.Time, limit int) ([]time.Time, error) {
	const op = "storage.sqlite.SoonestExits"

	stmt, err := s.db.Prepare(`SELECT expires_at FROM tickets
		WHERE product=? AND entered_at IS NOT NULL AND expires_at>?
		ORDER BY expires_at
		LIMIT ?`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, product, asOf.UTC(), limit)
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
	const op = "storage.sqlite.DeleteExpired"

	res, err := s.db.ExecContext(ctx, "DELETE FROM tickets WHERE expires_at<?", asOf.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return removed, nil
}

func (s *Storage) Close() error {
	const op = "storage.sqlite.Close"

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
