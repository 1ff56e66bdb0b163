package storageapp

import (
	"context"
	"log/slog"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/config"
	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage/memory"
	"github.com/BariVakhidov/waitingroom/internal/storage/postgres"
	"github.com/BariVakhidov/waitingroom/internal/storage/sqllite"
	"github.com/google/uuid"
)

// TicketStore is the full queue store contract every backend implements.
type TicketStore interface {
	SaveTicket(ctx context.Context, ticket models.Ticket) error
	Ticket(ctx context.Context, id uuid.UUID) (models.Ticket, error)
	CountOccupants(ctx context.Context, product string, asOf time.Time) (int, error)
	WaitingTickets(ctx context.Context, product string, limit int) ([]models.Ticket, error)
	WaitingRank(ctx context.Context, product string, id uuid.UUID) (int, error)
	ConditionalAdmit(ctx context.Context, id uuid.UUID, capacity int, now time.Time, occupancy time.Duration) (bool, error)
	SoonestExits(ctx context.Context, product string, asOf time.Time, limit int) ([]time.Time, error)
	DeleteExpired(ctx context.Context, asOf time.Time) (int64, error)
}

type App struct {
	Storage TicketStore
	log     *slog.Logger
	close   func() error
}

func MustCreateApp(cfg config.StorageConfig, log *slog.Logger) *App {
	app := &App{log: log, close: func() error { return nil }}

	switch cfg.Type {
	case "postgres":
		storage, err := postgres.New(cfg.DSN)
		if err != nil {
			panic(err)
		}
		app.Storage = storage
		app.close = func() error {
			storage.ClosePool()
			return nil
		}
	case "sqlite":
		storage, err := sqllite.New(cfg.Path)
		if err != nil {
			panic(err)
		}
		app.Storage = storage
		app.close = storage.Close
	case "memory":
		app.Storage = memory.New()
	default:
		panic("unknown storage type: " + cfg.Type)
	}

	return app
}

func (a *App) Stop() {
	const op = "storageapp.Stop"
	a.log.With(slog.String("op", op)).Info("stopping storage app")

	if err := a.close(); err != nil {
		a.log.Error("failed to close storage", "err", err)
	}
}
