package waitingroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type WaitingRoom struct {
	log            *slog.Logger
	ticketSaver    TicketSaver
	ticketProvider TicketProvider
	roomAdmitter   RoomAdmitter
	ticketReaper   TicketReaper
	eventPublisher EventPublisher
	cfg            Config
	metrics        Metrics
	now            func() time.Time
}

// Config is fixed at construction; capacity and occupancy are per-deployment
// settings, not runtime state.
type Config struct {
	RoomCapacity      int
	OccupancyDuration time.Duration
}

type Metrics struct {
	Enqueued *prometheus.CounterVec
	Admitted *prometheus.CounterVec
	Rejected *prometheus.CounterVec
	Reaped   prometheus.Counter
}

type TicketSaver interface {
	SaveTicket(ctx context.Context, ticket models.Ticket) error
}

type TicketProvider interface {
	Ticket(ctx context.Context, id uuid.UUID) (models.Ticket, error)
	CountOccupants(ctx context.Context, product string, asOf time.Time) (int, error)
	WaitingRank(ctx context.Context, product string, id uuid.UUID) (int, error)
	SoonestExits(ctx context.Context, product string, asOf time.Time, limit int) ([]time.Time, error)
}

// RoomAdmitter performs the waiting→occupant transition. The implementation
// must count occupants and set entered_at inside one atomic boundary; the
// engine's own eligibility check is advisory and may race.
type RoomAdmitter interface {
	ConditionalAdmit(ctx context.Context, id uuid.UUID, capacity int, now time.Time, occupancy time.Duration) (bool, error)
}

type TicketReaper interface {
	DeleteExpired(ctx context.Context, asOf time.Time) (int64, error)
}

type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event models.TicketEvent) error
}

// New returns a new instance of the WaitingRoom service
func New(
	log *slog.Logger,
	ticketSaver TicketSaver,
	ticketProvider TicketProvider,
	roomAdmitter RoomAdmitter,
	ticketReaper TicketReaper,
	eventPublisher EventPublisher,
	cfg Config,
	metrics Metrics,
) *WaitingRoom {
	return &WaitingRoom{
		log:            log,
		ticketSaver:    ticketSaver,
		ticketProvider: ticketProvider,
		roomAdmitter:   roomAdmitter,
		ticketReaper:   ticketReaper,
		eventPublisher: eventPublisher,
		cfg:            cfg,
		metrics:        metrics,
		now:            time.Now,
	}
}

// Enqueue creates a fresh waiting ticket for the product.
func (w *WaitingRoom) Enqueue(ctx context.Context, product string) (models.Ticket, error) {
	const op = "waitingroom.Enqueue"
	log := w.log.With("op", op, slog.String("product", product))

	if product == "" {
		return models.Ticket{}, fmt.Errorf("%s: %w", op, ErrInvalidProduct)
	}

	ticket := models.Ticket{
		ID:        uuid.New(),
		Product:   product,
		CreatedAt: w.now(),
	}

	if err := w.ticketSaver.SaveTicket(ctx, ticket); err != nil {
		// id collisions are not a recoverable condition with random uuids
		log.Error("failed to save ticket", "err", err)
		return models.Ticket{}, fmt.Errorf("%s: %w", op, err)
	}

	w.metrics.Enqueued.WithLabelValues(product).Inc()
	w.publishEvent(ctx, models.EventTicketEnqueued, ticket)

	log.Info("ticket enqueued", slog.String("ticketId", ticket.ID.String()))

	return ticket, nil
}

// Status reports whether the ticket may enter now and, if not, the advisory
// wait estimate in whole minutes.
func (w *WaitingRoom) Status(ctx context.Context, id uuid.UUID) (Status, error) {
	const op = "waitingroom.Status"
	log := w.log.With("op", op)

	ticket, err := w.ticketProvider.Ticket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return Status{}, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}

		log.Error("failed to get ticket", "err", err)
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}

	now := w.now()

	eligible, err := w.eligible(ctx, ticket, now)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}

	estimate, err := w.estimate(ctx, ticket, now)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}

	return Status{Eligible: eligible, EstimatedWaitMinutes: estimate}, nil
}

type Status struct {
	Eligible             bool
	EstimatedWaitMinutes int
}

// IsEligible reports whether the ticket currently qualifies for admission: an
// active occupant is trivially eligible, a waiting ticket is eligible when its
// FIFO rank fits into the free slots, an expired ticket is not.
func (w *WaitingRoom) IsEligible(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "waitingroom.IsEligible"

	ticket, err := w.ticketProvider.Ticket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	eligible, err := w.eligible(ctx, ticket, w.now())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return eligible, nil
}

func (w *WaitingRoom) eligible(ctx context.Context, ticket models.Ticket, now time.Time) (bool, error) {
	if ticket.Occupant(now) {
		return true, nil
	}

	if !ticket.Waiting() {
		// admitted earlier, window already elapsed
		return false, nil
	}

	rank, err := w.ticketProvider.WaitingRank(ctx, ticket.Product, ticket.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotWaiting) {
			return false, nil
		}

		return false, err
	}

	occupants, err := w.ticketProvider.CountOccupants(ctx, ticket.Product, now)
	if err != nil {
		return false, err
	}

	return rank < w.cfg.RoomCapacity-occupants, nil
}

// Admit re-checks eligibility and performs the conditional transition. A false
// result is a normal outcome: the ticket was not eligible, or another caller
// took the last slot first. Over-admission is prevented by the store's atomic
// check, not by the eligibility read here.
func (w *WaitingRoom) Admit(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "waitingroom.Admit"
	log := w.log.With("op", op, slog.String("ticketId", id.String()))

	ticket, err := w.ticketProvider.Ticket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}

		log.Error("failed to get ticket", "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	now := w.now()

	eligible, err := w.eligible(ctx, ticket, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !eligible {
		w.metrics.Rejected.WithLabelValues(ticket.Product).Inc()
		return false, nil
	}

	admitted, err := w.roomAdmitter.ConditionalAdmit(ctx, id, w.cfg.RoomCapacity, now, w.cfg.OccupancyDuration)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}

		log.Error("failed to admit ticket", "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !admitted {
		w.metrics.Rejected.WithLabelValues(ticket.Product).Inc()
		log.Info("admission lost race")
		return false, nil
	}

	w.metrics.Admitted.WithLabelValues(ticket.Product).Inc()
	w.publishEvent(ctx, models.EventTicketAdmitted, ticket)

	log.Info("ticket admitted", slog.String("product", ticket.Product))

	return true, nil
}

// Reap removes tickets whose occupancy window elapsed. Waiting tickets are
// never touched; CountOccupants filters by expires_at on its own, so a late
// reap only delays physical cleanup, not slot release.
func (w *WaitingRoom) Reap(ctx context.Context) (int64, error) {
	const op = "waitingroom.Reap"
	log := w.log.With("op", op)

	removed, err := w.ticketReaper.DeleteExpired(ctx, w.now())
	if err != nil {
		log.Error("failed to delete expired tickets", "err", err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	w.metrics.Reaped.Add(float64(removed))

	log.Info("expired tickets removed", slog.Int64("removed", removed))

	return removed, nil
}

// publishEvent is best-effort: a broker outage must not fail the request.
func (w *WaitingRoom) publishEvent(ctx context.Context, eventType string, ticket models.Ticket) {
	event := models.TicketEvent{
		Type:     eventType,
		TicketID: ticket.ID,
		Product:  ticket.Product,
		At:       w.now(),
	}

	if err := w.eventPublisher.PublishTicketEvent(ctx, event); err != nil {
		w.log.Warn("failed to publish ticket event", slog.String("type", eventType), "err", err)
	}
}
