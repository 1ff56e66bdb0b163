package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/lib/logger/sl"
	"github.com/BariVakhidov/waitingroom/internal/storage"
)

type Reclaimer interface {
	Reap(ctx context.Context) (int64, error)
}

// ReclaimLocker serializes the reclamation cadence across instances. The scan
// itself is idempotent; the lock only keeps replicas from all scanning at once.
type ReclaimLocker interface {
	AcquireReclaimLock(ctx context.Context, instanceID string) error
	ReleaseReclaimLock(ctx context.Context, instanceID string) error
}

type Reaper struct {
	log        *slog.Logger
	reclaimer  Reclaimer
	locker     ReclaimLocker
	instanceID string
	stopChan   chan struct{}
}

func New(log *slog.Logger, reclaimer Reclaimer, locker ReclaimLocker, instanceID string) *Reaper {
	return &Reaper{
		log:        log,
		reclaimer:  reclaimer,
		locker:     locker,
		instanceID: instanceID,
		stopChan:   make(chan struct{}),
	}
}

// StartReaping launches the periodic reclamation loop. The cadence lives here,
// not in the engine: Reap stays an explicit operation callers can also trigger
// directly.
func (r *Reaper) StartReaping(ctx context.Context, interval time.Duration) {
	const op = "service.reaper.StartReaping"
	log := r.log.With(slog.String("op", op))

	ticker := time.NewTicker(interval)

	log.Info("starting reclamation loop", slog.Duration("interval", interval))

	go func() {
		defer ticker.Stop()
		defer log.Info("stopping reclamation loop")

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.reapOnce(ctx)
			}
		}
	}()
}

func (r *Reaper) reapOnce(ctx context.Context) {
	const op = "service.reaper.reapOnce"
	log := r.log.With(slog.String("op", op))

	if err := r.locker.AcquireReclaimLock(ctx, r.instanceID); err != nil {
		if errors.Is(err, storage.ErrLockNotAcquired) {
			log.Debug("another instance holds the reclaim lock")
			return
		}

		log.Error("failed to acquire reclaim lock", sl.Err(err))
		return
	}

	defer func() {
		if err := r.locker.ReleaseReclaimLock(ctx, r.instanceID); err != nil {
			log.Error("failed to release reclaim lock", sl.Err(err))
		}
	}()

	if _, err := r.reclaimer.Reap(ctx); err != nil {
		log.Error("reclamation failed", sl.Err(err))
	}
}

func (r *Reaper) Stop() {
	close(r.stopChan)
}
