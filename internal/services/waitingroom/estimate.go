package waitingroom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/storage"
	"github.com/google/uuid"
)

// EstimateUnknown is returned for tickets that no longer exist or whose
// occupancy window already elapsed.
const EstimateUnknown = -1

// EstimateWaitMinutes returns the advisory wait estimate for a ticket. The
// estimate simulates room turnover from the soonest occupant exits and the
// ticket's FIFO rank; it assumes no reordering ahead of the ticket and that
// every occupant stays for the full window, so it is an approximation, not a
// guarantee.
func (w *WaitingRoom) EstimateWaitMinutes(ctx context.Context, id uuid.UUID) (int, error) {
	const op = "waitingroom.EstimateWaitMinutes"

	ticket, err := w.ticketProvider.Ticket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return EstimateUnknown, nil
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	estimate, err := w.estimate(ctx, ticket, w.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return estimate, nil
}

func (w *WaitingRoom) estimate(ctx context.Context, ticket models.Ticket, now time.Time) (int, error) {
	if ticket.Occupant(now) {
		return 0, nil
	}

	if !ticket.Waiting() {
		return EstimateUnknown, nil
	}

	ahead, err := w.ticketProvider.WaitingRank(ctx, ticket.Product, ticket.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotWaiting) {
			return EstimateUnknown, nil
		}

		return 0, err
	}

	occupants, err := w.ticketProvider.CountOccupants(ctx, ticket.Product, now)
	if err != nil {
		return 0, err
	}

	exits, err := w.ticketProvider.SoonestExits(ctx, ticket.Product, now, w.cfg.RoomCapacity)
	if err != nil {
		return 0, err
	}

	return w.turnoverEstimate(exits, ahead, occupants, now), nil
}

// turnoverEstimate computes minutes until the ticket's slot frees up.
//
// Tickets that fit into currently free slots wait zero minutes. Everyone
// else waits for occupant exits: the room drains in cycles of room_capacity,
// each cycle taking one occupancy window, anchored at the soonest real exit
// times. The result is biased up by one minute so a ticket that cannot enter
// yet never reads "0".
func (w *WaitingRoom) turnoverEstimate(exits []time.Time, ahead, occupants int, now time.Time) int {
	capacity := w.cfg.RoomCapacity
	occupancyMinutes := int(w.cfg.OccupancyDuration.Minutes())

	freeNow := capacity - occupants
	if freeNow > 0 && ahead < freeNow {
		return 0
	}

	remaining := ahead
	if freeNow > 0 {
		remaining -= freeNow
	}

	// no occupants to anchor on: pure cycle arithmetic for a future cohort
	if len(exits) == 0 {
		fullCycles := remaining / capacity
		if remaining%capacity > 0 {
			fullCycles++
		}
		return clampEstimate(fullCycles * occupancyMinutes)
	}

	timeToFirstExit := minutesUntil(exits[0], now)

	if remaining == 0 {
		return clampEstimate(timeToFirstExit)
	}

	fullCycles := remaining / capacity
	positionInCycle := remaining % capacity

	estimate := timeToFirstExit + fullCycles*occupancyMinutes

	if positionInCycle > 0 {
		if positionInCycle < len(exits) {
			// the occupant at this ordinal frees the exact slot we take
			estimate = minutesUntil(exits[positionInCycle], now) + fullCycles*occupancyMinutes
		} else {
			estimate += occupancyMinutes * positionInCycle / capacity
		}
	}

	return clampEstimate(estimate)
}

func clampEstimate(minutes int) int {
	if minutes < 0 {
		minutes = 0
	}
	return minutes + 1
}

func minutesUntil(t, now time.Time) int {
	minutes := int(t.Sub(now).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}
