package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is a single queue entry for a product. EnteredAt and ExpiresAt are
// either both nil (still waiting) or both set (holding a room slot until
// ExpiresAt).
type Ticket struct {
	ID        uuid.UUID
	Product   string
	CreatedAt time.Time
	EnteredAt *time.Time
	ExpiresAt *time.Time
}

// Waiting reports whether the ticket has not been admitted yet.
func (t Ticket) Waiting() bool {
	return t.EnteredAt == nil
}

// Occupant reports whether the ticket holds a room slot as of the given time.
func (t Ticket) Occupant(asOf time.Time) bool {
	return t.EnteredAt != nil && t.ExpiresAt != nil && t.ExpiresAt.After(asOf)
}
