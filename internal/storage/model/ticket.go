package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Ticket struct {
	ID        uuid.UUID    `db:"id"`
	Product   string       `db:"product"`
	CreatedAt time.Time    `db:"created_at"`
	EnteredAt sql.NullTime `db:"entered_at"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}
