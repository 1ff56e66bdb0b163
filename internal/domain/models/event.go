package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTicketEnqueued = "ticket_enqueued"
	EventTicketAdmitted = "ticket_admitted"
)

type TicketEvent struct {
	Type     string    `json:"type"`
	TicketID uuid.UUID `json:"ticket_id"`
	Product  string    `json:"product"`
	At       time.Time `json:"at"`
}
