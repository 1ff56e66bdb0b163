package converter

import (
	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	storageModel "github.com/BariVakhidov/waitingroom/internal/storage/model"
)

func ToTicketFromStorage(storageTicket storageModel.Ticket) models.Ticket {
	ticket := models.Ticket{
		ID:        storageTicket.ID,
		Product:   storageTicket.Product,
		CreatedAt: storageTicket.CreatedAt,
	}

	if storageTicket.EnteredAt.Valid {
		enteredAt := storageTicket.EnteredAt.Time
		ticket.EnteredAt = &enteredAt
	}

	if storageTicket.ExpiresAt.Valid {
		expiresAt := storageTicket.ExpiresAt.Time
		ticket.ExpiresAt = &expiresAt
	}

	return ticket
}

func ToTicketsFromStorage(storageTickets []storageModel.Ticket) []models.Ticket {
	tickets := make([]models.Ticket, len(storageTickets))
	for i, ticket := range storageTickets {
		tickets[i] = ToTicketFromStorage(ticket)
	}

	return tickets
}
