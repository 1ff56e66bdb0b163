package waitingroom

import "errors"

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrTicketNotFound = errors.New("ticket not found")
)
