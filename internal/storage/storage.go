package storage

import "errors"

var (
	ErrTicketExists     = errors.New("ticket already exists")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrTicketNotWaiting = errors.New("ticket is not waiting")
	ErrLockNotAcquired  = errors.New("reclaim lock not acquired")
)
