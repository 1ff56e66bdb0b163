package queue

const (
	ErrProductCodeRequired = "product_code is required"
	ErrInvalidProductCode  = "invalid product_code"
	ErrQueueIDRequired     = "queue_id is required"
	ErrInvalidQueueID      = "invalid queue_id"
	ErrTicketNotFound      = "ticket not found"
	ErrInvalidBody         = "invalid request body"
	ErrInternal            = "internal error"
)
