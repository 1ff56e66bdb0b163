package queue

import "github.com/google/uuid"

const (
	emptyValue = ""
)

func (s *ServerAPI) validateStartReq(req startRequest) string {
	if req.ProductCode == emptyValue {
		return ErrProductCodeRequired
	}

	if err := s.validator.Struct(req); err != nil {
		return ErrInvalidProductCode
	}

	return emptyValue
}

func (s *ServerAPI) validateEnterReq(req enterRequest) string {
	if req.QueueID == emptyValue {
		return ErrQueueIDRequired
	}

	return emptyValue
}

func (s *ServerAPI) parseQueueID(raw string) (uuid.UUID, string) {
	if raw == emptyValue {
		return uuid.Nil, ErrQueueIDRequired
	}

	queueID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidQueueID
	}

	return queueID, emptyValue
}
