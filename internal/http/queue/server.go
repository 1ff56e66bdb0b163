package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/lib/logger/sl"
	"github.com/BariVakhidov/waitingroom/internal/services/waitingroom"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type WaitingRoomService interface {
	Enqueue(ctx context.Context, product string) (models.Ticket, error)
	Status(ctx context.Context, id uuid.UUID) (waitingroom.Status, error)
	Admit(ctx context.Context, id uuid.UUID) (bool, error)
	Reap(ctx context.Context) (int64, error)
}

type ServerAPI struct {
	log       *slog.Logger
	validator *validator.Validate
	service   WaitingRoomService
}

func InitializeServerAPI(log *slog.Logger, service WaitingRoomService) *ServerAPI {
	return &ServerAPI{
		log:       log,
		service:   service,
		validator: validator.New(),
	}
}

// Router maps the queue API onto the engine operations 1:1.
func (s *ServerAPI) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("GET /status/{queue_id}", s.handleStatus)
	mux.HandleFunc("POST /enter", s.handleEnter)
	mux.HandleFunc("POST /reclaim", s.handleReclaim)

	return mux
}

type startRequest struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
}

type startResponse struct {
	QueueID string `json:"queue_id"`
}

func (s *ServerAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return
	}

	if msg := s.validateStartReq(req); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	ticket, err := s.service.Enqueue(r.Context(), req.ProductCode)
	if err != nil {
		if errors.Is(err, waitingroom.ErrInvalidProduct) {
			s.writeError(w, http.StatusBadRequest, ErrInvalidProductCode)
			return
		}

		s.log.Error("enqueue failed", sl.Err(err))
		s.writeError(w, http.StatusInternalServerError, ErrInternal)
		return
	}

	s.writeJSON(w, http.StatusCreated, startResponse{QueueID: ticket.ID.String()})
}

type statusResponse struct {
	QueueID              string `json:"queue_id"`
	IsAvailable          bool   `json:"is_available"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

func (s *ServerAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	queueID, msg := s.parseQueueID(r.PathValue("queue_id"))
	if msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	status, err := s.service.Status(r.Context(), queueID)
	if err != nil {
		if errors.Is(err, waitingroom.ErrTicketNotFound) {
			s.writeError(w, http.StatusNotFound, ErrTicketNotFound)
			return
		}

		s.log.Error("status failed", sl.Err(err))
		s.writeError(w, http.StatusInternalServerError, ErrInternal)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		QueueID:              queueID.String(),
		IsAvailable:          status.Eligible,
		EstimatedWaitMinutes: status.EstimatedWaitMinutes,
	})
}

type enterRequest struct {
	QueueID string `json:"queue_id" validate:"required"`
}

type enterResponse struct {
	Admitted bool `json:"admitted"`
}

func (s *ServerAPI) handleEnter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return
	}

	if msg := s.validateEnterReq(req); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	queueID, msg := s.parseQueueID(req.QueueID)
	if msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	admitted, err := s.service.Admit(r.Context(), queueID)
	if err != nil {
		if errors.Is(err, waitingroom.ErrTicketNotFound) {
			s.writeError(w, http.StatusNotFound, ErrTicketNotFound)
			return
		}

		s.log.Error("admit failed", sl.Err(err))
		s.writeError(w, http.StatusInternalServerError, ErrInternal)
		return
	}

	// admitted=false is a normal outcome (room full or lost race), not an error
	s.writeJSON(w, http.StatusOK, enterResponse{Admitted: admitted})
}

type reclaimResponse struct {
	RemovedCount int64 `json:"removed_count"`
}

func (s *ServerAPI) handleReclaim(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.Reap(r.Context())
	if err != nil {
		s.log.Error("reclaim failed", sl.Err(err))
		s.writeError(w, http.StatusInternalServerError, ErrInternal)
		return
	}

	s.writeJSON(w, http.StatusOK, reclaimResponse{RemovedCount: removed})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *ServerAPI) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *ServerAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", sl.Err(err))
	}
}
