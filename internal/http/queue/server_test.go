package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/domain/models"
	"github.com/BariVakhidov/waitingroom/internal/services/waitingroom"
	"github.com/BariVakhidov/waitingroom/internal/storage/memory"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardPublisher struct{}

func (discardPublisher) PublishTicketEvent(_ context.Context, _ models.TicketEvent) error {
	return nil
}

func newTestServer(t *testing.T, capacity int) http.Handler {
	t.Helper()

	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	metrics := waitingroom.Metrics{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "enqueued_total"}, []string{"product"}),
		Admitted: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "admitted_total"}, []string{"product"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rejected_total"}, []string{"product"}),
		Reaped:   prometheus.NewCounter(prometheus.CounterOpts{Name: "reaped_total"}),
	}

	service := waitingroom.New(
		log,
		store,
		store,
		store,
		store,
		discardPublisher{},
		waitingroom.Config{RoomCapacity: capacity, OccupancyDuration: 10 * time.Minute},
		metrics,
	)

	return InitializeServerAPI(log, service).Router()
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestStart_HappyPath(t *testing.T) {
	handler := newTestServer(t, 5)

	rec := doJSON(t, handler, http.MethodPost, "/start", map[string]string{"product_code": gofakeit.ProductName()})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[startResponse](t, rec)
	_, err := uuid.Parse(resp.QueueID)
	assert.NoError(t, err)
}

func TestStart_UnhappyPath(t *testing.T) {
	handler := newTestServer(t, 5)

	tests := []struct {
		name        string
		body        any
		expectedMsg string
	}{
		{
			name:        "empty product code",
			body:        map[string]string{"product_code": ""},
			expectedMsg: ErrProductCodeRequired,
		},
		{
			name:        "oversized product code",
			body:        map[string]string{"product_code": gofakeit.LetterN(100)},
			expectedMsg: ErrInvalidProductCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/start", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tt.expectedMsg, resp.Error)
		})
	}
}

func TestStart_MalformedBody(t *testing.T) {
	handler := newTestServer(t, 5)

	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, ErrInvalidBody, resp.Error)
}

func TestStatus_UnknownTicket(t *testing.T) {
	handler := newTestServer(t, 5)

	rec := doJSON(t, handler, http.MethodGet, "/status/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, ErrTicketNotFound, resp.Error)
}

func TestStatus_InvalidQueueID(t *testing.T) {
	handler := newTestServer(t, 5)

	rec := doJSON(t, handler, http.MethodGet, "/status/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, ErrInvalidQueueID, resp.Error)
}

func TestEnter_FullFlow(t *testing.T) {
	handler := newTestServer(t, 1)
	product := gofakeit.ProductName()

	start := decodeBody[startResponse](t, doJSON(t, handler, http.MethodPost, "/start", map[string]string{"product_code": product}))

	statusRec := doJSON(t, handler, http.MethodGet, "/status/"+start.QueueID, nil)
	require.Equal(t, http.StatusOK, statusRec.Code)

	status := decodeBody[statusResponse](t, statusRec)
	assert.True(t, status.IsAvailable)
	assert.Equal(t, 0, status.EstimatedWaitMinutes)

	enterRec := doJSON(t, handler, http.MethodPost, "/enter", map[string]string{"queue_id": start.QueueID})
	require.Equal(t, http.StatusOK, enterRec.Code)
	assert.True(t, decodeBody[enterResponse](t, enterRec).Admitted)

	// room of one is now full for the next ticket
	second := decodeBody[startResponse](t, doJSON(t, handler, http.MethodPost, "/start", map[string]string{"product_code": product}))

	enterRec = doJSON(t, handler, http.MethodPost, "/enter", map[string]string{"queue_id": second.QueueID})
	require.Equal(t, http.StatusOK, enterRec.Code)
	assert.False(t, decodeBody[enterResponse](t, enterRec).Admitted)
}

func TestEnter_UnhappyPath(t *testing.T) {
	handler := newTestServer(t, 1)

	tests := []struct {
		name         string
		body         any
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "missing queue id",
			body:         map[string]string{},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  ErrQueueIDRequired,
		},
		{
			name:         "malformed queue id",
			body:         map[string]string{"queue_id": "nope"},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  ErrInvalidQueueID,
		},
		{
			name:         "unknown queue id",
			body:         map[string]string{"queue_id": uuid.NewString()},
			expectedCode: http.StatusNotFound,
			expectedMsg:  ErrTicketNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/enter", tt.body)
			require.Equal(t, tt.expectedCode, rec.Code)

			resp := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tt.expectedMsg, resp.Error)
		})
	}
}

func TestReclaim_Empty(t *testing.T) {
	handler := newTestServer(t, 1)

	rec := doJSON(t, handler, http.MethodPost, "/reclaim", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decodeBody[reclaimResponse](t, rec).RemovedCount)
}
