// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/apr/internal/domain/model"
)

// Default API configuration constants.
const (
	defaultMaxBatchSize = 1000
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	APRDependencies
	BatchDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	aprHandler     *APRHandler
	batchesHandler *BatchesHandler
}

// NewServer creates a new API server with all handlers. Batches larger than
// maxBatchSize are rejected; a non-positive value uses the default.
func NewServer(deps Dependencies, maxBatchSize int) *Server {
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		aprHandler:     NewAPRHandler(deps),
		batchesHandler: NewBatchesHandler(deps, maxBatchSize),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /apr/{user_id}", MetricsMiddleware(s.aprHandler.HandleGetAPR, "apr"))
	mux.HandleFunc("POST /batches", MetricsMiddleware(s.batchesHandler.HandlePostBatch, "batches"))
	mux.HandleFunc("GET /batches", MetricsMiddleware(s.batchesHandler.HandleListBatches, "batches_list"))
	mux.HandleFunc("GET /batches/{batch_id}", MetricsMiddleware(s.batchesHandler.HandleGetBatch, "batch"))
}

type aprResponse struct {
	UserID model.UserID `json:"user_id"`
	APR    model.APR    `json:"apr"`
}

type batchRequest struct {
	UserIDs []model.UserID `json:"user_ids"`
	Mode    string         `json:"mode"`
}

type batchResponse struct {
	BatchID       string                     `json:"batch_id"`
	Mode          model.Mode                 `json:"mode"`
	APRs          map[model.UserID]model.APR `json:"aprs"`
	FailedUserIDs []model.UserID             `json:"failed_user_ids"`
	DurationMs    int64                      `json:"duration_ms"`
}

func newBatchResponse(out model.Outcome) batchResponse {
	failed := out.FailedSorted()
	if failed == nil {
		failed = []model.UserID{}
	}
	return batchResponse{
		BatchID:       out.BatchID,
		Mode:          out.Mode,
		APRs:          out.APRs,
		FailedUserIDs: failed,
		DurationMs:    out.Duration.Milliseconds(),
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
