package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/apr/internal/adapters/repository"
	"github.com/okian/apr/internal/domain/model"
)

// Batch request constants.
const (
	maxBatchBodyBytes  = 1 << 20 // bounds the body regardless of the id cap
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// BatchDependencies defines the interface for running batches.
type BatchDependencies interface {
	Run(ctx context.Context, mode model.Mode, ids []model.UserID) (model.Outcome, error)
	Batch(ctx context.Context, batchID string) (model.Outcome, error)
	RecentBatches(ctx context.Context, n int) ([]model.Outcome, error)
}

// BatchesHandler handles batch requests.
type BatchesHandler struct {
	deps         BatchDependencies
	maxBatchSize int
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps BatchDependencies, maxBatchSize int) *BatchesHandler {
	return &BatchesHandler{deps: deps, maxBatchSize: maxBatchSize}
}

// HandlePostBatch handles POST /batches requests. The batch runs to
// completion before the response is written.
func (h *BatchesHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_batch"

	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing user_ids")))
		return
	}
	if len(req.UserIDs) > h.maxBatchSize {
		err := fmt.Errorf("%d user ids exceed the limit of %d", len(req.UserIDs), h.maxBatchSize)
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", wrapKind(op, ErrBatchTooLarge, err))
		return
	}

	mode := model.ModeConcurrent
	if req.Mode != "" {
		m, err := model.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		mode = m
	}

	out, err := h.deps.Run(r.Context(), mode, req.UserIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(out))
}

// HandleGetBatch handles GET /batches/{batch_id} requests.
func (h *BatchesHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Batch(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(out))
}

// HandleListBatches handles GET /batches?limit=N requests, newest first.
func (h *BatchesHandler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_batches"
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			err = fmt.Errorf("limit must be between 1 and %d", maxRecentLimit)
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		limit = n
	}

	outs, err := h.deps.RecentBatches(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	resp := make([]batchResponse, len(outs))
	for i, out := range outs {
		resp[i] = newBatchResponse(out)
	}
	writeJSON(w, http.StatusOK, resp)
}
