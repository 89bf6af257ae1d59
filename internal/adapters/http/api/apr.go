package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/apr/internal/domain/model"
)

// APRDependencies defines the interface for single APR lookups.
type APRDependencies interface {
	ComputeAPR(ctx context.Context, id model.UserID) (model.APR, error)
}

// APRHandler handles APR lookup requests.
type APRHandler struct {
	deps APRDependencies
}

// NewAPRHandler creates a new APR handler.
func NewAPRHandler(deps APRDependencies) *APRHandler {
	return &APRHandler{deps: deps}
}

// HandleGetAPR handles GET /apr/{user_id} requests.
func (h *APRHandler) HandleGetAPR(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_apr"
	raw := r.PathValue("user_id")
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	id := model.UserID(n)
	rate, err := h.deps.ComputeAPR(r.Context(), id)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, aprResponse{UserID: id, APR: rate})
}
