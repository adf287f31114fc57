package api

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// CapacityHandler handles capacity breakdown requests.
type CapacityHandler struct {
	deps CapacityDependencies
}

// NewCapacityHandler creates a new capacity handler.
func NewCapacityHandler(deps CapacityDependencies) *CapacityHandler {
	return &CapacityHandler{deps: deps}
}

// HandleGetCapacity handles GET /capacity/{person_id}?week=YYYY-MM-DD requests.
func (h *CapacityHandler) HandleGetCapacity(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_capacity"
	id := strings.TrimSpace(r.PathValue("person_id"))
	if id == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	week := strings.TrimSpace(r.URL.Query().Get("week"))
	if week != "" {
		if _, err := time.Parse(time.DateOnly, week); err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("invalid week; must be YYYY-MM-DD")))
			return
		}
	}
	rep, err := h.deps.Capacity(r.Context(), id, week)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
