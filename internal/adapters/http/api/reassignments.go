package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/teamcap/internal/domain/model"
)

// ReassignHandler handles backup owner requests.
type ReassignHandler struct {
	deps ReassignDependencies
}

// NewReassignHandler creates a new reassignment handler.
func NewReassignHandler(deps ReassignDependencies) *ReassignHandler {
	return &ReassignHandler{deps: deps}
}

type reassignRequest struct {
	TaskID string `json:"task_id"`
}

type reassignResponse struct {
	Status string `json:"status"`
	model.Reassignment
}

// HandleReassign handles POST /reassignments requests. Having no backup is
// not an error; the response status is then no_capacity.
func (h *ReassignHandler) HandleReassign(w http.ResponseWriter, r *http.Request) {
	const op = "api.reassign"
	var req reassignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	id := strings.TrimSpace(req.TaskID)
	if id == "" {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("missing task_id")))
		return
	}
	sug, ok, err := h.deps.Reassign(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, reassignResponse{Status: "no_capacity", Reassignment: model.Reassignment{TaskID: id}})
		return
	}
	writeJSON(w, http.StatusOK, reassignResponse{Status: "found", Reassignment: sug})
}
