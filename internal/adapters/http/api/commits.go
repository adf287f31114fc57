package api

import (
	"net/http"

	service "github.com/okian/teamcap/internal/app"
)

// CommitHandler handles commit requests.
type CommitHandler struct {
	deps CommitDependencies
}

// NewCommitHandler creates a new commit handler.
func NewCommitHandler(deps CommitDependencies) *CommitHandler {
	return &CommitHandler{deps: deps}
}

type commitResponse struct {
	Status string `json:"status"`
	service.CommitResult
}

// HandleCommit handles POST /commits requests. A repeated commit_id is
// acknowledged as a duplicate and changes nothing.
func (h *CommitHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	const op = "api.commit"
	var req service.CommitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Commit(r.Context(), req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, commitResponse{Status: "duplicate", CommitResult: res})
		return
	}
	writeJSON(w, http.StatusOK, commitResponse{Status: "applied", CommitResult: res})
}
