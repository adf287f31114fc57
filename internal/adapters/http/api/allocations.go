package api

import (
	"net/http"
	"strings"

	service "github.com/okian/teamcap/internal/app"
	"github.com/okian/teamcap/internal/domain/model"
)

// AllocationHandler handles synchronous and queued allocations.
type AllocationHandler struct {
	deps AllocationDependencies
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(deps AllocationDependencies) *AllocationHandler {
	return &AllocationHandler{deps: deps}
}

type allocationResponse struct {
	Proposals    []model.Proposal    `json:"proposals"`
	People       []model.PersonState `json:"people"`
	InvalidSlots map[string][]string `json:"invalid_slots,omitempty"`
}

// HandleAllocate handles POST /allocations requests.
func (h *AllocationHandler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	const op = "api.allocate"
	var req service.AllocateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Allocate(r.Context(), req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, allocationResponse{
		Proposals:    res.Proposals,
		People:       res.People,
		InvalidSlots: res.InvalidSlots,
	})
}

// HandleSubmitBatch handles POST /batches requests.
func (h *AllocationHandler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_batch"
	var req service.AllocateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.deps.SubmitBatch(r.Context(), req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/batches/"+st.ID)
	writeJSON(w, http.StatusAccepted, st)
}

// HandleGetBatch handles GET /batches/{id} requests.
func (h *AllocationHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_batch"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	st, err := h.deps.Batch(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
