package api

import (
	"context"
	"net/http"
)

// RecordsHandler handles bulk writes of people, work units and availability.
type RecordsHandler struct {
	deps RecordDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

type writeResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// putRecords decodes a JSON array and hands it to store.
func putRecords[T any](w http.ResponseWriter, r *http.Request, op string, store func(context.Context, []T) error) {
	var records []T
	if err := decodeJSON(w, r, &records); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := store(r.Context(), records); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Status: "ok", Count: len(records)})
}

// HandlePutPeople handles PUT /people requests.
func (h *RecordsHandler) HandlePutPeople(w http.ResponseWriter, r *http.Request) {
	putRecords(w, r, "api.put_people", h.deps.UpsertPeople)
}

// HandlePutWorkUnits handles PUT /work-units requests.
func (h *RecordsHandler) HandlePutWorkUnits(w http.ResponseWriter, r *http.Request) {
	putRecords(w, r, "api.put_work_units", h.deps.UpsertWorkUnits)
}

// HandlePutAvailability handles PUT /availability requests.
func (h *RecordsHandler) HandlePutAvailability(w http.ResponseWriter, r *http.Request) {
	putRecords(w, r, "api.put_availability", h.deps.PutAvailability)
}
