// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/teamcap/internal/adapters/repository"
	service "github.com/okian/teamcap/internal/app"
	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RecordDependencies
	AllocationDependencies
	CommitDependencies
	ReassignDependencies
	CapacityDependencies
}

// RecordDependencies writes planning data.
type RecordDependencies interface {
	UpsertPeople(ctx context.Context, people []model.Person) error
	UpsertWorkUnits(ctx context.Context, units []model.WorkUnit) error
	PutAvailability(ctx context.Context, records []model.AvailabilityRecord) error
}

// AllocationDependencies runs allocation batches.
type AllocationDependencies interface {
	Allocate(ctx context.Context, req service.AllocateRequest) (allocation.Result, error)
	SubmitBatch(ctx context.Context, req service.AllocateRequest) (service.BatchStatus, error)
	Batch(ctx context.Context, id string) (service.BatchStatus, error)
}

// CommitDependencies writes accepted proposals back.
type CommitDependencies interface {
	Commit(ctx context.Context, req service.CommitRequest) (service.CommitResult, error)
}

// ReassignDependencies suggests backup owners.
type ReassignDependencies interface {
	Reassign(ctx context.Context, taskID string) (model.Reassignment, bool, error)
}

// CapacityDependencies explains free hours.
type CapacityDependencies interface {
	Capacity(ctx context.Context, personID, week string) (capacity.Report, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	recordsHandler    *RecordsHandler
	allocationHandler *AllocationHandler
	commitHandler     *CommitHandler
	reassignHandler   *ReassignHandler
	capacityHandler   *CapacityHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		recordsHandler:    NewRecordsHandler(deps),
		allocationHandler: NewAllocationHandler(deps),
		commitHandler:     NewCommitHandler(deps),
		reassignHandler:   NewReassignHandler(deps),
		capacityHandler:   NewCapacityHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("PUT /people", MetricsMiddleware(s.recordsHandler.HandlePutPeople, "people"))
	mux.HandleFunc("PUT /work-units", MetricsMiddleware(s.recordsHandler.HandlePutWorkUnits, "work_units"))
	mux.HandleFunc("PUT /availability", MetricsMiddleware(s.recordsHandler.HandlePutAvailability, "availability"))
	mux.HandleFunc("POST /allocations", MetricsMiddleware(s.allocationHandler.HandleAllocate, "allocations"))
	mux.HandleFunc("POST /batches", MetricsMiddleware(s.allocationHandler.HandleSubmitBatch, "batches"))
	mux.HandleFunc("GET /batches/{id}", MetricsMiddleware(s.allocationHandler.HandleGetBatch, "batch"))
	mux.HandleFunc("POST /commits", MetricsMiddleware(s.commitHandler.HandleCommit, "commits"))
	mux.HandleFunc("POST /reassignments", MetricsMiddleware(s.reassignHandler.HandleReassign, "reassignments"))
	mux.HandleFunc("GET /capacity/{person_id}", MetricsMiddleware(s.capacityHandler.HandleGetCapacity, "capacity"))
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

// writeFailure maps err to a status code by kind.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrBatchTooLarge),
		errors.Is(err, allocation.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, repository.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
