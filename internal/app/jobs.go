package service

import (
	"sync"
	"time"

	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/model"
)

// Batch job states.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// BatchStatus is the public view of an asynchronous allocation.
type BatchStatus struct {
	ID           string              `json:"id"`
	State        string              `json:"state"`
	SubmittedAt  time.Time           `json:"submitted_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	Request      AllocateRequest     `json:"-"`
	Proposals    []model.Proposal    `json:"proposals,omitempty"`
	People       []model.PersonState `json:"people,omitempty"`
	InvalidSlots map[string][]string `json:"invalid_slots,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// jobRegistry keeps the latest batch statuses. Once more than limit jobs are
// held, the oldest finished ones are forgotten.
type jobRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*BatchStatus
	order []string
	limit int
}

func newJobRegistry(limit int) *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*BatchStatus), limit: limit}
}

func (r *jobRegistry) add(st *BatchStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[st.ID] = st
	r.order = append(r.order, st.ID)
	r.evictLocked()
}

func (r *jobRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *jobRegistry) get(id string) (BatchStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[id]
	if !ok {
		return BatchStatus{}, false
	}
	return *st, true
}

func (r *jobRegistry) request(id string) (AllocateRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[id]
	if !ok {
		return AllocateRequest{}, false
	}
	return st.Request, true
}

func (r *jobRegistry) running(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.jobs[id]; ok {
		st.State = JobRunning
	}
}

func (r *jobRegistry) finish(id string, res allocation.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	st.FinishedAt = &now
	st.Proposals = res.Proposals
	st.People = res.People
	st.InvalidSlots = res.InvalidSlots
	st.State = JobDone
	if err != nil {
		st.State = JobFailed
		st.Error = err.Error()
	}
	r.evictLocked()
}

// counts returns the number of jobs per state.
func (r *jobRegistry) counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]int{JobPending: 0, JobRunning: 0, JobDone: 0, JobFailed: 0}
	for _, st := range r.jobs {
		out[st.State]++
	}
	return out
}

func (r *jobRegistry) evictLocked() {
	if r.limit <= 0 || len(r.order) <= r.limit {
		return
	}
	kept := r.order[:0]
	excess := len(r.order) - r.limit
	for _, id := range r.order {
		st := r.jobs[id]
		if excess > 0 && (st.State == JobDone || st.State == JobFailed) {
			delete(r.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}
