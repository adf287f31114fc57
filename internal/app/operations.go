package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/teamcap/internal/adapters/mq/queue"
	"github.com/okian/teamcap/internal/adapters/repository"
	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/backup"
	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

// AllocateRequest names the work units of one batch. WorkUnits are used as
// given; otherwise WorkUnitIDs are loaded from the store; with neither, every
// stored unit that is not yet assigned or done is allocated.
type AllocateRequest struct {
	WorkUnitIDs []string         `json:"work_unit_ids,omitempty"`
	WorkUnits   []model.WorkUnit `json:"work_units,omitempty"`
	Week        string           `json:"week,omitempty"`
}

// CommitRequest carries accepted proposals back to the store.
type CommitRequest struct {
	CommitID  string           `json:"commit_id"`
	Proposals []model.Proposal `json:"proposals"`
}

// CommitResult reports what a commit changed.
type CommitResult struct {
	CommitID  string `json:"commit_id"`
	Duplicate bool   `json:"duplicate"`
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
}

// UpsertPeople stores people profiles.
func (s *Service) UpsertPeople(ctx context.Context, people []model.Person) error {
	if len(people) == 0 {
		return fmt.Errorf("%w: no people", ErrInvalidRequest)
	}
	return s.store.UpsertPeople(ctx, people)
}

// UpsertWorkUnits stores work units.
func (s *Service) UpsertWorkUnits(ctx context.Context, units []model.WorkUnit) error {
	if len(units) == 0 {
		return fmt.Errorf("%w: no work units", ErrInvalidRequest)
	}
	return s.store.UpsertWorkUnits(ctx, units)
}

// PutAvailability stores weekly calendar records.
func (s *Service) PutAvailability(ctx context.Context, records []model.AvailabilityRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no availability records", ErrInvalidRequest)
	}
	return s.store.PutAvailability(ctx, records)
}

// Allocate runs one batch synchronously against the stored people.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (allocation.Result, error) {
	batch, err := s.loadBatch(ctx, req)
	if err != nil {
		return allocation.Result{}, err
	}
	return s.engine.AllocateBatch(ctx, batch)
}

func (s *Service) loadBatch(ctx context.Context, req AllocateRequest) (allocation.Batch, error) {
	units := req.WorkUnits
	if len(units) == 0 {
		var err error
		units, err = s.store.ListWorkUnits(ctx, req.WorkUnitIDs)
		if err != nil {
			return allocation.Batch{}, err
		}
		if len(req.WorkUnitIDs) == 0 {
			units = openUnits(units)
		}
	}
	if len(units) == 0 {
		return allocation.Batch{}, fmt.Errorf("%w: no work units to allocate", ErrInvalidRequest)
	}
	if len(units) > s.maxBatchSize {
		return allocation.Batch{}, fmt.Errorf("%w: %d work units, limit %d", ErrBatchTooLarge, len(units), s.maxBatchSize)
	}

	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return allocation.Batch{}, err
	}
	avail, err := s.store.ListAvailability(ctx, req.Week)
	if err != nil {
		return allocation.Batch{}, err
	}
	return allocation.Batch{
		WorkUnits:    units,
		People:       people,
		Availability: avail,
		Week:         req.Week,
	}, nil
}

func openUnits(units []model.WorkUnit) []model.WorkUnit {
	out := units[:0:0]
	for _, wu := range units {
		if wu.Status == model.StatusAssigned || wu.Status == model.StatusDone {
			continue
		}
		out = append(out, wu)
	}
	return out
}

// SubmitBatch queues an allocation and returns its pending status.
func (s *Service) SubmitBatch(ctx context.Context, req AllocateRequest) (BatchStatus, error) {
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return BatchStatus{}, ErrNotStarted
	}
	if len(req.WorkUnits) > s.maxBatchSize || len(req.WorkUnitIDs) > s.maxBatchSize {
		return BatchStatus{}, fmt.Errorf("%w: limit %d", ErrBatchTooLarge, s.maxBatchSize)
	}

	st := &BatchStatus{
		ID:          uuid.NewString(),
		State:       JobPending,
		SubmittedAt: time.Now().UTC(),
		Request:     req,
	}
	s.jobs.add(st)
	err := q.Enqueue(ctx, queue.Job{
		ID:          st.ID,
		WorkUnitIDs: req.WorkUnitIDs,
		Week:        req.Week,
		SubmittedAt: st.SubmittedAt,
	})
	if err != nil {
		s.jobs.remove(st.ID)
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			return BatchStatus{}, fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return BatchStatus{}, err
	}
	s.logger.Debug(ctx, "batch queued", logger.String("batch_id", st.ID))
	out, _ := s.jobs.get(st.ID)
	return out, nil
}

// RunJob executes a queued batch. It implements worker.Runner.
func (s *Service) RunJob(ctx context.Context, j queue.Job) error {
	req, ok := s.jobs.request(j.ID)
	if !ok {
		req = AllocateRequest{WorkUnitIDs: j.WorkUnitIDs, Week: j.Week}
	}
	s.jobs.running(j.ID)
	res, err := s.Allocate(ctx, req)
	s.jobs.finish(j.ID, res, err)
	if err != nil {
		return fmt.Errorf("batch %s: %w", j.ID, err)
	}
	return nil
}

// Batch returns the status of a submitted batch.
func (s *Service) Batch(_ context.Context, id string) (BatchStatus, error) {
	st, ok := s.jobs.get(id)
	if !ok {
		return BatchStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return st, nil
}

// Commit writes accepted proposals back: allocated hours are added to each
// member's task hours and the work units become assigned. A repeated commit
// id is acknowledged without touching the store. The store records the id
// with the changes, so duplicates are caught across restarts too.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	s.mu.RLock()
	d, started := s.deduper, s.started
	s.mu.RUnlock()
	if !started {
		return CommitResult{}, ErrNotStarted
	}
	id := strings.TrimSpace(req.CommitID)
	if id == "" {
		return CommitResult{}, fmt.Errorf("%w: missing commit_id", ErrInvalidRequest)
	}
	res := CommitResult{CommitID: id}

	assignments := make([]repository.Assignment, 0, len(req.Proposals))
	for _, p := range req.Proposals {
		if strings.TrimSpace(p.WorkUnitID) == "" {
			return CommitResult{}, fmt.Errorf("%w: proposal without work_unit_id", ErrInvalidRequest)
		}
		if len(p.Team) == 0 || p.Status == model.ProposalNoCapacity {
			res.Skipped++
			continue
		}
		assignments = append(assignments, repository.Assignment{WorkUnitID: p.WorkUnitID, Team: p.Team})
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	duplicate := func() (CommitResult, error) {
		metrics.RecordCommit("duplicate")
		res.Duplicate = true
		res.Skipped = len(req.Proposals)
		return res, nil
	}
	if d.SeenAndRecord(ctx, id) {
		return duplicate()
	}
	if err := s.store.ApplyCommit(ctx, id, assignments); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return duplicate()
		}
		d.Unrecord(ctx, id)
		metrics.RecordCommit("failed")
		return CommitResult{}, err
	}
	metrics.RecordCommit("applied")
	res.Applied = len(assignments)
	s.logger.Info(ctx, "commit applied",
		logger.String("commit_id", id),
		logger.Int("applied", res.Applied),
		logger.Int("skipped", res.Skipped))
	return res, nil
}

// Reassign suggests a backup owner for an at-risk task. ok is false when
// nobody else has a required skill.
func (s *Service) Reassign(ctx context.Context, taskID string) (model.Reassignment, bool, error) {
	task, err := s.store.GetWorkUnit(ctx, taskID)
	if err != nil {
		return model.Reassignment{}, false, err
	}
	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return model.Reassignment{}, false, err
	}
	r, ok := backup.Suggest(task, people)
	if !ok {
		metrics.RecordBackupSelection("none")
		s.logger.Info(ctx, "no backup owner", logger.String("task_id", taskID))
		return model.Reassignment{TaskID: taskID}, false, nil
	}
	metrics.RecordBackupSelection("found")
	return r, true, nil
}

// Capacity explains one person's free hours for week, or for their latest
// record when week is empty.
func (s *Service) Capacity(ctx context.Context, personID, week string) (capacity.Report, error) {
	p, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return capacity.Report{}, err
	}
	recs, err := s.store.ListAvailability(ctx, week)
	if err != nil {
		return capacity.Report{}, err
	}
	calc := s.engine.Calculator()
	var busy model.SlotSet
	var latest string
	for _, r := range recs {
		if r.PersonID != personID || r.WeekStart < latest {
			continue
		}
		latest = r.WeekStart
		var invalid []string
		busy, invalid = calc.BusySet(r)
		if len(invalid) > 0 {
			s.logger.Warn(ctx, "skipping invalid busy slots",
				logger.String("person_id", personID),
				logger.Strings("slots", invalid))
		}
	}
	return calc.Breakdown(p, busy), nil
}
