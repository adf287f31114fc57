package seed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/logger"
)

const (
	pollInterval = 100 * time.Millisecond
	defaultChunk = 100
)

type allocationRequest struct {
	WorkUnitIDs []string `json:"work_unit_ids"`
	Week        string   `json:"week,omitempty"`
}

type allocationResponse struct {
	Proposals []model.Proposal `json:"proposals"`
}

type batchResponse struct {
	ID        string           `json:"id"`
	State     string           `json:"state"`
	Proposals []model.Proposal `json:"proposals"`
	Error     string           `json:"error"`
}

type commitRequest struct {
	CommitID  string           `json:"commit_id"`
	Proposals []model.Proposal `json:"proposals"`
}

type commitResponse struct {
	Applied int `json:"applied"`
}

// Run generates a dataset, uploads it, allocates every generated work unit
// and optionally commits the result.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("people", cfg.People),
		logger.Int("workUnits", cfg.WorkUnits),
		logger.String("week", cfg.Week),
		logger.Bool("async", cfg.Async))

	if err := c.do(ctx, "GET", "/healthz", nil, nil, 200); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	ds := gen.Generate(cfg.People, cfg.WorkUnits, cfg.Week)

	// People go first; availability refers to them.
	if err := putChunks(ctx, c, cfg, "/people", ds.People); err != nil {
		return nil, err
	}
	stats.PeopleSent = len(ds.People)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return putChunks(gctx, c, cfg, "/work-units", ds.WorkUnits) })
	g.Go(func() error { return putChunks(gctx, c, cfg, "/availability", ds.Availability) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.WorkUnitsSent = len(ds.WorkUnits)
	stats.AvailabilitySent = len(ds.Availability)

	ids := make([]string, len(ds.WorkUnits))
	for i, wu := range ds.WorkUnits {
		ids[i] = wu.ID
	}
	req := allocationRequest{WorkUnitIDs: ids, Week: cfg.Week}

	var proposals []model.Proposal
	var err error
	if cfg.Async {
		proposals, err = allocateAsync(ctx, c, req)
	} else {
		var res allocationResponse
		err = c.do(ctx, "POST", "/allocations", req, &res, 200)
		proposals = res.Proposals
	}
	if err != nil {
		return nil, fmt.Errorf("allocation failed: %w", err)
	}
	for _, p := range proposals {
		switch p.Status {
		case model.ProposalAssigned:
			stats.Assigned++
		case model.ProposalPartial:
			stats.Partial++
		case model.ProposalNoCapacity:
			stats.NoCapacity++
		}
	}

	if cfg.Commit {
		var res commitResponse
		commit := commitRequest{CommitID: gen.id(), Proposals: proposals}
		if err := c.do(ctx, "POST", "/commits", commit, &res, 200); err != nil {
			return nil, fmt.Errorf("commit failed: %w", err)
		}
		stats.Committed = res.Applied
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "seed run finished",
		logger.Int("assigned", stats.Assigned),
		logger.Int("partial", stats.Partial),
		logger.Int("noCapacity", stats.NoCapacity),
		logger.Int("committed", stats.Committed),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// putChunks sends records in chunks, Workers requests at a time.
func putChunks[T any](ctx context.Context, c *client, cfg *Config, path string, records []T) error {
	size := cfg.Chunk
	if size < 1 {
		size = defaultChunk
	}
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for start := 0; start < len(records); start += size {
		chunk := records[start:min(start+size, len(records))]
		g.Go(func() error {
			return c.do(gctx, "PUT", path, chunk, nil, 200)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func allocateAsync(ctx context.Context, c *client, req allocationRequest) ([]model.Proposal, error) {
	var st batchResponse
	if err := c.do(ctx, "POST", "/batches", req, &st, 202); err != nil {
		return nil, err
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if err := c.do(ctx, "GET", "/batches/"+st.ID, nil, &st, 200); err != nil {
			return nil, err
		}
		switch st.State {
		case "done":
			return st.Proposals, nil
		case "failed":
			return nil, fmt.Errorf("batch %s failed: %s", st.ID, st.Error)
		}
	}
}
