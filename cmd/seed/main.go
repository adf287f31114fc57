package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/teamcap/internal/seed"
	"github.com/okian/teamcap/pkg/logger"
)

// Default configuration constants.
const (
	defaultPeople    = 30
	defaultWorkUnits = 50
	defaultChunk     = 25
	defaultTimeout   = 30 * time.Second
	defaultRunLimit  = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		people    = flag.Int("people", defaultPeople, "Number of people to generate")
		workUnits = flag.Int("work-units", defaultWorkUnits, "Number of work units to generate")
		week      = flag.String("week", mondayOf(time.Now()), "week_start_date for generated availability (YYYY-MM-DD)")
		chunk     = flag.Int("chunk", defaultChunk, "Records per upload request")
		workers   = flag.Int("workers", runtime.NumCPU(), "Concurrent upload requests")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seedVal   = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		async     = flag.Bool("async", false, "Allocate through POST /batches")
		commit    = flag.Bool("commit", false, "Commit the proposals")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	stats, err := seed.Run(ctx, &seed.Config{
		BaseURL:   *baseURL,
		People:    *people,
		WorkUnits: *workUnits,
		Week:      *week,
		Chunk:     *chunk,
		Workers:   *workers,
		Timeout:   *timeout,
		Seed:      *seedVal,
		Async:     *async,
		Commit:    *commit,
	}, logger.Get())
	if err != nil {
		os.Stderr.WriteString("seed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	fmt.Printf("people=%d work_units=%d assigned=%d partial=%d no_capacity=%d committed=%d took=%s\n",
		stats.PeopleSent, stats.WorkUnitsSent, stats.Assigned, stats.Partial, stats.NoCapacity, stats.Committed,
		stats.Duration.Round(time.Millisecond))
}

// mondayOf returns the date of the Monday starting t's week.
func mondayOf(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(time.DateOnly)
}
