// Package seed fills a running allocation service with generated planning
// data, runs an allocation and reports what happened.
package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL   string        // Base URL of the service
	People    int           // Number of people to generate
	WorkUnits int           // Number of work units to generate
	Week      string        // week_start_date of generated availability
	Chunk     int           // Records per PUT request
	Workers   int           // Concurrent PUT requests
	Timeout   time.Duration // HTTP request timeout
	Seed      int64         // Random seed; equal seeds give equal data
	Async     bool          // Use POST /batches instead of POST /allocations
	Commit    bool          // Commit the proposals afterwards
}

// Stats holds run statistics.
type Stats struct {
	PeopleSent       int
	WorkUnitsSent    int
	AvailabilitySent int
	Assigned         int
	Partial          int
	NoCapacity       int
	Committed        int
	StartTime        time.Time
	Duration         time.Duration
}
