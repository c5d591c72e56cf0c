package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the per-record outcome of a load.
type RecordStatus string

const (
	StatusLoaded  RecordStatus = "loaded"
	StatusSkipped RecordStatus = "skipped"
	StatusFailed  RecordStatus = "failed"
)

// LoadResult is the outcome of loading one source record.
type LoadResult struct {
	OrderID int64
	Status  RecordStatus
	Reason  string
}

// RecordFailure names one failed record and why it failed.
type RecordFailure struct {
	OrderID int64
	Reason  string
}

// BatchSummary aggregates the outcome of one batch run. Every pulled
// record is accounted for in exactly one of the three counters.
type BatchSummary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Pulled     int
	Succeeded  int
	Skipped    int
	Failed     int
	Failures   []RecordFailure
}
