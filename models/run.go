package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRequeued  RunStatus = "requeued" // acquisition done, publish deferred
)

// SearchRun is the operational history record for one executed job.
type SearchRun struct {
	ID            int64      `json:"id" db:"id"`
	SearchID      string     `json:"search_id" db:"search_id"`
	Term          string     `json:"term" db:"term"`
	Kind          SearchKind `json:"kind" db:"kind"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	ResultsFound  int        `json:"results_found" db:"results_found"`
	SourcesFailed int        `json:"sources_failed" db:"sources_failed"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}
