package model

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary is the machine-readable outcome of one pipeline run,
// persisted to the run log.
type RunSummary struct {
	ID              string
	Status          RunStatus
	EntityCount     int
	ChainCount      int
	PaymentCount    int
	MultiMatchCount int
	NameMismatchPct float64
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}
