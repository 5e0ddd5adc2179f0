package model

import "time"

// BatchStatus is the lifecycle state of a persisted batch.
type BatchStatus string

const (
	BatchStatusRunning  BatchStatus = "running"
	BatchStatusComplete BatchStatus = "complete"
	BatchStatusStopped  BatchStatus = "stopped"
)

// BatchRecord is the persisted summary of one batch.
type BatchRecord struct {
	ID         string      `json:"id"`
	Status     BatchStatus `json:"status"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Thresholds Thresholds  `json:"thresholds"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	MatchCount int         `json:"match_count"`
	ErrorCount int         `json:"error_count"`
}
