// Package checkpoint persists the watermark of each reconciliation job: the
// upper bound of the last time window that was fully walked.
package checkpoint

import (
	"time"

	"credsync/pkg/platform/sentinel"
)

// ErrNotFound is returned when a job has never been checkpointed.
var ErrNotFound = sentinel.ErrNotFound

// State is the single checkpoint row of a job.
type State struct {
	JobName         string
	LastProcessedTo time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
