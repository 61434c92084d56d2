package service

import (
	"time"

	"credsync/internal/reconcile/models"
)

// ComputeWindow returns [checkpoint, now-lookback). The upper bound never
// falls below the lower, so a checkpoint ahead of now-lookback yields an
// empty window.
func ComputeWindow(checkpoint, now time.Time, lookback time.Duration) models.Window {
	to := now.Add(-lookback)
	if to.Before(checkpoint) {
		to = checkpoint
	}
	return models.Window{From: checkpoint, To: to}
}

// InitialCheckpoint is where a job with no stored checkpoint starts. With no
// backfill the first window is empty.
func InitialCheckpoint(now time.Time, lookback, backfill time.Duration) time.Time {
	if backfill < 0 {
		backfill = 0
	}
	return now.Add(-lookback).Add(-backfill)
}
