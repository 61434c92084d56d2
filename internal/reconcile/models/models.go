package models

import (
	"fmt"
	"time"

	credential "credsync/internal/credential/models"
)

// Window is the half-open time range [From, To) covered by one cycle.
type Window struct {
	From time.Time
	To   time.Time
}

// IsEmpty reports whether the window covers no time at all.
func (w Window) IsEmpty() bool { return !w.From.Before(w.To) }

func (w Window) Duration() time.Duration {
	if w.IsEmpty() {
		return 0
	}
	return w.To.Sub(w.From)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.UTC().Format(time.RFC3339), w.To.UTC().Format(time.RFC3339))
}

// LifecycleEvent is one normalized upstream event. It lives for one cycle.
type LifecycleEvent struct {
	EventType string
	RecordID  credential.RecordID
}

// Transition is a lifecycle event mapped to the internal status it targets.
type Transition struct {
	EventType string
	RecordID  credential.RecordID
	Target    credential.Status
}

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	Window    Window
	NoOp      bool
	Fetched   int
	Local     int
	Mapped    int
	Succeeded int
	Failed    int
	Skipped   int
	Advanced  bool
}
