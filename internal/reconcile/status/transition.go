package status

import (
	"errors"
	"fmt"

	credential "credsync/internal/credential/models"
)

// ErrInvalidTransition is returned when a record may not move to the target status.
var ErrInvalidTransition = errors.New("invalid transition")

// Guard decides whether a record in one status may move to another.
type Guard struct {
	strict bool
}

// NewGuard returns a guard. A non-strict guard accepts every transition.
func NewGuard(strict bool) Guard {
	return Guard{strict: strict}
}

func (g Guard) Strict() bool { return g.strict }

// Check returns ErrInvalidTransition for a forbidden move. Deleted only
// accepts deleted, and a revoked credential is never re-issued.
func (g Guard) Check(from, to credential.Status) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, to)
	}
	if !g.strict {
		return nil
	}
	switch {
	case from.IsTerminal() && to != from:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	case from == credential.StatusRevoked && to == credential.StatusIssued:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsNoop reports whether applying to leaves the record untouched.
func IsNoop(from, to credential.Status) bool {
	return from == credential.StatusDeleted && to == credential.StatusDeleted
}
