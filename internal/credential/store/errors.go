package store

import "credsync/pkg/platform/sentinel"

// ErrNotFound is returned when no document carries the requested record id.
var ErrNotFound = sentinel.ErrNotFound

// ErrConflict is returned when a record id is already linked to another document.
var ErrConflict = sentinel.ErrConflict
