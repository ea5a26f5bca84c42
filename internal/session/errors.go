package session

import "errors"

// Pagination bounds for session listing.
const (
	DefaultListLimit int32 = 50
	MaxListLimit     int32 = 200
)

// Sentinel errors for session operations, checked with errors.Is.
var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy indicates another turn is already running on the
	// session. The caller should retry after the active turn ends.
	ErrSessionBusy = errors.New("session busy")
)

// NormalizeListLimit clamps a requested page size into valid bounds.
func NormalizeListLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
