package session

import "errors"

// Pagination limits for history loading.
const (
	// DefaultHistoryLimit is the default number of messages to load.
	DefaultHistoryLimit int32 = 100

	// MaxHistoryLimit is the absolute maximum to prevent OOM.
	MaxHistoryLimit int32 = 10000
)

// Sentinel errors for session operations. These are part of the Store's
// public API and should be checked with errors.Is().
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrEmptyOwner indicates an operation was attempted without an owner id.
	// Sessions are always scoped to exactly one user account.
	ErrEmptyOwner = errors.New("owner id is required")
)

// NormalizeHistoryLimit clamps a history limit to the allowed range.
// Zero or negative values fall back to DefaultHistoryLimit.
func NormalizeHistoryLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
