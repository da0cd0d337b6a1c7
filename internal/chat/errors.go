package chat

import "errors"

var (
	// ErrNotFound indicates the requested chat, message or event does not
	// exist or is not visible to the current user.
	ErrNotFound = errors.New("data not found")

	// ErrAccessDenied is returned when queue admission fails because the
	// user already holds a cell, or when a role restriction applies.
	ErrAccessDenied = errors.New("access denied")

	// ErrSnapshotVersion is returned when a cached snapshot carries an
	// unknown schema version. Callers treat it as a cache miss.
	ErrSnapshotVersion = errors.New("snapshot schema version mismatch")

	// ErrContextRejected is returned when the model validator refuses the
	// submitted vacancy text.
	ErrContextRejected = errors.New("initial context rejected")
)

// ErrCacheMiss marks an absent cache key. Cache implementations translate
// their driver's not-found result into this sentinel; the domain never sees
// driver errors.
var ErrCacheMiss = errors.New("cache miss")
