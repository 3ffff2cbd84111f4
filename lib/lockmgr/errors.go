package lockmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrLocalContention means another holder in this process owns the lock.
	ErrLocalContention = errors.New("lock held by another holder in this process")

	// ErrRemoteContention means an older live claim of another process exists.
	ErrRemoteContention = errors.New("lock held by another process")

	// ErrExpiredLock means our own claim expired before it could be verified.
	ErrExpiredLock = errors.New("lock claim expired")

	// ErrBackendUnavailable means the store failed after all retries.
	ErrBackendUnavailable = errors.New("lock backend unavailable")

	// ErrPermanentBackend is wrapped together with ErrBackendUnavailable when
	// the store rejected an operation with a non temporary code. Retrying the
	// same operation fails the same way.
	ErrPermanentBackend = errors.New("permanent backend failure")

	// ErrLockNotHeld means the holder does not own the lock.
	ErrLockNotHeld = errors.New("lock not held")

	// ErrInvalidConfig means the configuration was rejected.
	ErrInvalidConfig = errors.New("invalid lock configuration")
)

// IsContention reports whether err is a local or remote contention error.
// Contention is worth retrying after a backoff.
func IsContention(err error) bool {
	return errors.Is(err, ErrLocalContention) || errors.Is(err, ErrRemoteContention)
}

// backendError wraps a raw store error so that it never escapes the package unclassified.
// The store error itself is only kept as text.
func backendError(op string, key LockKey, err error) error {
	if !retryable(err) {
		return fmt.Errorf("%w: %w: %s %s: %v", ErrBackendUnavailable, ErrPermanentBackend, op, key, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrBackendUnavailable, op, key, err)
}
