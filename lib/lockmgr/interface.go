package lockmgr

import (
	"context"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// LockKey identifies the (row, column) pair a lock protects.
type LockKey struct {
	Row    string
	Column string
}

func (k LockKey) String() string {
	return fmt.Sprintf("%s/%s", k.Row, k.Column)
}

// Holder identifies the unit of work (a transaction, request or worker)
// that owns a lock. Holders are local to one process.
type Holder string

// LockStatus is the locally remembered state of a claim the process wrote.
type LockStatus struct {
	// WriteTimestamp is the instant encoded in the claim column.
	WriteTimestamp time.Time
	// ExpirationTimestamp is WriteTimestamp plus the lock expiry.
	ExpirationTimestamp time.Time
	// Checked is set once the claim has been verified as the oldest live one.
	Checked bool
}

// Expired reports whether the claim has expired at now. A claim is still
// valid at exactly its expiration instant.
func (s LockStatus) Expired(now time.Time) bool {
	return now.After(s.ExpirationTimestamp)
}

// Claim is a single claim record as read from the backend.
type Claim struct {
	Timestamp time.Time
	Rid       []byte
	Expired   bool
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ILockManager acquires and releases locks on (row, column) keys for the
// holders of one process. Mutual exclusion between processes is provided
// by claims written to a shared store.
type ILockManager interface {
	// Acquire obtains the lock on key for holder. It returns the status of the
	// written claim. If holder already owns the lock the existing status is
	// returned without touching the store.
	//
	// Errors: ErrLocalContention, ErrRemoteContention, ErrExpiredLock,
	// ErrBackendUnavailable, or the (wrapped) context error.
	Acquire(ctx context.Context, holder Holder, key LockKey) (LockStatus, error)

	// Check revalidates a held lock against the store and marks it as checked.
	// It returns ErrLockNotHeld if holder does not own the lock.
	Check(ctx context.Context, holder Holder, key LockKey) error

	// CheckAll runs Check for every lock of holder.
	CheckAll(ctx context.Context, holder Holder) error

	// Release gives up the lock. It is idempotent: releasing a lock that is
	// not held returns nil. The local state is always cleared, even if the
	// claim could not be deleted from the store.
	Release(ctx context.Context, holder Holder, key LockKey) error

	// ReleaseAll releases every lock of holder.
	ReleaseAll(ctx context.Context, holder Holder) error

	// Status returns the local status of the lock, if holder owns it.
	Status(holder Holder, key LockKey) (LockStatus, bool)

	// Claims returns every claim record currently stored for key, oldest first.
	Claims(ctx context.Context, key LockKey) ([]Claim, error)

	// Close stops background work. Held locks are not released.
	Close() error
}
