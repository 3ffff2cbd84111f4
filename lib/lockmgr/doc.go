// Package lockmgr implements mutual exclusion locks on (row, column) keys
// over any store.IStore, without a coordinator and without backend
// transactions.
//
// Every process that takes part in locking is identified by a rid. To lock a
// key the process writes a claim column into a dedicated lock row, waits for
// the write to settle and then reads every claim of that row back. The process
// holds the lock if its claim is the oldest unexpired one. Claims expire after
// a fixed lifetime, so a crashed holder blocks a key only until its claim
// expires.
//
// Core Components:
//   - ConsistentKeyLocker: the write-then-verify protocol (implements ILockManager)
//   - LocalLockMediator: in-process arbitration so only one holder per process
//     competes for a key
//   - claim cleaner: optional background deletion of expired claims
//
// Data Layout:
//
//	lock row:     uint32(len(row)) | row | column
//	claim column: int64 timestamp ticks (big-endian) | rid
//	claim value:  empty
//
// Claims sort by timestamp and then by rid, which gives a deterministic
// winner if two processes write at the same tick.
//
// Checked Locks:
//
//	Acquire returns after one verification read. On an eventually consistent
//	store that read may have missed a competing claim. Check repeats the
//	verification and marks the lock as checked. Call it before any action that
//	cannot be undone while holding the lock.
//
// Clock Skew:
//
//	Correctness assumes that the clocks of all processes differ by at most
//	Config.MaxClockSkew. The value is added to the wait interval and to the
//	lifetime of foreign claims. It is not enforced.
//
// Errors:
//
//	Callers can tell contention (ErrLocalContention, ErrRemoteContention,
//	ErrExpiredLock) apart from infrastructure failures (ErrBackendUnavailable).
//	Store errors are never returned unwrapped.
//
// Usage Example:
//
//	locker, err := lockmgr.NewConsistentKeyLocker(s, lockmgr.Config{Wait: 50 * time.Millisecond})
//	if err != nil {
//	    // Handle error
//	}
//	defer locker.Close()
//
//	key := lockmgr.LockKey{Row: "vertex:42", Column: "name"}
//	if _, err := locker.Acquire(ctx, "tx-1", key); err != nil {
//	    // Contended or backend unavailable
//	}
//	defer locker.Release(ctx, "tx-1", key)
//
//	if err := locker.Check(ctx, "tx-1", key); err != nil {
//	    // Do not proceed
//	}
package lockmgr
