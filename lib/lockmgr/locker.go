package lockmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/lni/dragonboat/v4/logger"
)

var _ ILockManager = (*ConsistentKeyLocker)(nil)

// ConsistentKeyLocker implements ILockManager on top of a store that only
// offers key-consistent reads and writes, using a write-then-verify protocol:
//
//  1. The local mediator is asked for the key, so only one holder per process
//     competes for it.
//  2. A claim column (timestamp + rid) is written to the lock row.
//  3. The locker sleeps for the wait interval so concurrent claims settle.
//  4. All claims of the lock row are read back. Expired claims are ignored,
//     the remaining ones are ordered by (timestamp, rid) and the lock is won
//     if our claim is the first.
//
// Thread-safety: All methods are safe for concurrent use. Different holders
// may use the same locker concurrently.
type ConsistentKeyLocker struct {
	store    store.IStore
	conf     Config
	times    timestamp.Provider
	mediator *LocalLockMediator[Holder]
	state    *lockState
	cleaner  *claimCleaner
	metrics  *lockMetrics
	log      logger.ILogger

	// pending tracks background claim deletions started after cancellation
	pending sync.WaitGroup
}

// NewConsistentKeyLocker creates a locker on s. Defaults are applied to conf.
// The store must honour conf.Consistency.
func NewConsistentKeyLocker(s store.IStore, conf Config) (*ConsistentKeyLocker, error) {
	conf = conf.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	features := s.Features()
	if conf.Consistency == store.ConsistencyKey && !features.KeyConsistent {
		return nil, fmt.Errorf("%w: store is not key consistent", ErrInvalidConfig)
	}
	if conf.Consistency == store.ConsistencyLocalKey && !features.LocalKeyConsistent {
		return nil, fmt.Errorf("%w: store is not local-key consistent", ErrInvalidConfig)
	}

	l := &ConsistentKeyLocker{
		store:    s,
		conf:     conf,
		times:    conf.Times,
		mediator: conf.Mediator,
		state:    newLockState(),
		metrics:  newLockMetrics(conf.MetricsGroup),
		log:      logger.GetLogger("lockmgr"),
	}
	if conf.CleanExpired {
		l.cleaner = newClaimCleaner(s, conf, l.metrics)
	}
	return l, nil
}

// Config returns the effective configuration.
func (l *ConsistentKeyLocker) Config() Config {
	return l.conf
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (l *ConsistentKeyLocker) Acquire(ctx context.Context, holder Holder, key LockKey) (LockStatus, error) {
	if status, ok := l.state.get(holder, key); ok {
		if !status.Expired(l.times.Now()) {
			return status, nil
		}
		l.log.Warningf("lock %s of %s expired locally, acquiring again", key, holder)
		_ = l.Release(ctx, holder, key)
	}

	start := time.Now()
	backoff := l.conf.Backoff
	var lastErr error

	for attempt := 0; attempt < l.conf.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := l.times.SleepFor(ctx, backoff); err != nil {
				return LockStatus{}, fmt.Errorf("acquire %s: %w", key, err)
			}
			backoff = min(2*backoff, l.conf.MaxBackoff)
		}

		status, err := l.tryAcquire(ctx, holder, key)
		if err == nil {
			l.state.put(holder, key, status)
			l.metrics.acquired(start)
			l.log.Debugf("%s acquired lock %s (attempt %d)", holder, key, attempt+1)
			return status, nil
		}

		if errors.Is(err, ErrLocalContention) || errors.Is(err, ErrPermanentBackend) || ctx.Err() != nil {
			return LockStatus{}, err
		}
		lastErr = err
		l.log.Debugf("%s failed to acquire lock %s (attempt %d/%d): %v", holder, key, attempt+1, l.conf.MaxAttempts, err)
	}

	return LockStatus{}, fmt.Errorf("acquire %s after %d attempts: %w", key, l.conf.MaxAttempts, lastErr)
}

func (l *ConsistentKeyLocker) Check(ctx context.Context, holder Holder, key LockKey) error {
	status, ok := l.state.get(holder, key)
	if !ok {
		return fmt.Errorf("%w: %s by %s", ErrLockNotHeld, key, holder)
	}
	// an expired claim is gone for every other process, checked or not
	if status.Expired(l.times.Now()) {
		return fmt.Errorf("%w: %s expired at %s", ErrExpiredLock, key, status.ExpirationTimestamp)
	}
	if status.Checked {
		return nil
	}

	l.metrics.inc("check", "calls")
	if err := l.verify(ctx, key, status); err != nil {
		l.metrics.inc("check", "exceptions")
		return err
	}

	l.state.markChecked(holder, key, status)
	l.log.Debugf("%s checked lock %s", holder, key)
	return nil
}

func (l *ConsistentKeyLocker) CheckAll(ctx context.Context, holder Holder) error {
	var errs []error
	for _, key := range l.state.keys(holder) {
		if err := l.Check(ctx, holder, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *ConsistentKeyLocker) Release(ctx context.Context, holder Holder, key LockKey) error {
	status, ok := l.state.remove(holder, key)
	if !ok {
		return nil
	}
	defer l.mediator.Unlock(key, holder)

	col := claimColumn(l.times.Ticks(status.WriteTimestamp), l.conf.Rid)
	if err := l.deleteClaim(ctx, key, col); err != nil {
		l.log.Warningf("failed to delete claim of %s on %s, it expires at %s: %v",
			holder, key, status.ExpirationTimestamp, err)
		return err
	}
	return nil
}

func (l *ConsistentKeyLocker) ReleaseAll(ctx context.Context, holder Holder) error {
	var errs []error
	for _, key := range l.state.keys(holder) {
		if err := l.Release(ctx, holder, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *ConsistentKeyLocker) Status(holder Holder, key LockKey) (LockStatus, bool) {
	return l.state.get(holder, key)
}

func (l *ConsistentKeyLocker) Claims(ctx context.Context, key LockKey) ([]Claim, error) {
	entries, err := l.readClaims(ctx, key)
	if err != nil {
		return nil, err
	}

	now := l.times.Now()
	claims := make([]Claim, 0, len(entries))
	for _, e := range entries {
		ticks, rid, err := parseClaimColumn(e.Column)
		if err != nil {
			continue
		}
		ts := l.times.Time(ticks)
		claims = append(claims, Claim{
			Timestamp: ts,
			Rid:       bytes.Clone(rid),
			Expired:   ts.Before(l.cutoff(now, rid)),
		})
	}
	return claims, nil
}

func (l *ConsistentKeyLocker) Close() error {
	l.pending.Wait()
	if l.cleaner != nil {
		l.cleaner.close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Protocol Steps
// --------------------------------------------------------------------------

// tryAcquire runs a single write and verify round.
func (l *ConsistentKeyLocker) tryAcquire(ctx context.Context, holder Holder, key LockKey) (LockStatus, error) {
	if !l.mediator.Lock(key, holder, l.times.Now().Add(l.conf.Expire)) {
		return LockStatus{}, fmt.Errorf("%w: %s", ErrLocalContention, key)
	}

	ts, col, err := l.writeClaim(ctx, key)
	if err != nil {
		l.mediator.Unlock(key, holder)
		return LockStatus{}, err
	}

	status := LockStatus{
		WriteTimestamp:      ts,
		ExpirationTimestamp: ts.Add(l.conf.Expire),
	}

	l.metrics.inc("check", "calls")
	if err := l.verify(ctx, key, status); err != nil {
		l.metrics.inc("check", "exceptions")
		l.discard(ctx, holder, key, col)
		return LockStatus{}, err
	}
	return status, nil
}

// writeClaim writes a new claim and returns its timestamp and column.
// A write that takes longer than the wait interval is treated as failed,
// because competitors may already have read the lock row without it. The
// next try replaces the slow claim in the same mutation.
func (l *ConsistentKeyLocker) writeClaim(ctx context.Context, key LockKey) (time.Time, []byte, error) {
	row := lockRow(key)
	var old []byte
	var lastErr error

	for i := 0; i < l.conf.RetryCount; i++ {
		ts := l.times.Now()
		col := claimColumn(l.times.Ticks(ts), l.conf.Rid)

		var deletions [][]byte
		if old != nil {
			deletions = [][]byte{old}
		}

		l.metrics.inc("write", "calls")
		err := l.store.Mutate(ctx, row, []db.Entry{{Column: col, Value: emptyValue}}, deletions, l.conf.Consistency)
		elapsed := l.times.Now().Sub(ts)

		if err == nil && elapsed <= l.conf.Wait {
			return ts, col, nil
		}
		old = col

		if err == nil {
			l.log.Warningf("lock write on %s succeeded but took too long: %s exceeds wait %s", key, elapsed, l.conf.Wait)
			lastErr = fmt.Errorf("claim write took %s", elapsed)
			continue
		}

		l.metrics.inc("write", "exceptions")
		if ctx.Err() != nil {
			l.deleteInBackground(key, col)
			return time.Time{}, nil, fmt.Errorf("write claim on %s: %w", key, ctx.Err())
		}
		if !retryable(err) {
			l.log.Errorf("fatal error during lock write on %s: %v", key, err)
			l.deleteInBackground(key, col)
			return time.Time{}, nil, backendError("write claim", key, err)
		}
		l.log.Warningf("temporary error during lock write on %s: %v", key, err)
		lastErr = err
	}

	l.deleteInBackground(key, old)
	return time.Time{}, nil, backendError("write claim", key,
		fmt.Errorf("retry count %d exceeded: %v", l.conf.RetryCount, lastErr))
}

// verify waits for the claim to settle and checks that it is the oldest
// unexpired claim of the lock row.
func (l *ConsistentKeyLocker) verify(ctx context.Context, key LockKey, status LockStatus) error {
	now, err := l.times.SleepUntil(ctx, status.WriteTimestamp.Add(l.conf.Wait+l.conf.MaxClockSkew))
	if err != nil {
		return fmt.Errorf("verify %s: %w", key, err)
	}

	entries, err := l.readClaims(ctx, key)
	if err != nil {
		return err
	}

	type claimRef struct {
		ts  time.Time
		rid []byte
	}

	live := make([]claimRef, 0, len(entries))
	sawExpired := false
	for _, e := range entries {
		ticks, rid, err := parseClaimColumn(e.Column)
		if err != nil {
			l.log.Warningf("ignoring malformed claim on %s: %v", key, err)
			continue
		}
		ts := l.times.Time(ticks)
		ours := bytes.Equal(rid, l.conf.Rid)

		if ts.Before(l.cutoff(now, rid)) {
			l.log.Warningf("discarded expired claim on %s with timestamp %s", key, ts)
			sawExpired = true
			if ours && ts.Equal(status.WriteTimestamp) {
				l.scheduleClean(key, now)
				return fmt.Errorf("%w: claim on %s written at %s is older than expire %s",
					ErrExpiredLock, key, ts, l.conf.Expire)
			}
			continue
		}
		live = append(live, claimRef{ts: ts, rid: rid})
	}
	if sawExpired {
		l.scheduleClean(key, now)
	}

	// columns are sorted by (timestamp, rid), so the first live claim is the senior one
	for _, c := range live {
		if !bytes.Equal(c.rid, l.conf.Rid) {
			return fmt.Errorf("%w: %s already claimed by %x at %s", ErrRemoteContention, key, c.rid, c.ts)
		}
		if c.ts.Equal(status.WriteTimestamp) {
			return nil
		}
		l.log.Warningf("skipping outdated claim on %s with our rid but timestamp %s (expected %s)",
			key, c.ts, status.WriteTimestamp)
	}

	if len(live) == 0 {
		return fmt.Errorf("%w: no claim visible on %s", ErrRemoteContention, key)
	}
	return backendError("verify", key,
		fmt.Errorf("read %d claims with our rid but none with timestamp %s", len(live), status.WriteTimestamp))
}

// cutoff returns the instant before which a claim of rid counts as expired.
// Claims of other processes get the clock skew as extra lifetime.
func (l *ConsistentKeyLocker) cutoff(now time.Time, rid []byte) time.Time {
	if bytes.Equal(rid, l.conf.Rid) {
		return now.Add(-l.conf.Expire)
	}
	return now.Add(-(l.conf.Expire + l.conf.MaxClockSkew))
}

func (l *ConsistentKeyLocker) scheduleClean(key LockKey, now time.Time) {
	if l.cleaner != nil {
		l.cleaner.clean(lockRow(key), now.Add(-(l.conf.Expire + l.conf.MaxClockSkew)))
	}
}

// readClaims reads the claim slice of key, retrying temporary failures.
func (l *ConsistentKeyLocker) readClaims(ctx context.Context, key LockKey) ([]db.Entry, error) {
	q := db.SliceQuery{Start: claimSliceStart, End: claimSliceEnd}
	var lastErr error

	for i := 0; i < l.conf.RetryCount; i++ {
		entries, err := l.store.GetSlice(ctx, lockRow(key), q, l.conf.Consistency)
		if err == nil {
			return entries, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read claims of %s: %w", key, ctx.Err())
		}
		if !retryable(err) {
			l.log.Errorf("failed to read claims of %s: %v", key, err)
			return nil, backendError("read claims", key, err)
		}
		l.log.Warningf("temporary error while reading claims of %s: %v", key, err)
		lastErr = err
	}

	return nil, backendError("read claims", key,
		fmt.Errorf("retry count %d exceeded: %v", l.conf.RetryCount, lastErr))
}

// deleteClaim removes a single claim column, retrying temporary failures.
func (l *ConsistentKeyLocker) deleteClaim(ctx context.Context, key LockKey, col []byte) error {
	var lastErr error

	for i := 0; i < l.conf.RetryCount; i++ {
		l.metrics.inc("delete", "calls")
		err := l.store.Mutate(ctx, lockRow(key), nil, [][]byte{col}, l.conf.Consistency)
		if err == nil {
			return nil
		}
		l.metrics.inc("delete", "exceptions")
		if ctx.Err() != nil {
			return fmt.Errorf("delete claim on %s: %w", key, ctx.Err())
		}
		if !retryable(err) {
			return backendError("delete claim", key, err)
		}
		lastErr = err
	}

	return backendError("delete claim", key,
		fmt.Errorf("retry count %d exceeded: %v", l.conf.RetryCount, lastErr))
}

// discard gives up a claim after a lost or failed verification. The mediator
// entry is released at once, the claim is deleted in the background if ctx
// is already done.
func (l *ConsistentKeyLocker) discard(ctx context.Context, holder Holder, key LockKey, col []byte) {
	l.mediator.Unlock(key, holder)
	if ctx.Err() != nil {
		l.deleteInBackground(key, col)
		return
	}
	if err := l.deleteClaim(ctx, key, col); err != nil {
		l.log.Warningf("failed to delete losing claim on %s: %v", key, err)
	}
}

// deleteInBackground deletes a claim without blocking the caller. The
// deletion is bounded by the cleanup timeout.
func (l *ConsistentKeyLocker) deleteInBackground(key LockKey, col []byte) {
	if col == nil {
		return
	}
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.conf.CleanupTimeout)
		defer cancel()
		if err := l.deleteClaim(ctx, key, col); err != nil {
			l.log.Warningf("abandoning claim on %s, it will expire: %v", key, err)
		}
	}()
}

// retryable reports whether a store error may succeed on retry.
// Only store errors with a non temporary code are permanent.
func retryable(err error) bool {
	var se *store.Error
	if errors.As(err, &se) {
		return se.Code == store.RetCTemporary
	}
	return true
}
