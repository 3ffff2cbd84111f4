package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var testKey = LockKey{Row: "vertex:1", Column: "name"}

func newTestStore() store.IStore {
	return lstore.NewLocalStore(func() db.KCVDB { return maple.NewMapleDB(nil) })
}

// testConfig returns the timing used by the deterministic tests:
// claims live 100ms and are verified after 20ms.
func testConfig(rid string, times timestamp.Provider) Config {
	return Config{
		Rid:        []byte(rid),
		Expire:     100 * time.Millisecond,
		Wait:       20 * time.Millisecond,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
		Times:      times,
	}
}

func newTestLocker(t *testing.T, s store.IStore, conf Config) *ConsistentKeyLocker {
	t.Helper()
	l, err := NewConsistentKeyLocker(s, conf)
	if err != nil {
		t.Fatalf("NewConsistentKeyLocker() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func mustClaims(t *testing.T, l *ConsistentKeyLocker, key LockKey) []Claim {
	t.Helper()
	claims, err := l.Claims(context.Background(), key)
	if err != nil {
		t.Fatalf("Claims() error = %v", err)
	}
	return claims
}

// hookStore wraps a store and runs a hook before every Mutate. The hook gets
// the 1-based number of the call, a non-nil error fails the call.
type hookStore struct {
	store.IStore
	mutate func(n int) error
	read   func(n int) error
	writes atomic.Int64
	reads  atomic.Int64
}

func (h *hookStore) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, level store.Consistency) error {
	n := int(h.writes.Add(1))
	if h.mutate != nil {
		if err := h.mutate(n); err != nil {
			return err
		}
	}
	return h.IStore.Mutate(ctx, row, additions, deletions, level)
}

func (h *hookStore) GetSlice(ctx context.Context, row string, q db.SliceQuery, level store.Consistency) ([]db.Entry, error) {
	n := int(h.reads.Add(1))
	if h.read != nil {
		if err := h.read(n); err != nil {
			return nil, err
		}
	}
	return h.IStore.GetSlice(ctx, row, q, level)
}

// oversleepClock wakes up later than requested.
type oversleepClock struct {
	*timestamp.ManualProvider
	extra time.Duration
}

func (c oversleepClock) SleepUntil(ctx context.Context, t time.Time) (time.Time, error) {
	return c.ManualProvider.SleepUntil(ctx, t.Add(c.extra))
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := newTestLocker(t, newTestStore(), testConfig("a", newTestClock()))

	status, err := l.Acquire(ctx, "tx1", testKey)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if status.Checked {
		t.Errorf("Fresh lock must not be checked")
	}
	if got := status.ExpirationTimestamp.Sub(status.WriteTimestamp); got != 100*time.Millisecond {
		t.Errorf("Expected lifetime 100ms, got %s", got)
	}

	claims := mustClaims(t, l, testKey)
	if len(claims) != 1 || string(claims[0].Rid) != "a" || !claims[0].Timestamp.Equal(status.WriteTimestamp) {
		t.Fatalf("Unexpected claims %+v", claims)
	}

	if err := l.Check(ctx, "tx1", testKey); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s, ok := l.Status("tx1", testKey); !ok || !s.Checked {
		t.Errorf("Status() = %+v, %v; want checked lock", s, ok)
	}

	if err := l.Release(ctx, "tx1", testKey); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if claims := mustClaims(t, l, testKey); len(claims) != 0 {
		t.Errorf("Expected no claims after release, got %d", len(claims))
	}
	if _, ok := l.Status("tx1", testKey); ok {
		t.Errorf("Status still present after release")
	}

	// release is idempotent
	if err := l.Release(ctx, "tx1", testKey); err != nil {
		t.Errorf("Second Release() error = %v", err)
	}
}

func TestAcquireReentrant(t *testing.T) {
	ctx := context.Background()
	l := newTestLocker(t, newTestStore(), testConfig("a", newTestClock()))

	first, err := l.Acquire(ctx, "tx1", testKey)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second, err := l.Acquire(ctx, "tx1", testKey)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if !first.WriteTimestamp.Equal(second.WriteTimestamp) {
		t.Errorf("Reacquire wrote a new claim: %s != %s", first.WriteTimestamp, second.WriteTimestamp)
	}
	if n := len(mustClaims(t, l, testKey)); n != 1 {
		t.Errorf("Expected one claim, got %d", n)
	}
}

func TestLocalContention(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{IStore: newTestStore()}
	l := newTestLocker(t, hs, testConfig("a", newTestClock()))

	if _, err := l.Acquire(ctx, "tx1", testKey); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	writes := hs.writes.Load()
	_, err := l.Acquire(ctx, "tx2", testKey)
	if !errors.Is(err, ErrLocalContention) {
		t.Fatalf("Expected ErrLocalContention, got %v", err)
	}
	if hs.writes.Load() != writes {
		t.Errorf("Local contention must not touch the store")
	}

	// a foreign release does not free the lock
	if err := l.Release(ctx, "tx2", testKey); err != nil {
		t.Errorf("Release() by non-holder error = %v", err)
	}
	if n := len(mustClaims(t, l, testKey)); n != 1 {
		t.Errorf("Release by non-holder removed a claim")
	}

	if err := l.Release(ctx, "tx1", testKey); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := l.Acquire(ctx, "tx2", testKey); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestRemoteContentionAndExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	start := clk.Peek()
	s := newTestStore()

	confB := testConfig("b", clk)
	confB.MaxAttempts = 1

	a := newTestLocker(t, s, testConfig("a", clk))
	b := newTestLocker(t, s, confB)

	statusA, err := a.Acquire(ctx, "tx", testKey)
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}

	clk.Set(start.Add(10 * time.Millisecond))
	_, err = b.Acquire(ctx, "tx", testKey)
	if !errors.Is(err, ErrRemoteContention) {
		t.Fatalf("Expected ErrRemoteContention, got %v", err)
	}
	if !IsContention(err) {
		t.Errorf("IsContention() = false for %v", err)
	}

	// the losing claim was removed again
	claims := mustClaims(t, a, testKey)
	if len(claims) != 1 || string(claims[0].Rid) != "a" {
		t.Fatalf("Expected only the claim of a, got %+v", claims)
	}

	// a never releases, its claim expires
	clk.Set(start.Add(150 * time.Millisecond))
	statusB, err := b.Acquire(ctx, "tx", testKey)
	if err != nil {
		t.Fatalf("Acquire(b) after expiry error = %v", err)
	}
	if !statusB.WriteTimestamp.After(statusA.ExpirationTimestamp) {
		t.Errorf("b won at %s before the claim of a expired at %s", statusB.WriteTimestamp, statusA.ExpirationTimestamp)
	}

	if err := a.Check(ctx, "tx", testKey); !errors.Is(err, ErrExpiredLock) {
		t.Errorf("Expected ErrExpiredLock for the stale holder, got %v", err)
	}

	claims = mustClaims(t, b, testKey)
	if len(claims) != 2 || !claims[0].Expired || claims[1].Expired {
		t.Errorf("Expected expired claim of a and live claim of b, got %+v", claims)
	}
}

func TestOwnClaimExpiredDuringVerification(t *testing.T) {
	clk := oversleepClock{ManualProvider: newTestClock(), extra: 101 * time.Millisecond}
	conf := testConfig("a", clk)
	conf.MaxAttempts = 1
	l := newTestLocker(t, newTestStore(), conf)

	_, err := l.Acquire(context.Background(), "tx", testKey)
	if !errors.Is(err, ErrExpiredLock) {
		t.Fatalf("Expected ErrExpiredLock, got %v", err)
	}
	if n := len(mustClaims(t, l, testKey)); n != 0 {
		t.Errorf("Expected expired claim to be deleted, found %d claims", n)
	}
	if _, _, ok := l.Config().Mediator.Holder(testKey); ok {
		t.Errorf("Mediator entry leaked")
	}
}

func TestSlowWriteReplacesClaim(t *testing.T) {
	clk := newTestClock()
	hs := &hookStore{IStore: newTestStore()}
	hs.mutate = func(n int) error {
		if n == 1 {
			clk.Advance(50 * time.Millisecond)
		}
		return nil
	}
	l := newTestLocker(t, hs, testConfig("a", clk))

	status, err := l.Acquire(context.Background(), "tx", testKey)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	claims := mustClaims(t, l, testKey)
	if len(claims) != 1 {
		t.Fatalf("Expected the slow claim to be replaced, got %d claims", len(claims))
	}
	if !claims[0].Timestamp.Equal(status.WriteTimestamp) {
		t.Errorf("Remaining claim %s is not the acquired one %s", claims[0].Timestamp, status.WriteTimestamp)
	}
}

func TestBackendFailures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(n int) error
		wantErr    error
		wantWrites int64
	}{
		{
			name:       "transient",
			mutate:     func(n int) error { return failFirst(n, 2, store.RetCTemporary) },
			wantWrites: 3,
		},
		{
			name:       "temporary exhausted",
			mutate:     func(n int) error { return failFirst(n, 1000, store.RetCTemporary) },
			wantErr:    ErrBackendUnavailable,
			wantWrites: 3 * (3 + 3), // three writes and three background deletes per attempt
		},
		{
			name:       "permanent",
			mutate:     func(n int) error { return failFirst(n, 1000, store.RetCInternalError) },
			wantErr:    ErrPermanentBackend,
			wantWrites: 2, // one write and its background delete, no further attempts
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := &hookStore{IStore: newTestStore(), mutate: tt.mutate}
			conf := testConfig("a", newTestClock())
			l, err := NewConsistentKeyLocker(hs, conf)
			if err != nil {
				t.Fatalf("NewConsistentKeyLocker() error = %v", err)
			}

			_, err = l.Acquire(context.Background(), "tx", testKey)
			_ = l.Close()

			if tt.wantErr == nil && err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrBackendUnavailable) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if permanent := errors.Is(err, ErrPermanentBackend); permanent != (tt.wantErr == ErrPermanentBackend) {
					t.Errorf("permanent = %v for %v", permanent, err)
				}
				if IsContention(err) {
					t.Errorf("Backend failure reported as contention: %v", err)
				}
				var se *store.Error
				if errors.As(err, &se) {
					t.Errorf("Raw store error leaked: %v", err)
				}
			}
			if tt.wantWrites >= 0 && hs.writes.Load() != tt.wantWrites {
				t.Errorf("Expected %d writes, got %d", tt.wantWrites, hs.writes.Load())
			}
			if _, _, ok := l.Config().Mediator.Holder(testKey); ok != (tt.wantErr == nil) {
				t.Errorf("Mediator held = %v after err = %v", ok, err)
			}
		})
	}
}

func failFirst(n, failures int, code store.RetCode) error {
	if n <= failures {
		return store.Errorf(code, "injected failure %d", n)
	}
	return nil
}

func TestReadFailure(t *testing.T) {
	hs := &hookStore{IStore: newTestStore()}
	hs.read = func(n int) error { return store.NewError(store.RetCTemporary, "read timeout") }
	conf := testConfig("a", newTestClock())
	conf.MaxAttempts = 1
	l := newTestLocker(t, hs, conf)

	_, err := l.Acquire(context.Background(), "tx", testKey)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}
	if hs.reads.Load() != int64(conf.WithDefaults().RetryCount) {
		t.Errorf("Expected %d reads, got %d", DefaultRetryCount, hs.reads.Load())
	}
	hs.read = nil
	if n := len(mustClaims(t, l, testKey)); n != 0 {
		t.Errorf("Claim of failed acquisition was not deleted")
	}
}

func TestCancelledAcquire(t *testing.T) {
	s := newTestStore()
	conf := Config{
		Rid:    []byte("a"),
		Expire: 5 * time.Second,
		Wait:   500 * time.Millisecond,
	}
	l, err := NewConsistentKeyLocker(s, conf)
	if err != nil {
		t.Fatalf("NewConsistentKeyLocker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	begin := time.Now()
	_, err = l.Acquire(ctx, "tx", testKey)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 400*time.Millisecond {
		t.Errorf("Acquire blocked for %s after cancellation", elapsed)
	}
	if _, _, ok := l.Config().Mediator.Holder(testKey); ok {
		t.Errorf("Mediator entry leaked after cancellation")
	}

	// Close waits for the background cleanup
	_ = l.Close()
	if n := len(mustClaims(t, l, testKey)); n != 0 {
		t.Errorf("Expected claim to be cleaned up, found %d", n)
	}

	if _, err := l.Acquire(ctx, "tx", testKey); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for cancelled context, got %v", err)
	}
}

func TestCheckAndRelease(t *testing.T) {
	ctx := context.Background()
	l := newTestLocker(t, newTestStore(), testConfig("a", newTestClock()))

	if err := l.Check(ctx, "tx", testKey); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Expected ErrLockNotHeld, got %v", err)
	}

	keys := []LockKey{{Row: "r", Column: "1"}, {Row: "r", Column: "2"}, {Row: "s", Column: "1"}}
	for _, k := range keys {
		if _, err := l.Acquire(ctx, "tx", k); err != nil {
			t.Fatalf("Acquire(%s) error = %v", k, err)
		}
	}
	if _, err := l.Acquire(ctx, "other", LockKey{Row: "o", Column: "1"}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.CheckAll(ctx, "tx"); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	for _, k := range keys {
		if s, _ := l.Status("tx", k); !s.Checked {
			t.Errorf("Lock %s not checked", k)
		}
	}

	if err := l.ReleaseAll(ctx, "tx"); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	for _, k := range keys {
		if _, ok := l.Status("tx", k); ok {
			t.Errorf("Lock %s still held", k)
		}
	}
	if _, ok := l.Status("other", LockKey{Row: "o", Column: "1"}); !ok {
		t.Errorf("ReleaseAll released the lock of another holder")
	}
}

func TestCheckExpiredLock(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	s := newTestStore()

	a := newTestLocker(t, s, testConfig("a", clk))
	b := newTestLocker(t, s, testConfig("b", clk))

	if _, err := a.Acquire(ctx, "tx", testKey); err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	if err := a.Check(ctx, "tx", testKey); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	// the checked claim of a expires and b takes over the key
	clk.Advance(150 * time.Millisecond)
	if _, err := b.Acquire(ctx, "tx", testKey); err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}

	if err := a.Check(ctx, "tx", testKey); !errors.Is(err, ErrExpiredLock) {
		t.Errorf("Check() after expiry: expected ErrExpiredLock, got %v", err)
	}
	if err := a.CheckAll(ctx, "tx"); !errors.Is(err, ErrExpiredLock) {
		t.Errorf("CheckAll() after expiry: expected ErrExpiredLock, got %v", err)
	}
	if err := b.Check(ctx, "tx", testKey); err != nil {
		t.Errorf("Check() by the new holder error = %v", err)
	}
}

func TestConsistencyLevels(t *testing.T) {
	tests := []struct {
		name       string
		level      store.Consistency
		bothCanWin bool
	}{
		{"key consistent", store.ConsistencyKey, false},
		{"local key consistent", store.ConsistencyLocalKey, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newTestClock()
			rs := lstore.NewReplicaSet(2, func() db.KCVDB { return maple.NewMapleDB(nil) })
			defer rs.Close()

			confA, confB := testConfig("a", clk), testConfig("b", clk)
			confA.Consistency, confB.Consistency = tt.level, tt.level
			confB.MaxAttempts = 1

			a := newTestLocker(t, rs.Replica(0), confA)
			b := newTestLocker(t, rs.Replica(1), confB)

			if _, err := a.Acquire(ctx, "tx", testKey); err != nil {
				t.Fatalf("Acquire(a) error = %v", err)
			}
			_, err := b.Acquire(ctx, "tx", testKey)
			if tt.bothCanWin && err != nil {
				t.Errorf("Expected both datacenters to win locally, got %v", err)
			}
			if !tt.bothCanWin && !errors.Is(err, ErrRemoteContention) {
				t.Errorf("Expected ErrRemoteContention, got %v", err)
			}
		})
	}
}

func TestCleanerRemovesExpiredClaims(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	s := newTestStore()

	crashed := newTestLocker(t, s, testConfig("crashed", clk))
	if _, err := crashed.Acquire(ctx, "tx", testKey); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	clk.Advance(time.Second)

	conf := testConfig("b", clk)
	conf.CleanExpired = true
	b := newTestLocker(t, s, conf)
	if _, err := b.Acquire(ctx, "tx", testKey); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		claims := mustClaims(t, b, testKey)
		if len(claims) == 1 && string(claims[0].Rid) == "b" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expired claim was not cleaned, claims = %+v", claims)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runExclusive lets every worker acquire testKey rounds times and fails the
// test if two workers were ever inside the critical section together.
// Contended attempts are retried until every round succeeded.
func runExclusive(t *testing.T, workers, rounds int, lockerFor func(i int) *ConsistentKeyLocker, holderFor func(i int) Holder) {
	t.Helper()

	var inside, maxInside, successes atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	deadline := time.Now().Add(20 * time.Second)

	for i := 0; i < workers; i++ {
		l, holder := lockerFor(i), holderFor(i)

		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for r := 0; r < rounds; {
				if _, err := l.Acquire(ctx, holder, testKey); err != nil {
					if !IsContention(err) {
						errs <- err
						return
					}
					if time.Now().After(deadline) {
						errs <- fmt.Errorf("%s starved: %w", holder, err)
						return
					}
					time.Sleep(time.Millisecond)
					continue
				}
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				successes.Add(1)
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				if err := l.Release(ctx, holder, testKey); err != nil {
					errs <- err
				}
				r++
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if maxInside.Load() > 1 {
		t.Errorf("Mutual exclusion violated: %d holders at once", maxInside.Load())
	}
	if got, want := successes.Load(), int32(workers*rounds); got != want {
		t.Errorf("successful acquisitions = %d, want %d", got, want)
	}
}

func exclusionConfig(rid string) Config {
	return Config{
		Rid:         []byte(rid),
		Expire:      5 * time.Second,
		Wait:        10 * time.Millisecond,
		MaxAttempts: 50,
		Backoff:     2 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}
}

func TestMutualExclusion(t *testing.T) {
	const workers = 4
	const rounds = 5

	t.Run("separate processes", func(t *testing.T) {
		s := newTestStore()
		lockers := make([]*ConsistentKeyLocker, workers)
		for i := range lockers {
			lockers[i] = newTestLocker(t, s, exclusionConfig(fmt.Sprintf("proc-%d", i)))
		}
		runExclusive(t, workers, rounds,
			func(i int) *ConsistentKeyLocker { return lockers[i] },
			func(int) Holder { return "worker" })
	})

	t.Run("holders sharing one locker", func(t *testing.T) {
		l := newTestLocker(t, newTestStore(), exclusionConfig("proc"))
		runExclusive(t, workers, rounds,
			func(int) *ConsistentKeyLocker { return l },
			func(i int) Holder { return Holder(fmt.Sprintf("tx-%d", i)) })

		if n := l.mediator.Len(); n != 0 {
			t.Errorf("mediator still holds %d entries after all releases", n)
		}
	})
}

func TestLockMetrics(t *testing.T) {
	conf := testConfig("a", newTestClock())
	conf.MetricsGroup = "metrics-test"
	l := newTestLocker(t, newTestStore(), conf)

	if _, err := l.Acquire(context.Background(), "tx", testKey); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	writes := metrics.GetOrCreateCounter(`dlock_locks_total{group="metrics-test",op="write",result="calls"}`).Get()
	checks := metrics.GetOrCreateCounter(`dlock_locks_total{group="metrics-test",op="check",result="calls"}`).Get()
	if writes != 1 || checks != 1 {
		t.Errorf("Expected one write and one check, got %d and %d", writes, checks)
	}
}

func TestNewLockerValidation(t *testing.T) {
	tests := []struct {
		name  string
		conf  Config
		store store.IStore
	}{
		{"wait exceeds expire", Config{Expire: time.Second, Wait: 2 * time.Second}, newTestStore()},
		{"wait plus skew exceeds expire", Config{Expire: time.Second, Wait: 600 * time.Millisecond, MaxClockSkew: 500 * time.Millisecond}, newTestStore()},
		{"negative backoff", Config{Backoff: -1}, newTestStore()},
		{"default consistency unsafe", Config{Consistency: store.Consistency(9)}, newTestStore()},
		{"store not key consistent", Config{}, weakStore{newTestStore()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConsistentKeyLocker(tt.store, tt.conf); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

type weakStore struct {
	store.IStore
}

func (weakStore) Features() store.Features {
	return store.Features{Distributed: true}
}
