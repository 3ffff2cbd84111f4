package lockmgr

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/google/uuid"
)

// Default values of Config.
const (
	DefaultExpire         = 300 * time.Second
	DefaultWait           = 100 * time.Millisecond
	DefaultRetryCount     = 3
	DefaultMaxAttempts    = 3
	DefaultBackoff        = 50 * time.Millisecond
	DefaultMaxBackoff     = time.Second
	DefaultCleanupTimeout = 5 * time.Second
)

// Config holds the parameters of a ConsistentKeyLocker.
// Zero values are replaced by the defaults in WithDefaults.
type Config struct {
	// Rid uniquely identifies this process in claim records. Defaults to a random UUID.
	Rid []byte

	// Expire is the lifetime of a claim.
	Expire time.Duration
	// Wait is the interval between writing a claim and reading the claims back.
	// It must exceed the time the store needs to make a write visible.
	Wait time.Duration
	// MaxClockSkew is the assumed bound of clock differences between processes.
	// It is added to Wait and to the lifetime of claims written by other processes.
	MaxClockSkew time.Duration

	// RetryCount bounds the retries of a single store operation.
	RetryCount int
	// MaxAttempts bounds the write and verify rounds of Acquire.
	MaxAttempts int
	// Backoff is the first pause between attempts, it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// CleanupTimeout bounds the best-effort deletion of a claim after a
	// cancelled or failed acquisition.
	CleanupTimeout time.Duration

	// Consistency is the level used for all claim reads and writes.
	// It must be ConsistencyKey or ConsistencyLocalKey.
	Consistency store.Consistency
	// CleanExpired enables the background deletion of expired claims.
	CleanExpired bool
	// MetricsGroup names the metrics of this locker. Empty disables metrics.
	MetricsGroup string

	// Mediator is shared by every locker of the process that uses the same store.
	// A private mediator is created if nil.
	Mediator *LocalLockMediator[Holder]
	// Times is the clock. Defaults to a microsecond wall clock.
	Times timestamp.Provider
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of c with every zero field set to its default.
func (c Config) WithDefaults() Config {
	if len(c.Rid) == 0 {
		id := uuid.New()
		c.Rid = id[:]
	}
	if c.Expire == 0 {
		c.Expire = DefaultExpire
	}
	if c.Wait == 0 {
		c.Wait = DefaultWait
	}
	if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff == 0 {
		c.Backoff = DefaultBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.CleanupTimeout == 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}
	if c.Consistency == store.ConsistencyDefault {
		c.Consistency = store.ConsistencyKey
	}
	if c.Times == nil {
		c.Times = timestamp.NewProvider(timestamp.Micro)
	}
	if c.Mediator == nil {
		c.Mediator = NewLocalLockMediator[Holder]("lockmgr", c.Times)
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	switch {
	case c.Expire <= 0:
		return fmt.Errorf("%w: expire must be positive, got %s", ErrInvalidConfig, c.Expire)
	case c.Wait <= 0:
		return fmt.Errorf("%w: wait must be positive, got %s", ErrInvalidConfig, c.Wait)
	case c.Wait+c.MaxClockSkew >= c.Expire:
		return fmt.Errorf("%w: wait (%s) plus clock skew (%s) must be below expire (%s)",
			ErrInvalidConfig, c.Wait, c.MaxClockSkew, c.Expire)
	case c.MaxClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrInvalidConfig)
	case c.RetryCount <= 0:
		return fmt.Errorf("%w: retry count must be positive, got %d", ErrInvalidConfig, c.RetryCount)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.Backoff <= 0 || c.MaxBackoff < c.Backoff:
		return fmt.Errorf("%w: backoff %s / max backoff %s", ErrInvalidConfig, c.Backoff, c.MaxBackoff)
	case c.CleanupTimeout <= 0:
		return fmt.Errorf("%w: cleanup timeout must be positive", ErrInvalidConfig)
	case c.Consistency != store.ConsistencyKey && c.Consistency != store.ConsistencyLocalKey:
		return fmt.Errorf("%w: consistency %s cannot guarantee mutual exclusion", ErrInvalidConfig, c.Consistency)
	case len(c.Rid) == 0:
		return fmt.Errorf("%w: empty rid", ErrInvalidConfig)
	}
	return nil
}
