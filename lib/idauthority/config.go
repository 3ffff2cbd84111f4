package idauthority

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/ValentinKolb/dLock/lib/lockmgr"
)

// Default values of Config.
const (
	DefaultTagBits          = 4
	DefaultRandomTagRetries = 5
	DefaultMaxPartitions    = 32
	DefaultWaitTime         = 300 * time.Millisecond
	DefaultTimeout          = time.Minute

	maxTagBits       = 16
	maxPartitionBits = 16
)

// Config holds the parameters of a ConsistentKeyIDAuthority.
type Config struct {
	// Mode selects tags and consistency.
	Mode ConflictAvoidanceMode
	// Tag is the operator assigned tag of the manual modes.
	Tag int
	// TagBits is the width of the tag in every ID. Zero selects the default,
	// the width is always 0 with mode None.
	TagBits int
	// RandomTagRetries is the number of distinct exhausted tags after which
	// GlobalAuto gives up. It must be below 2^TagBits.
	RandomTagRetries int
	// MaxPartitions is the number of partitions, a power of two.
	MaxPartitions int

	// WaitTime is the base of the retry backoff. Backoff doubles up to 32 x WaitTime.
	WaitTime time.Duration
	// Timeout bounds a single GetIDBlock call in addition to the context deadline.
	Timeout time.Duration

	// MetricsGroup names the metrics of this authority. Empty disables metrics.
	MetricsGroup string

	// Locker configures the lock on the counters. Its consistency is set from Mode.
	Locker lockmgr.Config
}

// WithDefaults returns a copy of c with every zero field set to its default.
func (c Config) WithDefaults() Config {
	if !c.Mode.Tagged() {
		c.TagBits = 0
	} else if c.TagBits == 0 {
		c.TagBits = DefaultTagBits
	}
	if c.RandomTagRetries == 0 {
		c.RandomTagRetries = DefaultRandomTagRetries
	}
	if c.MaxPartitions == 0 {
		c.MaxPartitions = DefaultMaxPartitions
	}
	if c.WaitTime == 0 {
		c.WaitTime = DefaultWaitTime
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	c.Locker.Consistency = c.Mode.Consistency()
	if c.Locker.MetricsGroup == "" && c.MetricsGroup != "" {
		c.Locker.MetricsGroup = c.MetricsGroup
	}
	c.Locker = c.Locker.WithDefaults()
	return c
}

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	if c.Mode > GlobalAuto {
		return fmt.Errorf("%w: unknown mode %s", ErrInvalidConfig, c.Mode)
	}
	if c.TagBits < 0 || c.TagBits > maxTagBits {
		return fmt.Errorf("%w: tag bits must be in [0,%d], got %d", ErrInvalidConfig, maxTagBits, c.TagBits)
	}
	tags := 1 << c.TagBits

	switch c.Mode {
	case LocalManual, GlobalManual:
		if c.Tag < 0 || c.Tag >= tags {
			return fmt.Errorf("%w: tag %d does not fit into %d bits", ErrInvalidConfig, c.Tag, c.TagBits)
		}
	case GlobalAuto:
		if c.RandomTagRetries <= 0 || c.RandomTagRetries >= tags {
			return fmt.Errorf("%w: random tag retries must be in [1,%d), got %d",
				ErrInvalidConfig, tags, c.RandomTagRetries)
		}
	case None:
		if c.Tag != 0 {
			return fmt.Errorf("%w: a tag requires a conflict avoidance mode other than none", ErrInvalidConfig)
		}
	}

	if c.MaxPartitions <= 0 || bits.OnesCount(uint(c.MaxPartitions)) != 1 || c.MaxPartitions > 1<<maxPartitionBits {
		return fmt.Errorf("%w: max partitions must be a power of two up to %d, got %d",
			ErrInvalidConfig, 1<<maxPartitionBits, c.MaxPartitions)
	}
	if c.WaitTime <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("%w: wait time and timeout must be positive", ErrInvalidConfig)
	}
	if err := c.Locker.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// partitionBits returns log2(MaxPartitions).
func (c Config) partitionBits() int {
	return bits.TrailingZeros(uint(c.MaxPartitions))
}
