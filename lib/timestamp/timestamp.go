package timestamp

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Units
// --------------------------------------------------------------------------

// Supported resolutions of a Provider.
const (
	Nano  = time.Nanosecond
	Micro = time.Microsecond
	Milli = time.Millisecond
)

// ParseUnit converts a unit name (nano, micro, milli) to its duration.
func ParseUnit(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nano", "ns", "nanosecond", "nanoseconds":
		return Nano, nil
	case "micro", "us", "µs", "microsecond", "microseconds":
		return Micro, nil
	case "milli", "ms", "millisecond", "milliseconds":
		return Milli, nil
	default:
		return 0, fmt.Errorf("invalid timestamp unit %q (expected one of: nano, micro, milli)", s)
	}
}

// UnitName returns the short name of a supported unit.
func UnitName(unit time.Duration) string {
	switch unit {
	case Nano:
		return "nano"
	case Micro:
		return "micro"
	case Milli:
		return "milli"
	default:
		return unit.String()
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Provider is the single source of time for lock timestamps, expiry
// computations and sleeping.
//
// Thread-safety: All implementations must be safe for concurrent use.
type Provider interface {
	// Now returns the current instant truncated to Unit. Successive calls
	// on the same provider never return the same or an earlier instant.
	Now() time.Time

	// Unit returns the fixed resolution of the provider.
	Unit() time.Duration

	// Ticks converts an instant to the number of units since the Unix epoch.
	Ticks(t time.Time) int64

	// Time converts a number of units since the Unix epoch back to an instant.
	Time(ticks int64) time.Time

	// SleepUntil blocks until Now() >= t and returns the instant observed at wake-up.
	// A cancelled context aborts the sleep and its error is returned.
	SleepUntil(ctx context.Context, t time.Time) (time.Time, error)

	// SleepFor blocks for d. A cancelled context aborts the sleep and its
	// error is returned.
	SleepFor(ctx context.Context, d time.Duration) error
}

// --------------------------------------------------------------------------
// Wall Clock Provider
// --------------------------------------------------------------------------

type clockImpl struct {
	unit time.Duration
	last atomic.Int64 // last ticks handed out by Now
}

// NewProvider creates a Provider backed by the system clock with the given
// resolution. If the wall clock stalls or steps backwards the provider keeps
// advancing by one unit per call so that Now stays strictly increasing.
func NewProvider(unit time.Duration) Provider {
	if unit <= 0 {
		unit = Micro
	}
	return &clockImpl{unit: unit}
}

func (c *clockImpl) Unit() time.Duration {
	return c.unit
}

func (c *clockImpl) Now() time.Time {
	for {
		wall := time.Now().UnixNano() / int64(c.unit)
		last := c.last.Load()
		next := wall
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return c.Time(next)
		}
	}
}

func (c *clockImpl) Ticks(t time.Time) int64 {
	return t.UnixNano() / int64(c.unit)
}

func (c *clockImpl) Time(ticks int64) time.Time {
	return time.Unix(0, ticks*int64(c.unit))
}

func (c *clockImpl) SleepUntil(ctx context.Context, t time.Time) (time.Time, error) {
	for {
		now := c.Now()
		if !now.Before(t) {
			return now, nil
		}
		if err := sleep(ctx, t.Sub(now)); err != nil {
			return now, err
		}
	}
}

func (c *clockImpl) SleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, d)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
