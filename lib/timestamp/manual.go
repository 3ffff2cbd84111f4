package timestamp

import (
	"context"
	"sync"
	"time"
)

// ManualProvider is a virtual clock for tests. Sleeping does not block,
// it moves the clock forward to the requested instant instead.
//
// Thread-safety: All methods are safe for concurrent use.
type ManualProvider struct {
	mu      sync.Mutex
	unit    time.Duration
	current time.Time
}

// NewManualProvider creates a virtual clock starting at start.
func NewManualProvider(start time.Time, unit time.Duration) *ManualProvider {
	if unit <= 0 {
		unit = Micro
	}
	return &ManualProvider{
		unit:    unit,
		current: start.Truncate(unit),
	}
}

// Now advances the clock by one unit and returns the new instant.
func (m *ManualProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(m.unit)
	return m.current
}

// Peek returns the current instant without advancing the clock.
func (m *ManualProvider) Peek() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d.
func (m *ManualProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.current = m.current.Add(d).Truncate(m.unit)
	}
}

// Set moves the clock to t if t is later than the current instant.
func (m *ManualProvider) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.current) {
		m.current = t.Truncate(m.unit)
	}
}

func (m *ManualProvider) Unit() time.Duration {
	return m.unit
}

func (m *ManualProvider) Ticks(t time.Time) int64 {
	return t.UnixNano() / int64(m.unit)
}

func (m *ManualProvider) Time(ticks int64) time.Time {
	return time.Unix(0, ticks*int64(m.unit))
}

func (m *ManualProvider) SleepUntil(ctx context.Context, t time.Time) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return m.Peek(), err
	}
	m.Set(t)
	return m.Now(), nil
}

func (m *ManualProvider) SleepFor(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}
