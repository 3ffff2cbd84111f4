package lockmgr

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// lockMetrics publishes counters of store operations per locker group.
// A nil *lockMetrics records nothing.
type lockMetrics struct {
	group string
}

func newLockMetrics(group string) *lockMetrics {
	if group == "" {
		return nil
	}
	return &lockMetrics{group: group}
}

// inc increments dlock_locks_total for op (write, check, delete) and
// result (calls, exceptions).
func (m *lockMetrics) inc(op, result string) {
	if m == nil {
		return
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_locks_total{group=%q,op=%q,result=%q}`, m.group, op, result)).Inc()
}

func (m *lockMetrics) acquired(start time.Time) {
	if m == nil {
		return
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dlock_lock_acquire_seconds{group=%q}`, m.group)).Update(time.Since(start).Seconds())
}
