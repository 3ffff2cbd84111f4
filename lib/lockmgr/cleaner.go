package lockmgr

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

const cleanerQueueSize = 1024

// --------------------------------------------------------------------------
// Expired Claim Cleaner
// --------------------------------------------------------------------------

// claimCleaner deletes expired claims in the background. Verification
// queues a lock row together with a cutoff, and a single worker removes every
// claim column of that row written before the cutoff. A row is queued at most
// once at a time.
//
// Thread-safety: clean and close are safe for concurrent use.
type claimCleaner struct {
	store   store.IStore
	level   store.Consistency
	times   timestamp.Provider
	timeout time.Duration
	metrics *lockMetrics

	pending *xsync.MapOf[string, time.Time] // row -> cutoff
	queue   chan string
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     logger.ILogger
}

func newClaimCleaner(s store.IStore, conf Config, m *lockMetrics) *claimCleaner {
	c := &claimCleaner{
		store:   s,
		level:   conf.Consistency,
		times:   conf.Times,
		timeout: conf.CleanupTimeout,
		metrics: m,
		pending: xsync.NewMapOf[string, time.Time](),
		queue:   make(chan string, cleanerQueueSize),
		done:    make(chan struct{}),
		log:     logger.GetLogger("lockmgr"),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// clean schedules the deletion of claims in row older than cutoff.
// It never blocks. If the queue is full the request is dropped, the next
// verification of the row will queue it again.
func (c *claimCleaner) clean(row string, cutoff time.Time) {
	if _, loaded := c.pending.LoadOrStore(row, cutoff); loaded {
		return
	}
	select {
	case c.queue <- row:
	default:
		c.pending.Delete(row)
		c.log.Warningf("claim cleaner queue full, dropping cleanup of %q", row)
	}
}

func (c *claimCleaner) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case row := <-c.queue:
			cutoff, ok := c.pending.LoadAndDelete(row)
			if !ok {
				continue
			}
			if n, err := c.cleanRow(row, cutoff); err != nil {
				c.log.Warningf("failed to clean expired claims of %q: %v", row, err)
			} else if n > 0 {
				c.log.Debugf("removed %d expired claims of %q", n, row)
			}
		}
	}
}

// cleanRow deletes every claim of row written before cutoff and returns
// the number of deleted claims.
func (c *claimCleaner) cleanRow(row string, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	entries, err := c.store.GetSlice(ctx, row, db.SliceQuery{Start: claimSliceStart, End: claimSliceEnd}, c.level)
	if err != nil {
		return 0, err
	}

	var deletions [][]byte
	for _, e := range entries {
		ticks, _, err := parseClaimColumn(e.Column)
		if err != nil {
			continue
		}
		if c.times.Time(ticks).Before(cutoff) {
			deletions = append(deletions, e.Column)
		}
	}
	if len(deletions) == 0 {
		return 0, nil
	}

	c.metrics.inc("delete", "calls")
	if err := c.store.Mutate(ctx, row, nil, deletions, c.level); err != nil {
		c.metrics.inc("delete", "exceptions")
		return 0, err
	}
	return len(deletions), nil
}

// close stops the worker. Queued rows are discarded.
func (c *claimCleaner) close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}
