package idauthority

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

// hwmColumn is the column holding the high-water mark of a counter row.
var hwmColumn = []byte("hwm")

// IDAuthority hands out disjoint ID blocks per (namespace, partition).
type IDAuthority interface {
	// GetIDBlock allocates the next block of namespace in partition. No two
	// calls, from any process sharing the store, return overlapping blocks
	// unless two LocalManual processes share a tag.
	//
	// Errors: ErrNamespaceExhausted, ErrTimeout, ErrInvalidConfig,
	// ErrInvalidPartition, ErrCorruptCounter, a lockmgr.ErrBackendUnavailable
	// wrapping lockmgr.ErrPermanentBackend or the (wrapped) context error.
	GetIDBlock(ctx context.Context, namespace string, partition int) (IDBlock, error)

	// Close releases the resources of the authority. The store is not closed.
	Close() error
}

// ConsistentKeyIDAuthority allocates blocks by advancing a high-water mark
// per (namespace, partition, tag) while holding a ConsistentKeyLocker lock on it.
//
// Thread-safety: All methods are safe for concurrent use.
type ConsistentKeyIDAuthority struct {
	store  store.IStore
	sizer  IDBlockSizer
	conf   Config
	level  store.Consistency
	locker *lockmgr.ConsistentKeyLocker
	times  timestamp.Provider
	log    logger.ILogger
}

var _ IDAuthority = (*ConsistentKeyIDAuthority)(nil)

// NewConsistentKeyIDAuthority creates an authority on s. The store must be
// key consistent, or local-key consistent for LocalManual.
func NewConsistentKeyIDAuthority(s store.IStore, sizer IDBlockSizer, conf Config) (*ConsistentKeyIDAuthority, error) {
	conf = conf.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if sizer == nil {
		return nil, fmt.Errorf("%w: missing block sizer", ErrInvalidConfig)
	}

	locker, err := lockmgr.NewConsistentKeyLocker(s, conf.Locker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &ConsistentKeyIDAuthority{
		store:  s,
		sizer:  sizer,
		conf:   conf,
		level:  conf.Mode.Consistency(),
		locker: locker,
		times:  locker.Config().Times,
		log:    logger.GetLogger("idauthority"),
	}, nil
}

// Config returns the effective configuration.
func (a *ConsistentKeyIDAuthority) Config() Config {
	return a.conf
}

// Locker returns the locker guarding the counters.
func (a *ConsistentKeyIDAuthority) Locker() *lockmgr.ConsistentKeyLocker {
	return a.locker
}

func (a *ConsistentKeyIDAuthority) Close() error {
	return a.locker.Close()
}

// --------------------------------------------------------------------------
// Allocation
// --------------------------------------------------------------------------

func (a *ConsistentKeyIDAuthority) GetIDBlock(ctx context.Context, namespace string, partition int) (IDBlock, error) {
	if partition < 0 || partition >= a.conf.MaxPartitions {
		return IDBlock{}, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidPartition, partition, a.conf.MaxPartitions)
	}

	blockSize := a.sizer.BlockSize(namespace)
	bound := a.sizer.IDUpperBound(namespace) >> a.conf.TagBits
	if blockSize <= 0 || blockSize > bound {
		return IDBlock{}, fmt.Errorf("%w: block size %d does not fit below bound %d of namespace %s with %d tag bits",
			ErrInvalidConfig, blockSize, bound, namespace, a.conf.TagBits)
	}

	ctx, cancel := context.WithTimeout(ctx, a.conf.Timeout)
	defer cancel()

	holder := lockmgr.Holder("idblock-" + uuid.NewString())
	backoff := a.conf.WaitTime
	maxBackoff := 32 * a.conf.WaitTime
	exhausted := make(map[int]struct{})
	var lastErr error

	for attempt := 1; ; attempt++ {
		tag := a.selectTag(exhausted)
		block, err := a.allocate(ctx, holder, namespace, partition, tag, blockSize, bound)

		var pause time.Duration
		switch {
		case err == nil:
			a.count("success")
			a.log.Debugf("allocated id block %s (attempt %d)", block, attempt)
			return block, nil

		case errors.Is(err, errTagExhausted):
			if a.conf.Mode != GlobalAuto {
				a.count("exhausted")
				return IDBlock{}, fmt.Errorf("%w: %s/%d reached upper bound %d",
					ErrNamespaceExhausted, namespace, partition, bound)
			}
			exhausted[tag] = struct{}{}
			if len(exhausted) >= a.conf.RandomTagRetries {
				a.count("exhausted")
				return IDBlock{}, fmt.Errorf("%w: exhausted %d tags on %s/%d",
					ErrNamespaceExhausted, len(exhausted), namespace, partition)
			}
			a.log.Warningf("exhausted tag %d on %s/%d (%d/%d)", tag, namespace, partition, len(exhausted), a.conf.RandomTagRetries)
			continue

		case ctx.Err() != nil:
			if lastErr == nil {
				lastErr = err
			}
			return IDBlock{}, a.deadline(ctx, namespace, partition, lastErr)

		case errors.Is(err, lockmgr.ErrPermanentBackend):
			a.count("error")
			a.log.Errorf("permanent backend failure on %s/%d: %v", namespace, partition, err)
			return IDBlock{}, err

		case errors.Is(err, lockmgr.ErrLocalContention):
			pause = a.conf.WaitTime / 10

		case lockmgr.IsContention(err), errors.Is(err, lockmgr.ErrExpiredLock), errors.Is(err, lockmgr.ErrBackendUnavailable):
			backoff = min(2*backoff, maxBackoff)
			pause = backoff
			a.log.Warningf("failed to allocate id block on %s/%d, retrying in %s: %v", namespace, partition, backoff, err)

		default:
			a.count("error")
			return IDBlock{}, err
		}

		lastErr = err
		if err := a.times.SleepFor(ctx, pause); err != nil {
			return IDBlock{}, a.deadline(ctx, namespace, partition, lastErr)
		}
	}
}

// allocate runs one attempt on the counter of tag.
func (a *ConsistentKeyIDAuthority) allocate(ctx context.Context, holder lockmgr.Holder, namespace string, partition, tag int, blockSize, bound int64) (IDBlock, error) {
	key := lockmgr.LockKey{Row: a.counterRow(namespace, partition, tag), Column: string(hwmColumn)}

	if _, err := a.locker.Acquire(ctx, holder, key); err != nil {
		return IDBlock{}, err
	}
	defer func() {
		// release even if ctx is done, bounded by the locker cleanup timeout
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.conf.Locker.CleanupTimeout)
		defer cancel()
		if err := a.locker.Release(rctx, holder, key); err != nil {
			a.log.Warningf("failed to release counter lock %s: %v", key, err)
		}
	}()

	// the mark is advanced irreversibly, so the lock is revalidated first
	if err := a.locker.Check(ctx, holder, key); err != nil {
		return IDBlock{}, err
	}

	start, err := a.readMark(ctx, key.Row)
	if err != nil {
		return IDBlock{}, err
	}
	end := start + blockSize
	if end > bound {
		a.log.Infof("id overflow on %s/%d with tag %d: mark %d, block size %d, bound %d",
			namespace, partition, tag, start, blockSize, bound)
		return IDBlock{}, errTagExhausted
	}

	if err := store.Write(ctx, a.store, key.Row, hwmColumn, encodeMark(end), a.level); err != nil {
		return IDBlock{}, markError("write high-water mark of "+key.String(), err)
	}

	return IDBlock{
		Namespace: namespace,
		Partition: partition,
		Start:     start,
		End:       end,
		Tag:       tag,
		TagBits:   a.conf.TagBits,
	}, nil
}

// readMark returns the current high-water mark of a counter row, 0 if unset.
func (a *ConsistentKeyIDAuthority) readMark(ctx context.Context, row string) (int64, error) {
	val, ok, err := store.ReadColumn(ctx, a.store, row, hwmColumn, a.level)
	if err != nil {
		return 0, markError("read high-water mark", err)
	}
	if !ok {
		return 0, nil
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: high-water mark in %q has %d bytes", ErrCorruptCounter, row, len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// markError classifies a store failure on the counter like the locker does
// for its claims.
func markError(op string, err error) error {
	if store.IsPermanent(err) {
		return fmt.Errorf("%w: %w: %s: %v", lockmgr.ErrBackendUnavailable, lockmgr.ErrPermanentBackend, op, err)
	}
	return fmt.Errorf("%w: %s: %v", lockmgr.ErrBackendUnavailable, op, err)
}

func encodeMark(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// selectTag returns the tag of the next attempt. GlobalAuto picks uniformly
// among the tags not yet found exhausted by this call.
func (a *ConsistentKeyIDAuthority) selectTag(exhausted map[int]struct{}) int {
	if !a.conf.Mode.Tagged() {
		return 0
	}
	switch a.conf.Mode {
	case GlobalAuto:
		tags := 1 << a.conf.TagBits
		n := rand.Intn(tags - len(exhausted))
		for tag := 0; tag < tags; tag++ {
			if _, ok := exhausted[tag]; ok {
				continue
			}
			if n == 0 {
				return tag
			}
			n--
		}
		return 0
	default:
		return a.conf.Tag
	}
}

// counterRow returns the row of the counter of (namespace, partition, tag):
// partition in the high bits and tag in the low bits of a big-endian uint32,
// followed by the namespace.
func (a *ConsistentKeyIDAuthority) counterRow(namespace string, partition, tag int) string {
	var prefix uint32
	if pb := a.conf.partitionBits(); pb > 0 {
		prefix = uint32(partition) << (32 - pb)
	}
	prefix += uint32(tag)

	b := make([]byte, 4, 4+len(namespace))
	binary.BigEndian.PutUint32(b, prefix)
	return string(append(b, namespace...))
}

func (a *ConsistentKeyIDAuthority) deadline(ctx context.Context, namespace string, partition int, lastErr error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.count("timeout")
		if lastErr == nil {
			return fmt.Errorf("%w: %s/%d", ErrTimeout, namespace, partition)
		}
		return fmt.Errorf("%w: %s/%d: %w", ErrTimeout, namespace, partition, lastErr)
	}
	a.count("error")
	return fmt.Errorf("get id block %s/%d: %w", namespace, partition, ctx.Err())
}

func (a *ConsistentKeyIDAuthority) count(result string) {
	if a.conf.MetricsGroup == "" {
		return
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_idblocks_total{group=%q,result=%q}`, a.conf.MetricsGroup, result)).Inc()
}
