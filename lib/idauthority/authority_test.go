package idauthority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mapleFactory() db.KCVDB {
	return maple.NewMapleDB(nil)
}

func newTestClock() *timestamp.ManualProvider {
	return timestamp.NewManualProvider(time.Unix(1_700_000_000, 0), timestamp.Micro)
}

func lockerConfig(rid string, times timestamp.Provider) lockmgr.Config {
	return lockmgr.Config{
		Rid:        []byte(rid),
		Expire:     10 * time.Second,
		Wait:       5 * time.Millisecond,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
		Times:      times,
	}
}

func newTestAuthority(t *testing.T, s store.IStore, sizer IDBlockSizer, conf Config) *ConsistentKeyIDAuthority {
	t.Helper()
	a, err := NewConsistentKeyIDAuthority(s, sizer, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func requireDisjoint(t *testing.T, blocks []IDBlock) {
	t.Helper()
	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			require.Falsef(t, blocks[i].Overlaps(blocks[j]), "blocks %s and %s overlap", blocks[i], blocks[j])
		}
	}
}

type failingStore struct {
	store.IStore
}

func (failingStore) Mutate(context.Context, string, []db.Entry, [][]byte, store.Consistency) error {
	return store.NewError(store.RetCTemporary, "write timeout")
}

// rejectingStore fails every Mutate for which reject returns true with a
// permanent store error.
type rejectingStore struct {
	store.IStore
	reject func(additions []db.Entry) bool
}

func (r rejectingStore) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, level store.Consistency) error {
	if r.reject(additions) {
		return store.NewError(store.RetCInternalError, "table dlock_kcv does not exist")
	}
	return r.IStore.Mutate(ctx, row, additions, deletions, level)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestExhaustion(t *testing.T) {
	ctx := context.Background()
	sizer := NewStaticSizer(1000, 5000)
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), sizer, Config{
		Mode:   None,
		Locker: lockerConfig("a", newTestClock()),
	})

	for i := int64(0); i < 5; i++ {
		block, err := a.GetIDBlock(ctx, "edges", 0)
		if err != nil {
			t.Fatalf("GetIDBlock() #%d error = %v", i+1, err)
		}
		if block.Start != i*1000 || block.End != (i+1)*1000 {
			t.Errorf("Block #%d = [%d,%d), want [%d,%d)", i+1, block.Start, block.End, i*1000, (i+1)*1000)
		}
		if block.ID(0) != block.Start || block.ID(999) != block.End-1 {
			t.Errorf("Untagged IDs must equal counter values, got %d..%d", block.ID(0), block.ID(999))
		}
	}

	_, err := a.GetIDBlock(ctx, "edges", 0)
	if !errors.Is(err, ErrNamespaceExhausted) {
		t.Fatalf("Expected ErrNamespaceExhausted, got %v", err)
	}

	// exhaustion is permanent
	if _, err := a.GetIDBlock(ctx, "edges", 0); !errors.Is(err, ErrNamespaceExhausted) {
		t.Errorf("Expected ErrNamespaceExhausted again, got %v", err)
	}
}

func TestNamespacesAndPartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	sizer := NewStaticSizer(100, 1<<20).With("small", 10, 160)
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), sizer, Config{
		Mode:   GlobalManual,
		Tag:    3,
		Locker: lockerConfig("a", newTestClock()),
	})

	tests := []struct {
		namespace string
		partition int
		start     int64
		end       int64
	}{
		{"vertex", 0, 0, 100},
		{"vertex", 0, 100, 200},
		{"vertex", 1, 0, 100},
		{"edge", 0, 0, 100},
		{"small", 0, 0, 10},
	}

	for _, tt := range tests {
		block, err := a.GetIDBlock(ctx, tt.namespace, tt.partition)
		if err != nil {
			t.Fatalf("GetIDBlock(%s, %d) error = %v", tt.namespace, tt.partition, err)
		}
		if block.Start != tt.start || block.End != tt.end || block.Tag != 3 || block.TagBits != DefaultTagBits {
			t.Errorf("GetIDBlock(%s, %d) = %s, want [%d,%d) with tag 3", tt.namespace, tt.partition, block, tt.start, tt.end)
		}
	}

	// 160 >> 4 leaves room for a single block of 10
	if _, err := a.GetIDBlock(ctx, "small", 0); !errors.Is(err, ErrNamespaceExhausted) {
		t.Errorf("Expected ErrNamespaceExhausted, got %v", err)
	}
}

func TestInvalidRequests(t *testing.T) {
	ctx := context.Background()
	sizer := NewStaticSizer(100, 1<<20).With("tiny", 100, 50).With("zero", 0, 1000)
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), sizer, Config{
		Mode:          GlobalAuto,
		MaxPartitions: 4,
		Locker:        lockerConfig("a", newTestClock()),
	})

	if _, err := a.GetIDBlock(ctx, "vertex", 4); !errors.Is(err, ErrInvalidPartition) {
		t.Errorf("Expected ErrInvalidPartition, got %v", err)
	}
	if _, err := a.GetIDBlock(ctx, "vertex", -1); !errors.Is(err, ErrInvalidPartition) {
		t.Errorf("Expected ErrInvalidPartition, got %v", err)
	}
	if _, err := a.GetIDBlock(ctx, "tiny", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for block size above bound, got %v", err)
	}
	if _, err := a.GetIDBlock(ctx, "zero", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for empty blocks, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		conf    Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"global auto defaults", Config{Mode: GlobalAuto}, false},
		{"tag too wide", Config{Mode: GlobalManual, Tag: 16}, true},
		{"negative tag", Config{Mode: LocalManual, Tag: -1}, true},
		{"tag without mode", Config{Tag: 1}, true},
		{"too many tag bits", Config{Mode: GlobalManual, TagBits: 17}, true},
		{"retries exceed tags", Config{Mode: GlobalAuto, TagBits: 2, RandomTagRetries: 4}, true},
		{"partitions not power of two", Config{MaxPartitions: 3}, true},
		{"unknown mode", Config{Mode: ConflictAvoidanceMode(7)}, true},
		{"invalid locker", Config{Locker: lockmgr.Config{Wait: time.Hour}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.WithDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestModeDefaults(t *testing.T) {
	none := Config{Mode: None, TagBits: 8}.WithDefaults()
	if none.TagBits != 0 {
		t.Errorf("Mode none must not use tag bits, got %d", none.TagBits)
	}
	if none.Locker.Consistency != store.ConsistencyKey {
		t.Errorf("Mode none must lock with key consistency, got %s", none.Locker.Consistency)
	}

	local := Config{Mode: LocalManual, Tag: 1}.WithDefaults()
	if local.TagBits != DefaultTagBits || local.Locker.Consistency != store.ConsistencyLocalKey {
		t.Errorf("Unexpected local manual defaults: bits %d, consistency %s", local.TagBits, local.Locker.Consistency)
	}
}

func TestLocalManualDuplicateTag(t *testing.T) {
	tests := []struct {
		mode        ConflictAvoidanceMode
		wantOverlap bool
	}{
		{LocalManual, true},
		{GlobalManual, false},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			ctx := context.Background()
			clk := newTestClock()
			rs := lstore.NewReplicaSet(2, mapleFactory)
			defer rs.Close()

			sizer := NewStaticSizer(1000, 1<<40)
			// two datacenters, misconfigured with the same tag
			a := newTestAuthority(t, rs.Replica(0), sizer, Config{Mode: tt.mode, Tag: 1, Locker: lockerConfig("dc-a", clk)})
			b := newTestAuthority(t, rs.Replica(1), sizer, Config{Mode: tt.mode, Tag: 1, Locker: lockerConfig("dc-b", clk)})

			blockA, err := a.GetIDBlock(ctx, "vertex", 0)
			require.NoError(t, err)
			blockB, err := b.GetIDBlock(ctx, "vertex", 0)
			require.NoError(t, err)

			require.Equal(t, tt.wantOverlap, blockA.Overlaps(blockB), "blocks %s and %s", blockA, blockB)
			if tt.wantOverlap {
				require.Equal(t, blockA.ID(0), blockB.ID(0))
			}
		})
	}
}

func TestGlobalAutoExhaustsTags(t *testing.T) {
	ctx := context.Background()
	// 40 >> 2 = 10, so every tag holds exactly one block
	sizer := NewStaticSizer(10, 40)
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), sizer, Config{
		Mode:             GlobalAuto,
		TagBits:          2,
		RandomTagRetries: 3,
		Locker:           lockerConfig("a", newTestClock()),
	})

	var blocks []IDBlock
	var err error
	for i := 0; i < 10; i++ {
		var block IDBlock
		block, err = a.GetIDBlock(ctx, "vertex", 0)
		if err != nil {
			break
		}
		blocks = append(blocks, block)
	}

	require.ErrorIs(t, err, ErrNamespaceExhausted)
	require.GreaterOrEqual(t, len(blocks), 3, "fewer blocks than guaranteed by the tag space")
	require.LessOrEqual(t, len(blocks), 4)

	tags := make(map[int]bool)
	for _, b := range blocks {
		require.Equal(t, int64(0), b.Start)
		require.False(t, tags[b.Tag], "tag %d used twice", b.Tag)
		tags[b.Tag] = true
	}
	requireDisjoint(t, blocks)
}

func TestConcurrentAllocationsAreDisjoint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent allocation test in short mode")
	}

	tests := []struct {
		name string
		conf func(i int) Config
	}{
		{"none", func(int) Config { return Config{Mode: None} }},
		{"global manual shared tag", func(int) Config { return Config{Mode: GlobalManual, Tag: 2} }},
		{"local manual unique tags", func(i int) Config { return Config{Mode: LocalManual, Tag: i} }},
		{"global auto", func(int) Config { return Config{Mode: GlobalAuto} }},
	}

	const instances = 4
	const perInstance = 5

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := lstore.NewLocalStore(mapleFactory)
			sizer := NewStaticSizer(100, 1<<40)

			results := make([][]IDBlock, instances)
			errs := make([]error, instances)
			var wg sync.WaitGroup

			for i := 0; i < instances; i++ {
				conf := tt.conf(i)
				conf.WaitTime = 2 * time.Millisecond
				conf.Timeout = 30 * time.Second
				conf.Locker = lockerConfig(fmt.Sprintf("instance-%d", i), timestamp.NewProvider(timestamp.Micro))
				a := newTestAuthority(t, s, sizer, conf)

				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for n := 0; n < perInstance; n++ {
						block, err := a.GetIDBlock(context.Background(), "vertex", 1)
						if err != nil {
							errs[i] = err
							return
						}
						results[i] = append(results[i], block)
					}
				}(i)
			}
			wg.Wait()

			var all []IDBlock
			for i := 0; i < instances; i++ {
				require.NoError(t, errs[i])
				require.Len(t, results[i], perInstance)

				// monotone per counter
				last := make(map[int]int64)
				for _, b := range results[i] {
					require.GreaterOrEqual(t, b.Start, last[b.Tag])
					last[b.Tag] = b.End
				}
				all = append(all, results[i]...)
			}
			requireDisjoint(t, all)
		})
	}
}

func TestTimeout(t *testing.T) {
	s := failingStore{lstore.NewLocalStore(mapleFactory)}
	conf := Config{
		Mode:     GlobalManual,
		WaitTime: 5 * time.Millisecond,
		Timeout:  150 * time.Millisecond,
		Locker:   lockerConfig("a", timestamp.NewProvider(timestamp.Micro)),
	}
	a := newTestAuthority(t, s, NewStaticSizer(100, 1<<40), conf)

	begin := time.Now()
	_, err := a.GetIDBlock(context.Background(), "vertex", 0)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, lockmgr.ErrBackendUnavailable)
	require.NotErrorIs(t, err, ErrNamespaceExhausted)
	require.Less(t, time.Since(begin), 5*time.Second)
}

func TestPermanentBackendFailure(t *testing.T) {
	tests := []struct {
		name   string
		reject func(additions []db.Entry) bool
	}{
		{"lock claim write", func([]db.Entry) bool { return true }},
		{"high-water mark write", func(additions []db.Entry) bool {
			return len(additions) == 1 && string(additions[0].Column) == string(hwmColumn)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rejectingStore{IStore: lstore.NewLocalStore(mapleFactory), reject: tt.reject}
			a := newTestAuthority(t, s, NewStaticSizer(100, 1<<40), Config{
				Mode:   GlobalManual,
				Locker: lockerConfig("a", timestamp.NewProvider(timestamp.Micro)),
			})

			// the default timeout is a minute, a permanent failure must not wait for it
			begin := time.Now()
			_, err := a.GetIDBlock(context.Background(), "vertex", 0)
			require.ErrorIs(t, err, lockmgr.ErrBackendUnavailable)
			require.ErrorIs(t, err, lockmgr.ErrPermanentBackend)
			require.NotErrorIs(t, err, ErrTimeout)
			require.Less(t, time.Since(begin), 5*time.Second)
		})
	}
}

func TestCorruptCounter(t *testing.T) {
	ctx := context.Background()
	s := lstore.NewLocalStore(mapleFactory)
	a := newTestAuthority(t, s, NewStaticSizer(100, 1<<40), Config{
		Mode:   None,
		Locker: lockerConfig("a", newTestClock()),
	})

	row := a.counterRow("vertex", 0, 0)
	require.NoError(t, store.Write(ctx, s, row, hwmColumn, []byte{1, 2, 3}, store.ConsistencyKey))

	_, err := a.GetIDBlock(ctx, "vertex", 0)
	require.ErrorIs(t, err, ErrCorruptCounter)
	require.NotErrorIs(t, err, ErrTimeout)

	// other partitions are unaffected
	block, err := a.GetIDBlock(ctx, "vertex", 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), block.Start)
}

func TestCancelled(t *testing.T) {
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), NewStaticSizer(100, 1<<40), Config{
		Locker: lockerConfig("a", timestamp.NewProvider(timestamp.Micro)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.GetIDBlock(ctx, "vertex", 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestAuthorityMetrics(t *testing.T) {
	a := newTestAuthority(t, lstore.NewLocalStore(mapleFactory), NewStaticSizer(10, 20), Config{
		MetricsGroup: "ids-test",
		Locker:       lockerConfig("a", newTestClock()),
	})

	ctx := context.Background()
	_, _ = a.GetIDBlock(ctx, "vertex", 0)
	_, _ = a.GetIDBlock(ctx, "vertex", 0)
	_, _ = a.GetIDBlock(ctx, "vertex", 0)

	success := metrics.GetOrCreateCounter(`dlock_idblocks_total{group="ids-test",result="success"}`).Get()
	exhausted := metrics.GetOrCreateCounter(`dlock_idblocks_total{group="ids-test",result="exhausted"}`).Get()
	require.Equal(t, uint64(2), success)
	require.Equal(t, uint64(1), exhausted)
}
