package lstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

// --------------------------------------------------------------------------
// Replica Set (eventual consistency simulator)
// --------------------------------------------------------------------------

// ReplicaSet is a group of independent in-process replicas of one logical store.
// Each replica stands for a datacenter. Replica(i) returns the store as seen by a
// process located at replica i:
//
//   - ConsistencyKey writes are applied to every replica and reads merge every
//     replica, so they behave like a cluster wide quorum.
//   - ConsistencyLocalKey and ConsistencyDefault only touch the local replica.
//     Writes are never propagated, which makes the divergence between
//     datacenters visible to tests.
//
// A replica can be marked unavailable to simulate a partition. Operations that
// need an unavailable replica fail with store.RetCTemporary.
//
// Thread-safety: All methods are safe for concurrent use.
type ReplicaSet struct {
	replicas  []db.KCVDB
	available []atomic.Bool
	index     atomic.Uint64

	// global serializes cluster wide operations so that key-consistent
	// writes appear atomic to key-consistent readers
	global sync.RWMutex
}

// NewReplicaSet creates n replicas using factory for each replica's engine.
func NewReplicaSet(n int, factory store.DBFactory) *ReplicaSet {
	if n < 1 {
		n = 1
	}
	rs := &ReplicaSet{
		replicas:  make([]db.KCVDB, n),
		available: make([]atomic.Bool, n),
	}
	for i := 0; i < n; i++ {
		rs.replicas[i] = factory()
		rs.available[i].Store(true)
	}
	return rs
}

// Size returns the number of replicas.
func (rs *ReplicaSet) Size() int {
	return len(rs.replicas)
}

// Replica returns the store as seen from replica i.
func (rs *ReplicaSet) Replica(i int) store.IStore {
	if i < 0 || i >= len(rs.replicas) {
		panic(fmt.Sprintf("replica index %d out of range [0,%d)", i, len(rs.replicas)))
	}
	return &replicaView{set: rs, local: i}
}

// SetAvailable marks replica i as reachable or partitioned.
func (rs *ReplicaSet) SetAvailable(i int, ok bool) {
	rs.available[i].Store(ok)
}

// Close closes every replica.
func (rs *ReplicaSet) Close() error {
	var firstErr error
	for _, r := range rs.replicas {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (rs *ReplicaSet) checkAvailable(replicas ...int) error {
	for _, i := range replicas {
		if !rs.available[i].Load() {
			return store.Errorf(store.RetCTemporary, "replica %d is unavailable", i)
		}
	}
	return nil
}

func (rs *ReplicaSet) all() []int {
	ids := make([]int, len(rs.replicas))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// --------------------------------------------------------------------------
// Replica View (implements store.IStore)
// --------------------------------------------------------------------------

type replicaView struct {
	set   *ReplicaSet
	local int
}

func (v *replicaView) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, level store.Consistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx := v.set.index.Add(1)

	if level != store.ConsistencyKey {
		if err := v.set.checkAvailable(v.local); err != nil {
			return err
		}
		v.set.replicas[v.local].Mutate(row, additions, deletions, idx)
		return nil
	}

	v.set.global.Lock()
	defer v.set.global.Unlock()

	if err := v.set.checkAvailable(v.set.all()...); err != nil {
		return err
	}
	for _, r := range v.set.replicas {
		r.Mutate(row, additions, deletions, idx)
	}
	return nil
}

func (v *replicaView) GetSlice(ctx context.Context, row string, q db.SliceQuery, level store.Consistency) ([]db.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if level != store.ConsistencyKey {
		if err := v.set.checkAvailable(v.local); err != nil {
			return nil, err
		}
		return v.set.replicas[v.local].GetSlice(row, q), nil
	}

	v.set.global.RLock()
	defer v.set.global.RUnlock()

	if err := v.set.checkAvailable(v.set.all()...); err != nil {
		return nil, err
	}

	// merge all replicas, the local replica wins on conflicting values
	merged := make(map[string]db.Entry)
	order := append([]int{v.local}, v.set.all()...)
	for _, i := range order {
		for _, e := range v.set.replicas[i].GetSlice(row, db.SliceQuery{Start: q.Start, End: q.End}) {
			if _, ok := merged[string(e.Column)]; !ok {
				merged[string(e.Column)] = e
			}
		}
	}

	result := make([]db.Entry, 0, len(merged))
	for _, e := range merged {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Column, result[j].Column) < 0
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (v *replicaView) Features() store.Features {
	return store.Features{
		Distributed:        len(v.set.replicas) > 1,
		KeyConsistent:      true,
		LocalKeyConsistent: true,
	}
}

// Close is a no-op for a view, use ReplicaSet.Close.
func (v *replicaView) Close() error {
	return nil
}
