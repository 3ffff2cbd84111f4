// Package store provides the storage capability set the lock and ID allocation
// layers consume: per-row atomic mutations and ordered column range reads on
// an eventually consistent key-column-value backend, with a consistency level
// chosen per call.
//
// Key Components:
//
//   - IStore Interface: Mutate (additions and deletions of one row together) and
//     GetSlice (ordered range read). Every call names a Consistency level:
//     ConsistencyDefault, ConsistencyKey (key-consistent across the cluster) or
//     ConsistencyLocalKey (key-consistent within the local replica or datacenter).
//     Features reports which of these the backend honours.
//
//   - Error System: A structured error reporting mechanism using typed return
//     codes. RetCTemporary marks failures that may succeed on retry (timeouts,
//     busy leaders, lost connections); IsTemporary tests for it.
//
//   - DBFactory: A function type that abstracts the creation of underlying
//     db.KCVDB instances for the stores that embed an engine.
//
// Implementations:
//
//   - Local Store (lstore): wraps a db.KCVDB directly. Also provides ReplicaSet,
//     a set of independent replicas that simulates eventual consistency and the
//     difference between ConsistencyKey and ConsistencyLocalKey.
//
//   - Distributed Store (dstore): Raft replication with Dragonboat. Key-consistent
//     reads are linearizable (SyncRead), default reads may be stale (StaleRead).
//
//   - Redis Store (redistore): a hash per row plus a lexicographically ordered
//     sorted set as column index.
//
//   - SQL Store (sqlstore): one table (row_key, col, val) for MySQL or PostgreSQL.
//
// The testing package (github.com/ValentinKolb/dLock/lib/store/testing) provides
// a conformance suite that every implementation runs.
package store
