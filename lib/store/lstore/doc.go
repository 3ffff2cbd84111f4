// Package lstore implements local, in-memory stores based on the store.IStore
// interface. Data is stored entirely in memory and is not persisted between
// process restarts.
//
// Two implementations are provided:
//
//   - NewLocalStore: a thin wrapper around any db.KCVDB with automatic write
//     index management. It is a single node, so every consistency level is
//     trivially key consistent. Suitable for single-process deployments and tests.
//
//   - NewReplicaSet: a set of independent engines that behave like the replicas
//     of an eventually consistent store spread over several datacenters. A view
//     created with Replica(i) routes ConsistencyLocalKey and ConsistencyDefault
//     operations to replica i only, while ConsistencyKey operations write to and
//     read from all replicas. Replicas can be partitioned with SetAvailable.
//     This makes hazards such as two datacenters sharing the same LOCAL_MANUAL
//     tag reproducible in tests.
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that
//     increments with each write operation and is passed to the engine as its
//     logical timestamp.
//
//   - Feature Detection: Before executing operations, the store checks if the
//     underlying db.KCVDB supports the requested feature. Unsupported operations
//     return store.RetCUnsupportedOperation.
//
// Thread Safety:
//
//	All operations are thread-safe. The underlying db.KCVDB implementation is
//	expected to provide its own thread safety for the storage operations.
//
// Usage Example:
//
//	factory := func() db.KCVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	err := store.Write(ctx, s, "row", []byte("col"), []byte("value"), store.ConsistencyKey)
package lstore
