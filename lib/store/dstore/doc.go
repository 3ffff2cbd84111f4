// Package dstore implements the RAFT backed store.IStore of dLock. Every
// replica of a Dragonboat shard holds a db.KCVDB engine, and every row
// mutation is committed through the RAFT log before it is applied. The store
// is therefore key consistent on every level, which is what the
// ConsistentKeyLocker needs for its write-then-verify protocol.
//
// Components:
//
//   - storeImpl (store.go): the client side. It encodes mutations as
//     internal.Command, proposes them with SyncPropose and issues reads as
//     internal.Query.
//
//   - KCVStateMachine (statemachine.go): a Dragonboat IConcurrentStateMachine
//     that decodes committed commands and applies them to its engine, using
//     the RAFT log index as the write index of the engine.
//
// Reads:
//
//	The requested store.Consistency selects the read path:
//
//	- ConsistencyKey and ConsistencyLocalKey use SyncRead (ReadIndex), so
//	  the read observes every mutation committed before it started. Lock
//	  claims read back during verification always take this path.
//
//	- ConsistencyDefault and GetDBInfo use StaleRead on the local replica.
//
// Errors:
//
//	ErrSystemBusy is retried up to five times with a short pause. Timeouts,
//	busy shards and shards without a leader are reported as
//	store.RetCTemporary so the lock manager backs off and retries. A done
//	context is returned as the wrapped context error.
//
// Snapshots:
//
//	Snapshots are fuzzy and delegate to the Save and Load methods of the
//	engine. A restarted replica restores the latest snapshot and replays the
//	log entries committed after it.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KCVDB { return maple.NewMapleDB(nil) }
//	err = nh.StartConcurrentReplica(members, false,
//	    dstore.CreateStateMachineFactory(dbFactory), shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//	locker, err := lockmgr.NewConsistentKeyLocker(s, lockmgr.DefaultConfig())
//
// A shard needs a majority of its replicas. Deploy 3 or 5 of them; lock
// latency is dominated by the commit round trip.
package dstore
