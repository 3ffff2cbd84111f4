// Package idauthority allocates disjoint blocks of numeric IDs per
// (namespace, partition) for many processes sharing one store.
//
// Every (namespace, partition, tag) has a counter row holding a high-water
// mark. To allocate a block the authority locks the counter with a
// lockmgr.ConsistentKeyLocker, revalidates the lock, reads the mark, writes
// mark + block size and releases the lock. The block is [mark, mark + size).
//
// Tags spread contention over several counters. An ID of a block is
// (counter << TagBits) + tag, so blocks of different tags never overlap.
// How tags are chosen is set by the ConflictAvoidanceMode:
//
//	None          no tag, all processes share one counter
//	LocalManual   fixed tag, local-key consistency (tags must be unique per process)
//	GlobalManual  fixed tag, key consistency
//	GlobalAuto    random tag per attempt, key consistency
//
// A namespace is exhausted when the next block would end beyond
// IDUpperBound >> TagBits. Exhaustion is permanent. Contention and backend
// failures are retried with exponential backoff until Config.Timeout or the
// context deadline.
//
// Usage Example:
//
//	sizer := idauthority.NewStaticSizer(1000, 1<<40)
//	auth, err := idauthority.NewConsistentKeyIDAuthority(s, sizer, idauthority.Config{
//	    Mode: idauthority.GlobalAuto,
//	})
//	if err != nil {
//	    // Handle error
//	}
//	defer auth.Close()
//
//	block, err := auth.GetIDBlock(ctx, "vertex", 0)
//	for i := int64(0); i < block.NumIDs(); i++ {
//	    id := block.ID(i)
//	    // ...
//	}
package idauthority
