// Package redistore implements store.IStore on top of Redis.
//
// Data Layout:
//
//	Every row is stored in two keys sharing the configured prefix:
//
//	- <prefix>d:<row> is a hash mapping each column to its value.
//	- <prefix>i:<row> is a sorted set holding every column with score 0. Redis
//	  orders equal-score members byte-wise, so ZRANGEBYLEX answers column range
//	  queries in the order required by store.IStore.GetSlice.
//
//	Mutations update both keys inside one MULTI/EXEC transaction. Slices are read
//	by a Lua script, so the index and the hash are always observed together.
//
// Consistency:
//
//	All commands are sent to the primary the client is connected to, which makes
//	every level key consistent as long as the primary does not fail over. For
//	ConsistencyKey writes the store can additionally wait for replicas with WAIT
//	(Options.MinReplicas), so that an acknowledged claim survives a failover.
//
// Errors:
//
//	Connection problems and missing replica acknowledgements are reported as
//	store.RetCTemporary, errors returned by Redis itself as store.RetCInternalError.
//	A done context is returned as the wrapped context error.
//
// Usage Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redistore.NewRedisStore(client, redistore.Options{Prefix: "dlock:"})
//	defer s.Close()
package redistore
