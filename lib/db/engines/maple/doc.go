// Package maple implements a sharded in-memory key-column-value database
// (KCVDB). It provides a complete implementation of the db.KCVDB interface with
// a focus on thread safety and predictable ordering of columns.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KCVDB. It routes
//     rows to shards, applies mutations and answers slice queries. The write index
//     is supplied by the caller (the local store counts it, the Raft state machine
//     uses the log index) and only ever moves forward.
//
//   - Shard: A partition of the row space backed by an xsync.MapOf. Rows are
//     distributed across shards with the seeded FNV-1a HashString function, using
//     the higher bits of the hash.
//
//   - Row: An immutable slice of cells sorted by column bytes. Mutate builds a new
//     row inside xsync's per-key Compute and swaps it in (copy-on-write), so a
//     reader that loaded a row always sees either the state before or after a
//     mutation, never a partial one. Rows without columns are removed.
//
// Persistence Format:
//
//	The database uses a compact little-endian binary format:
//	1. Magic number "MAPLECV\x00"
//	2. Version number (currently 1)
//	3. Database seed value for hash function consistency
//	4. Number of rows
//	5. For each row: key, cell count and for each cell its write index,
//	   column and value (all byte slices are length prefixed)
//
//	Snapshots are fuzzy: every row is consistent, the database as a whole is not
//	a consistent cut. Callers that need a consistent snapshot (the Raft state
//	machine) provide it.
package maple
