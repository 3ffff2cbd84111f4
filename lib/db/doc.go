// Package db provides a standardized interface for key-column-value database
// implementations. A row is addressed by a string key and holds an ordered set
// of byte columns, each with a byte value. This is the data model the lock and
// ID allocation layers rely on: lock claims are columns of a lock row, ordered
// by their big-endian timestamp prefix, and ID counters are single columns.
//
// Key Components:
//
//   - KCVDB Interface: The core interface that all database implementations must satisfy.
//     It provides an atomic per-row Mutate (additions and deletions together),
//     ordered range reads with GetSlice, metadata retrieval (GetInfo) and
//     persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Entry and SliceQuery: column/value pairs and half-open column ranges.
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state. Size statistics are estimates.
//
// Note on Write Indices:
//   - Every mutation carries a write-index that serves as a logical timestamp.
//     Implementations record it and must only ever move their global write-index
//     forward; SetWriteIdx ignores lower values.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/dLock/lib/db/engines/maple) provides a
// sharded in-memory implementation with copy-on-write rows and binary persistence.
//
// The util package (github.com/ValentinKolb/dLock/lib/db/util) provides hashing and
// summary statistics.
//
// The testing package (github.com/ValentinKolb/dLock/lib/db/testing) provides
// standardized tests for implementations of the KCVDB interface (RunKCVDBTests).
package db
