// Package sqlstore implements store.IStore on a relational database reached
// through database/sql.
//
// All rows share one table:
//
//	row_key  binary  (primary key, part 1)
//	col      binary  (primary key, part 2)
//	val      blob
//
// Binary columns compare byte-wise in both supported dialects, so range queries
// on col return columns in the order required by store.IStore.GetSlice.
//
// Dialects:
//
//   - mysql: ? placeholders, VARBINARY/LONGBLOB columns and INSERT ... ON DUPLICATE KEY UPDATE.
//   - postgres: $n placeholders, BYTEA columns and INSERT ... ON CONFLICT DO UPDATE.
//
// The driver is registered by the caller (see lib/backend). A single mutation
// runs in one transaction. Reads and writes go to the same primary, so every
// consistency level is key consistent.
package sqlstore
