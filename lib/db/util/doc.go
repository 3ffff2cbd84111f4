// Package util provides helpers shared by the db.KCVDB engines and the
// command line tools.
//
// The package contains:
//   - functions: seeded string hashing used for shard selection and replica ids
//   - statistics: shard distribution statistics and a CellSizeHistogram used to
//     estimate the size of an engine without a full scan
package util
