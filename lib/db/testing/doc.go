// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KCVDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the KCVDB interface contract
//     (ordering, atomic mutations, copy semantics, persistence, concurrency)
//   - benchmark: Performance tests for the access patterns of the lock layer
//
// Example usage:
//
//	factory := func() db.KCVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKCVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKCVDBBenchmarks(b, "MyDatabase", factory)
package testing
