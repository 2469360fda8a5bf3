// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite covering writes, stale writes, deadlines, snapshots and concurrency
//   - benchmark: Performance tests for common operations and the document store access pattern
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() (db.KVDB, error) {
//		return NewMyDatabase(), nil
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
