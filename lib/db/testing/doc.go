// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.RowDB interface.
//
// The package contains:
//   - testing: a test suite validating conformance to the RowDB contract,
//     including commutativity of increments and concurrent disjoint writers
//   - benchmark: performance tests for the increment and read paths
//
// Example usage:
//
//	factory := func() db.RowDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunRowDBTests(t, "MyDatabase", factory)
//	dbtesting.RunRowDBBenchmarks(b, "MyDatabase", factory)
package testing
