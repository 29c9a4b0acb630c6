// Package util provides utility components for row database implementations
// that satisfy the db.RowDB interface.
//
// The package contains:
//   - functions: seed generation and FNV-1a hash functions for string and (table, row) keys
//   - statistics: summary statistics used to report how evenly rows are spread over shards
package util
