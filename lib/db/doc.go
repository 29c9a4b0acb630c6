// Package db provides a standardized interface for row database implementations.
// It defines the RowDB interface: tables of dense float64 rows that are only ever
// changed by additive increments.
//
// Key Components:
//
//   - RowDB Interface: the core interface every engine satisfies. It provides
//     table management (CreateTable, GetTableInfo), additive writes (Inc, BatchInc),
//     reads (GetRow), metadata (GetInfo) and persistence (Save, Load).
//
//   - Update: a sparse list of (column, delta) pairs applied atomically to one row.
//
//   - Feature Flags: capability flags engines advertise through SupportsFeature.
//
// Note on the write model:
//   - Increments commute. When writers own disjoint columns of a row (or even the
//     same columns), the final row does not depend on the order of their updates.
//     Distributed callers rely on this to update shared rows without locking.
//   - Every write carries a write index used as a logical timestamp. The database
//     index only increases, lower indices passed to SetWriteIdx are ignored.
//
// Related Packages:
//
// The engines/dense package provides a sharded in-memory implementation.
// The util package provides hash and statistics helpers for implementations.
// The testing package provides RunRowDBTests and RunRowDBBenchmarks.
package db
