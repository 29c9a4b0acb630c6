// Package table provides the interface for table stores: named tables of dense
// float64 rows, changed only by additive increments. It is the shared state
// the distributed solver runs on, and it adds write index management and
// unified error reporting on top of db.RowDB engines.
//
// Key Components:
//
//   - ITableStore: CreateTable, Get, Inc, BatchInc and GetDBInfo. Every
//     implementation returns *Error values carrying a RetCode.
//
//   - IRowWaiter: optional capability of stores that can notify about writes,
//     so callers waiting for a row to reach some state do not need to poll.
//
//   - DBFactory: creates the db.RowDB used by a store.
//
// Implementations:
//
//	- Local Store (ltable): uses a db.RowDB in-process and implements IRowWaiter.
//	  Suitable when all workers run in one process.
//
//	- Distributed Store (dtable): built on the Dragonboat RAFT library. Rows
//	  are replicated over several nodes, increments are linearizable.
//
//	- RPC client (rpc/client): talks to a table store served by `dlasso serve`.
package table
