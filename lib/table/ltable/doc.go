// Package ltable implements a local, non-distributed table.ITableStore on top of
// a db.RowDB. Write indices are generated with an atomic counter.
//
// The store also implements table.IRowWaiter: every write to a table wakes the
// goroutines waiting on rows of that table, which lets SSP clock waits block
// without polling when all workers share one process.
package ltable
