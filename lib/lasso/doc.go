/*
Package lasso implements a distributed solver for L1 regularized least squares
(Lasso) under the stale synchronous parallel model.

The feature columns are split into disjoint ranges, one per worker. Every
worker owns the coefficients of its range and publishes the effect of its
coefficient changes on the prediction vector Xβ as additive increments to a
shared row. Because the ranges are disjoint the increments of different
workers commute, so the row needs no locking: the row always equals the sum of
the contributions of all workers.

One epoch of a worker:

  - read the shared row (prediction vector and the clock of every worker)
  - record the clock skew to every peer in the staleness histogram
  - compute a proximal gradient step on a sampled subset of the owned coordinates
  - publish the prediction delta
  - advance the clock, blocking while a peer is more than the staleness bound behind

After the last epoch all workers meet at a barrier and the worker with rank 0
evaluates the final state and writes the report.

The shared state lives in a table.ITableStore. The same engine runs against an
in process store, a raft replicated store or a remote store.
*/
package lasso
