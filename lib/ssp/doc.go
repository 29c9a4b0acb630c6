// Package ssp implements stale synchronous parallel (SSP) coordination on top
// of a table.ITableStore.
//
// A TableGroup reserves one table of the store for its bookkeeping: row 0 holds
// the clock of every worker, row 1 the number of barriers every worker entered.
// Workers register with their global rank and call Clock once per step. Clock
// increments the worker's column and blocks until the slowest worker is at most
// Staleness clocks behind. A worker that has just incremented its clock may be
// observed one clock beyond that bound by its peers until its own wait returns.
//
// Blocking uses table.IRowWaiter when the store provides it and falls back to
// polling with exponential backoff otherwise. All waits end when their context
// is cancelled.
//
// VerifyClockBounds is a self check of the protocol used by `dlasso hello`.
package ssp
