package lasso

import (
	"context"
	"time"

	"github.com/ValentinKolb/dLasso/lib/ssp"
	"github.com/ValentinKolb/dLasso/lib/table"
	gometrics "github.com/rcrowley/go-metrics"
)

// ClockCoordinator advances the logical time of one worker. Besides the clock
// of the ssp group it publishes the clock into the worker's slot of the shared
// state row, which is where peers read it for the staleness histogram.
type ClockCoordinator struct {
	worker *ssp.Worker
	store  table.ITableStore
	table  uint32
	slot   int

	waitTimer gometrics.Timer
}

// NewClockCoordinator creates a coordinator publishing into column slot of row 0 of the table
func NewClockCoordinator(worker *ssp.Worker, store table.ITableStore, tableID uint32, slot int, waitTimer gometrics.Timer) *ClockCoordinator {
	if waitTimer == nil {
		waitTimer = gometrics.NilTimer{}
	}
	return &ClockCoordinator{
		worker:    worker,
		store:     store,
		table:     tableID,
		slot:      slot,
		waitTimer: waitTimer,
	}
}

// Advance publishes the next clock of the worker and blocks until the
// staleness bound allows it to start the next step
func (c *ClockCoordinator) Advance(ctx context.Context) error {
	if err := c.store.Inc(c.table, 0, c.slot, 1); err != nil {
		return err
	}
	start := time.Now()
	defer c.waitTimer.UpdateSince(start)
	return c.worker.Clock(ctx)
}

// Barrier blocks until every worker of the group called Barrier
func (c *ClockCoordinator) Barrier(ctx context.Context) error {
	return c.worker.GlobalBarrier(ctx)
}

// Clock returns the number of completed Advance calls
func (c *ClockCoordinator) Clock() int {
	return c.worker.CurrentClock()
}
