package ssp

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// HelloConfig configures VerifyClockBounds
type HelloConfig struct {
	Table      uint32        // table holding one clock column per worker
	Iterations int           // number of clocks every worker runs
	MaxDelay   time.Duration // upper bound of the random sleep before each step
}

// VerifyClockBounds runs the clock verification for one worker: in every
// iteration it checks that no worker's published clock is more than the
// staleness bound behind, increments its own column and calls Clock. After a
// global barrier all columns must equal the number of iterations.
// The table must have been created with CreateTable and one column per worker.
func VerifyClockBounds(ctx context.Context, g *TableGroup, rank int, cfg HelloConfig, rng *rand.Rand) error {
	w, err := g.RegisterThread(rank)
	if err != nil {
		return err
	}
	defer w.Deregister()

	for clock := 0; clock < cfg.Iterations; clock++ {
		if cfg.MaxDelay > 0 {
			delay := time.Duration(rng.Int64N(int64(cfg.MaxDelay) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		row, err := g.store.Get(cfg.Table, 0)
		if err != nil {
			return err
		}
		for peer, c := range row {
			if c < float64(clock-g.cfg.Staleness) {
				return fmt.Errorf("worker %d at clock %d sees worker %d at clock %v (staleness %d)",
					rank, clock, peer, c, g.cfg.Staleness)
			}
		}

		if err := g.store.Inc(cfg.Table, 0, rank, 1); err != nil {
			return err
		}
		if err := w.Clock(ctx); err != nil {
			return err
		}
	}

	if err := w.GlobalBarrier(ctx); err != nil {
		return err
	}

	row, err := g.store.Get(cfg.Table, 0)
	if err != nil {
		return err
	}
	for peer, c := range row {
		if c != float64(cfg.Iterations) {
			return fmt.Errorf("worker %d sees worker %d at clock %v after barrier, expected %d",
				rank, peer, c, cfg.Iterations)
		}
	}
	log.Infof("worker %d verified all clock reads", rank)
	return nil
}
