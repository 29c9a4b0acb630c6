package ssp

import (
	"context"
	"fmt"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("ssp")

const (
	clockRow   uint64 = 0 // per worker clock
	barrierRow uint64 = 1 // per worker barrier generation

	DefaultClockTable   uint32 = 1 << 31
	DefaultPollInterval        = 50 * time.Millisecond
	minPollInterval            = 100 * time.Microsecond
)

var (
	clockWaitSeconds   = vm.GetOrCreateHistogram("ssp_clock_wait_seconds")
	barrierWaitSeconds = vm.GetOrCreateHistogram("ssp_barrier_wait_seconds")
	clocksTotal        = vm.GetOrCreateCounter("ssp_clocks_total")
)

// Config configures a TableGroup
type Config struct {
	NumWorkers   int           // total number of workers over all processes
	Staleness    int           // how many clocks a worker may run ahead of the slowest one
	ClockTable   uint32        // id of the table reserved for clocks and barriers
	PollInterval time.Duration // upper bound of the poll backoff for stores without table.IRowWaiter
}

// TableGroup coordinates a fixed set of workers sharing tables of one store
// under the stale synchronous parallel model. Clocks live in a reserved table
// of the store, so workers in different processes synchronize through the
// same store they share data in.
type TableGroup struct {
	store  table.ITableStore
	waiter table.IRowWaiter
	cfg    Config

	workers *xsync.MapOf[int, *Worker]
}

// NewTableGroup validates cfg and creates the clock table.
// Every process of the group calls it with the same configuration.
func NewTableGroup(store table.ITableStore, cfg Config) (*TableGroup, error) {
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("number of workers must be positive, got %d", cfg.NumWorkers)
	}
	if cfg.Staleness < 0 {
		return nil, fmt.Errorf("staleness must not be negative, got %d", cfg.Staleness)
	}
	if cfg.ClockTable == 0 {
		cfg.ClockTable = DefaultClockTable
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	err := store.CreateTable(cfg.ClockTable, db.TableInfo{RowCapacity: cfg.NumWorkers, Staleness: cfg.Staleness})
	if err != nil {
		return nil, fmt.Errorf("create clock table: %w", err)
	}

	g := &TableGroup{
		store:   store,
		cfg:     cfg,
		workers: xsync.NewMapOf[int, *Worker](),
	}
	if w, ok := store.(table.IRowWaiter); ok {
		g.waiter = w
	}
	return g, nil
}

// CreateTable creates an application table read under the staleness of the group
func (g *TableGroup) CreateTable(id uint32, rowCapacity int) error {
	if id == g.cfg.ClockTable {
		return fmt.Errorf("table %d is reserved for clocks", id)
	}
	return g.store.CreateTable(id, db.TableInfo{RowCapacity: rowCapacity, Staleness: g.cfg.Staleness})
}

// Store returns the store shared by the group
func (g *TableGroup) Store() table.ITableStore {
	return g.store
}

// Staleness returns the staleness bound of the group
func (g *TableGroup) Staleness() int {
	return g.cfg.Staleness
}

// NumWorkers returns the total number of workers of the group
func (g *TableGroup) NumWorkers() int {
	return g.cfg.NumWorkers
}

// RegisterThread registers the worker with the given global rank in this process.
// A rank can only be registered once at a time.
func (g *TableGroup) RegisterThread(rank int) (*Worker, error) {
	if rank < 0 || rank >= g.cfg.NumWorkers {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", rank, g.cfg.NumWorkers)
	}
	w := &Worker{group: g, rank: rank}
	if _, loaded := g.workers.LoadOrStore(rank, w); loaded {
		return nil, fmt.Errorf("rank %d is already registered", rank)
	}
	log.Debugf("registered worker %d", rank)
	return w, nil
}

// ReadClocks returns the published clock of every worker
func (g *TableGroup) ReadClocks() ([]float64, error) {
	return g.store.Get(g.cfg.ClockTable, clockRow)
}

// waitRow blocks until cond holds for the row. Stores implementing
// table.IRowWaiter are waited on, all others are polled with exponential backoff.
func (g *TableGroup) waitRow(ctx context.Context, row uint64, cond func([]float64) bool) error {
	if g.waiter != nil {
		_, err := g.waiter.WaitRow(ctx, g.cfg.ClockTable, row, cond)
		return err
	}

	backoff := minPollInterval
	for {
		values, err := g.store.Get(g.cfg.ClockTable, row)
		if err != nil {
			return err
		}
		if cond(values) {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(2*backoff, g.cfg.PollInterval)
	}
}

// atLeast returns a condition that holds when every value of a row is >= bound
func atLeast(bound float64) func([]float64) bool {
	return func(values []float64) bool {
		for _, v := range values {
			if v < bound {
				return false
			}
		}
		return true
	}
}

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

// Worker is the handle of one registered worker. It is not safe for concurrent use,
// every worker goroutine owns its handle.
type Worker struct {
	group      *TableGroup
	rank       int
	clock      int
	generation int
}

// Rank returns the global rank of the worker
func (w *Worker) Rank() int {
	return w.rank
}

// CurrentClock returns how many times Clock completed for this worker
func (w *Worker) CurrentClock() int {
	return w.clock
}

// Clock marks the end of the current step. It publishes the new clock of the
// worker and blocks until no worker is more than the staleness bound behind it.
// Updates a worker published before calling Clock are visible to every worker
// that passed its own clock wait for a later step.
func (w *Worker) Clock(ctx context.Context) error {
	g := w.group
	if err := g.store.Inc(g.cfg.ClockTable, clockRow, w.rank, 1); err != nil {
		return fmt.Errorf("publish clock of worker %d: %w", w.rank, err)
	}
	w.clock++
	clocksTotal.Inc()

	start := time.Now()
	err := g.waitRow(ctx, clockRow, atLeast(float64(w.clock-g.cfg.Staleness)))
	clockWaitSeconds.Update(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("worker %d waiting at clock %d: %w", w.rank, w.clock, err)
	}
	return nil
}

// GlobalBarrier blocks until every worker of the group reached the same number of barriers.
// Updates published before the barrier are visible to everyone after it.
func (w *Worker) GlobalBarrier(ctx context.Context) error {
	g := w.group
	w.generation++
	if err := g.store.Inc(g.cfg.ClockTable, barrierRow, w.rank, 1); err != nil {
		return fmt.Errorf("enter barrier %d of worker %d: %w", w.generation, w.rank, err)
	}

	start := time.Now()
	err := g.waitRow(ctx, barrierRow, atLeast(float64(w.generation)))
	barrierWaitSeconds.Update(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("worker %d waiting at barrier %d: %w", w.rank, w.generation, err)
	}
	log.Debugf("worker %d passed barrier %d", w.rank, w.generation)
	return nil
}

// Deregister releases the rank of the worker. The handle must not be used afterwards.
func (w *Worker) Deregister() {
	w.group.workers.Delete(w.rank)
	log.Debugf("deregistered worker %d at clock %d", w.rank, w.clock)
}
