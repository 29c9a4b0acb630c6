package ssp

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/engines/dense"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/lib/table/ltable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore() *ltable.Store {
	return ltable.NewLocalStore(func() db.RowDB {
		return dense.NewDenseDB(nil)
	})
}

// pollingStore hides the IRowWaiter implementation of the wrapped store
type pollingStore struct {
	table.ITableStore
}

func TestNewTableGroupValidation(t *testing.T) {
	s := newLocalStore()
	_, err := NewTableGroup(s, Config{NumWorkers: 0})
	assert.Error(t, err)
	_, err = NewTableGroup(s, Config{NumWorkers: 2, Staleness: -1})
	assert.Error(t, err)

	g, err := NewTableGroup(s, Config{NumWorkers: 2, Staleness: 1})
	require.NoError(t, err)
	assert.Error(t, g.CreateTable(DefaultClockTable, 2), "clock table must be reserved")

	// every process creates the group, the second creation is a no-op
	_, err = NewTableGroup(s, Config{NumWorkers: 2, Staleness: 1})
	assert.NoError(t, err)
}

func TestRegisterThread(t *testing.T) {
	g, err := NewTableGroup(newLocalStore(), Config{NumWorkers: 2})
	require.NoError(t, err)

	w, err := g.RegisterThread(1)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Rank())

	_, err = g.RegisterThread(1)
	assert.Error(t, err, "rank registered twice")
	_, err = g.RegisterThread(2)
	assert.Error(t, err, "rank out of range")

	w.Deregister()
	_, err = g.RegisterThread(1)
	assert.NoError(t, err)
}

func TestClockBlocksAheadOfStaleness(t *testing.T) {
	g, err := NewTableGroup(newLocalStore(), Config{NumWorkers: 2, Staleness: 1})
	require.NoError(t, err)

	fast, err := g.RegisterThread(0)
	require.NoError(t, err)
	slow, err := g.RegisterThread(1)
	require.NoError(t, err)

	ctx := context.Background()

	// clock 1 only needs everyone at clock >= 0
	require.NoError(t, fast.Clock(ctx))

	// clock 2 needs the slow worker at clock >= 1
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fast.Clock(blocked), context.DeadlineExceeded)

	// the published clock already counts the overshooting step
	clocks, err := g.ReadClocks()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, clocks)

	require.NoError(t, slow.Clock(ctx))
	assert.Equal(t, 1, slow.CurrentClock())
}

func TestGlobalBarrier(t *testing.T) {
	for name, store := range map[string]table.ITableStore{
		"waiter":  newLocalStore(),
		"polling": pollingStore{newLocalStore()},
	} {
		t.Run(name, func(t *testing.T) {
			const workers = 4
			g, err := NewTableGroup(store, Config{NumWorkers: workers, PollInterval: time.Millisecond})
			require.NoError(t, err)

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				passed int
			)
			for rank := 0; rank < workers; rank++ {
				wg.Add(1)
				go func(rank int) {
					defer wg.Done()
					w, err := g.RegisterThread(rank)
					if err != nil {
						t.Error(err)
						return
					}
					defer w.Deregister()
					for i := 0; i < 3; i++ {
						if err := w.GlobalBarrier(context.Background()); err != nil {
							t.Error(err)
							return
						}
					}
					mu.Lock()
					passed++
					mu.Unlock()
				}(rank)
			}
			wg.Wait()
			assert.Equal(t, workers, passed)
		})
	}
}

func TestVerifyClockBounds(t *testing.T) {
	for _, tc := range []struct {
		name      string
		staleness int
		polling   bool
	}{
		{"BSP", 0, false},
		{"SSP(1)", 1, false},
		{"SSP(3)", 3, false},
		{"SSP(2) polling", 2, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var store table.ITableStore = newLocalStore()
			if tc.polling {
				store = pollingStore{store}
			}

			const workers = 4
			g, err := NewTableGroup(store, Config{NumWorkers: workers, Staleness: tc.staleness, PollInterval: time.Millisecond})
			require.NoError(t, err)
			require.NoError(t, g.CreateTable(0, workers))

			cfg := HelloConfig{Table: 0, Iterations: 10, MaxDelay: 2 * time.Millisecond}
			errs := make(chan error, workers)
			for rank := 0; rank < workers; rank++ {
				go func(rank int) {
					rng := rand.New(rand.NewPCG(uint64(rank), 42))
					errs <- VerifyClockBounds(context.Background(), g, rank, cfg, rng)
				}(rank)
			}
			for i := 0; i < workers; i++ {
				assert.NoError(t, <-errs)
			}
		})
	}
}
