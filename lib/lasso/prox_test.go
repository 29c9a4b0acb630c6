package lasso

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/ValentinKolb/dLasso/lib/dataio"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/engines/dense"
	"github.com/ValentinKolb/dLasso/lib/table/ltable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore() *ltable.Store {
	return ltable.NewLocalStore(func() db.RowDB {
		return dense.NewDenseDB(nil)
	})
}

func col(entries ...float64) dataio.Column {
	// entries are (sample, value) pairs
	c := dataio.Column{}
	for i := 0; i < len(entries); i += 2 {
		c.Indices = append(c.Indices, int(entries[i]))
		c.Values = append(c.Values, entries[i+1])
	}
	return c
}

func TestSoftThreshold(t *testing.T) {
	tests := []struct {
		x, theta, want float64
	}{
		{3, 1, 2},
		{-3, 1, -2},
		{0.5, 1, 0},
		{-0.5, 1, 0},
		{1, 1, 0},
		{-1, 1, 0},
		{2, 0, 2},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := SoftThreshold(tt.x, tt.theta); got != tt.want {
			t.Errorf("SoftThreshold(%v, %v) = %v, want %v", tt.x, tt.theta, got, tt.want)
		}
	}
}

func TestSoftThresholdProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		x := rng.NormFloat64() * 10
		theta := rng.Float64() * 5
		got := SoftThreshold(x, theta)
		switch {
		case x > theta:
			assert.InDelta(t, x-theta, got, 1e-12)
			assert.Greater(t, got, 0.0)
		case x < -theta:
			assert.InDelta(t, x+theta, got, 1e-12)
			assert.Less(t, got, 0.0)
		default:
			assert.Equal(t, 0.0, got)
		}
		assert.Equal(t, got, SoftThreshold(got, 0), "idempotent for theta 0")
	}
}

func TestNewProximalUpdaterValidation(t *testing.T) {
	_, err := NewProximalUpdater(nil, []float64{1}, UpdaterConfig{}, nil)
	assert.True(t, IsConfigurationError(err), "no features: %v", err)

	_, err = NewProximalUpdater([]dataio.Column{col(0, 1)}, nil, UpdaterConfig{}, nil)
	assert.True(t, IsConfigurationError(err), "no labels: %v", err)

	cols := []dataio.Column{col(0, 1), col(0, 1)}
	_, err = NewProximalUpdater(cols, []float64{1}, UpdaterConfig{SampleSize: 1}, nil)
	assert.True(t, IsConfigurationError(err), "sampling without sampler: %v", err)

	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{SampleSize: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.SampleSize(), "sample size is capped by the partition")

	_, err = p.Step([]float64{1, 2}, 0.1, 0)
	assert.True(t, IsConfigurationError(err), "wrong prediction length: %v", err)
	_, err = p.Step([]float64{1}, 0, 0)
	assert.True(t, IsConfigurationError(err), "zero learning rate: %v", err)
}

func TestStepGradient(t *testing.T) {
	// y = [1, 2], feature 0 = [1, 0], feature 1 = [1, 2]
	cols := []dataio.Column{col(0, 1), col(0, 1, 1, 2)}
	p, err := NewProximalUpdater(cols, []float64{1, 2}, UpdaterConfig{Lambda: 0}, nil)
	require.NoError(t, err)

	res, err := p.Step([]float64{0, 0}, 0.1, 0)
	require.NoError(t, err)

	// g = X^T (w - y) = [-1, -5]
	assert.Equal(t, []int{0, 1}, res.Coords)
	assert.InDeltaSlice(t, []float64{0.1, 0.5}, res.CoefDelta, 1e-12)
	assert.InDeltaSlice(t, []float64{0.1, 0.5}, p.Beta(), 1e-12)
	// X * delta = [0.1 + 0.5, 2 * 0.5]
	assert.InDeltaSlice(t, []float64{0.6, 1.0}, res.PredictionDelta, 1e-12)
	assert.Equal(t, 2, p.BetaNNZ())
}

func TestStepShrinksToZero(t *testing.T) {
	cols := []dataio.Column{col(0, 1)}
	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{Lambda: 20}, nil)
	require.NoError(t, err)

	// beta - lr * g = 0.1 is below lr * lambda = 2
	res, err := p.Step([]float64{0}, 0.1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, res.CoefDelta)
	assert.Equal(t, []float64{0}, res.PredictionDelta)
	assert.Equal(t, 0, p.BetaNNZ())
	assert.Equal(t, 0.0, p.EvalL1Penalty())
}

func TestStepRepetitions(t *testing.T) {
	cols := []dataio.Column{col(0, 1)}
	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{NumReps: 2}, nil)
	require.NoError(t, err)

	res, err := p.Step([]float64{0}, 0.1, 0)
	require.NoError(t, err)

	// only the first repetition is committed, both are published
	assert.InDeltaSlice(t, []float64{0.1}, p.Beta(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.1}, res.CoefDelta, 1e-12)
	assert.InDeltaSlice(t, []float64{0.2}, res.PredictionDelta, 1e-12)
}

func TestStepRepetitionsRestartFromCommittedBeta(t *testing.T) {
	cols := []dataio.Column{col(0, 1)}
	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{Lambda: 0.2, NumReps: 2}, nil)
	require.NoError(t, err)

	res, err := p.Step([]float64{0}, 0.5, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.4}, p.Beta(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.8}, res.PredictionDelta, 1e-12)

	// beta 0.4, gradient 0.5: the first repetition lands at 0.05, the second
	// restarts from 0.05 and crosses zero to -0.1. Repeating the first delta
	// would publish -0.7 instead of -0.5.
	res, err = p.Step([]float64{1.5}, 0.5, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.05}, p.Beta(), 1e-12)
	assert.InDeltaSlice(t, []float64{-0.35}, res.CoefDelta, 1e-12)
	assert.InDeltaSlice(t, []float64{-0.5}, res.PredictionDelta, 1e-12)
}

func TestStepSampledLeavesInactiveUnchanged(t *testing.T) {
	cols := make([]dataio.Column, 10)
	for j := range cols {
		cols[j] = col(0, 1)
	}
	sampler := NewReservoirSampler(rand.New(rand.NewPCG(3, 4)))
	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{SampleSize: 3}, sampler)
	require.NoError(t, err)

	res, err := p.Step([]float64{0}, 0.1, 0)
	require.NoError(t, err)
	require.Len(t, res.Coords, 3)

	active := map[int]bool{}
	for _, j := range res.Coords {
		active[j] = true
	}
	for j, b := range p.Beta() {
		if active[j] {
			assert.InDelta(t, 0.1, b, 1e-12)
		} else {
			assert.Equal(t, 0.0, b, "coordinate %d was not sampled", j)
		}
	}
	assert.InDelta(t, 0.3, res.PredictionDelta[0], 1e-12)
}

func TestEvalObjective(t *testing.T) {
	assert.Equal(t, 2.5, EvalSqLoss([]float64{1, 2}, []float64{0, 0}))
	assert.Equal(t, 0.0, EvalSqLoss([]float64{1, 2}, []float64{1, 2}))

	cols := []dataio.Column{col(0, 1), col(0, -1)}
	p, err := NewProximalUpdater(cols, []float64{1}, UpdaterConfig{Lambda: 0.5}, nil)
	require.NoError(t, err)
	p.beta = []float64{2, -3}
	assert.Equal(t, 2.5, p.EvalL1Penalty())
	assert.Equal(t, 2, p.BetaNNZ())
}

// Workers own disjoint features, so their published deltas add up to the
// same row in any order.
func TestPublishedDeltasCommute(t *testing.T) {
	labels := []float64{1, -2, 3}
	cols := []dataio.Column{
		col(0, 1, 2, 1),
		col(1, 2),
		col(0, -1, 1, 1),
		col(2, 3),
	}
	updaters := make([]*ProximalUpdater, 2)
	results := make([]StepResult, 2)
	for k := range updaters {
		p, err := NewProximalUpdater(cols[2*k:2*k+2], labels, UpdaterConfig{Lambda: 0.1}, nil)
		require.NoError(t, err)
		results[k], err = p.Step([]float64{0, 0, 0}, 0.1, 0)
		require.NoError(t, err)
		updaters[k] = p
	}

	expected := make([]float64, 3)
	for _, r := range results {
		for i, d := range r.PredictionDelta {
			expected[i] += d
		}
	}

	for _, order := range [][]int{{0, 1}, {1, 0}} {
		s := newLocalStore()
		require.NoError(t, s.CreateTable(0, db.TableInfo{RowCapacity: 3}))
		for _, k := range order {
			require.NoError(t, s.BatchInc(0, 0, db.DenseUpdate(results[k].PredictionDelta, 0)))
		}
		row, err := s.Get(0, 0)
		require.NoError(t, err)
		assert.InDeltaSlice(t, expected, row, 1e-12, "order %v", order)
	}

	// concurrent publishing
	s := newLocalStore()
	require.NoError(t, s.CreateTable(0, db.TableInfo{RowCapacity: 3}))
	var wg sync.WaitGroup
	for k := range results {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			assert.NoError(t, s.BatchInc(0, 0, db.DenseUpdate(results[k].PredictionDelta, 0)))
		}(k)
	}
	wg.Wait()
	row, err := s.Get(0, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, expected, row, 1e-12)
}
