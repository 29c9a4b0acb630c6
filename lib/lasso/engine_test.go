package lasso

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLasso/lib/dataio"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/ssp"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroup(t *testing.T, store table.ITableStore, cfg Config) *ssp.TableGroup {
	t.Helper()
	g, err := ssp.NewTableGroup(store, ssp.Config{
		NumWorkers:   cfg.NumWorkers(),
		Staleness:    cfg.Staleness,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return g
}

func runEngine(t *testing.T, cfg Config, ds *dataio.Dataset) (*SolverEngine, *Result) {
	t.Helper()
	e, err := NewSolverEngine(cfg, newGroup(t, newLocalStore(), cfg), FromDataset(ds))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := e.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	return e, res
}

func randomDataset(rng *rand.Rand, numFeatures, numSamples int) *dataio.Dataset {
	ds := &dataio.Dataset{
		Columns:    make([]dataio.Column, numFeatures),
		Labels:     make([]float64, numSamples),
		NumSamples: numSamples,
	}
	truth := make([]float64, numFeatures)
	for j := 0; j < numFeatures; j += 3 {
		truth[j] = rng.NormFloat64()
	}
	for j := range ds.Columns {
		for i := 0; i < numSamples; i++ {
			if rng.Float64() < 0.3 {
				v := rng.NormFloat64()
				ds.Columns[j].Indices = append(ds.Columns[j].Indices, i)
				ds.Columns[j].Values = append(ds.Columns[j].Values, v)
				ds.Labels[i] += v * truth[j]
			}
		}
	}
	return ds
}

// Two workers with two features each. Every feature of worker 0 only touches
// samples 0 and 1, every feature of worker 1 only sample 2, so the first step of
// a worker does not depend on whether it sees the delta of the other.
func TestEngineSingleEpochIsSumOfWorkerSteps(t *testing.T) {
	ds := &dataio.Dataset{
		Columns:    []dataio.Column{col(0, 1), col(1, 2), col(2, 1), col(2, 3)},
		Labels:     []float64{1, 2, 3},
		NumSamples: 3,
	}

	cfg := DefaultConfig()
	cfg.NumThreads = 2
	cfg.Lambda = 0
	cfg.LearningRate = 0.1
	cfg.NumEpochs = 1
	cfg.EvalInterval = 1
	cfg.MinibatchRatio = 1

	e, res := runEngine(t, cfg, ds)
	assert.Equal(t, StateDone, e.State())

	// the same steps run one after another against one accumulator
	expected := make([]float64, 3)
	for k := 0; k < 2; k++ {
		p, err := NewProximalUpdater(ds.Columns[2*k:2*k+2], ds.Labels, UpdaterConfig{}, nil)
		require.NoError(t, err)
		step, err := p.Step([]float64{0, 0, 0}, 0.1, 0)
		require.NoError(t, err)
		for i, d := range step.PredictionDelta {
			expected[i] += d
		}
	}
	assert.InDeltaSlice(t, []float64{0.1, 0.8, 3.0}, expected, 1e-12)
	assert.InDeltaSlice(t, expected, res.Predictions, 1e-12)
	assert.InDelta(t, 1.125, res.FinalSqLoss, 1e-12)

	// one evaluation row, FullLoss is the squared loss because lambda is 0
	lines := strings.Split(strings.TrimSpace(res.Ledger), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Epoch Time FullLoss BetaNNZ", lines[0])
	fields := strings.Fields(lines[1])
	assert.Equal(t, "1", fields[0])
	assert.Equal(t, "4", fields[3])

	// staleness 0 and one peer, the histogram has one bucket with one
	// observation per worker
	assert.Equal(t, []float64{2}, res.Histogram)
	assert.Equal(t, "0 2\n", res.Staleness)
}

func TestEngineConvergesUnderStaleness(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	ds := randomDataset(rng, 30, 50)

	for _, staleness := range []int{0, 2} {
		cfg := DefaultConfig()
		cfg.NumThreads = 3
		cfg.Staleness = staleness
		cfg.SkewPolicy = SkewStrict
		cfg.Lambda = 0.01
		cfg.LearningRate = 0.01
		cfg.NumEpochs = 40
		cfg.EvalInterval = 10
		cfg.MinibatchRatio = 0.5
		cfg.Seed = 9
		cfg.NumUnusedRows = 2
		cfg.NumUnusedCols = 4

		_, res := runEngine(t, cfg, ds)

		initial := EvalSqLoss(make([]float64, ds.NumSamples), ds.Labels)
		assert.Less(t, res.FinalSqLoss, initial, "staleness %d", staleness)

		// every worker observes both peers once per epoch and no skew leaves the bound
		var total float64
		for _, c := range res.Histogram {
			total += c
		}
		assert.Len(t, res.Histogram, 2*staleness+1)
		assert.Equal(t, float64(cfg.NumEpochs*3*2), total, "staleness %d", staleness)

		// evaluations at epochs 1, 10, 20, 30, 40
		lines := strings.Split(strings.TrimSpace(res.Ledger), "\n")
		assert.Len(t, lines, 6, "staleness %d", staleness)
	}
}

func TestEnginePartitionedData(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 8))
	ds := randomDataset(rng, 6, 20)

	// two processes, each loaded its own three features and splits them between its threads
	cfg := DefaultConfig()
	cfg.NumClients = 2
	cfg.NumThreads = 2
	cfg.GlobalData = false
	cfg.Staleness = 1
	cfg.LearningRate = 0.01
	cfg.NumEpochs = 5
	cfg.EvalInterval = 5
	cfg.MinibatchRatio = 1

	store := newLocalStore()
	group := newGroup(t, store, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type out struct {
		res *Result
		err error
	}
	results := make(chan out, 2)
	for client := 0; client < 2; client++ {
		c := cfg
		c.ClientID = client
		part := &dataio.Dataset{
			Columns:    ds.Columns[3*client : 3*client+3],
			Labels:     ds.Labels,
			NumSamples: ds.NumSamples,
		}
		e, err := NewSolverEngine(c, group, FromDataset(part))
		require.NoError(t, err)
		go func() {
			res, err := e.Run(ctx)
			results <- out{res, err}
		}()
	}

	var final *Result
	for i := 0; i < 2; i++ {
		o := <-results
		require.NoError(t, o.err)
		if o.res != nil {
			final = o.res
		}
	}
	require.NotNil(t, final, "client 0 hosts rank 0 and returns the result")
	assert.Less(t, final.FinalSqLoss, EvalSqLoss(make([]float64, ds.NumSamples), ds.Labels))
}

func TestEngineWritesReport(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 9))
	ds := randomDataset(rng, 4, 10)

	cfg := DefaultConfig()
	cfg.NumThreads = 2
	cfg.Staleness = 1
	cfg.NumEpochs = 4
	cfg.EvalInterval = 2
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")

	_, res := runEngine(t, cfg, ds)

	loss, err := os.ReadFile(filepath.Join(cfg.OutputDir, LossFile))
	require.NoError(t, err)
	assert.Contains(t, string(loss), res.RunID)
	assert.Contains(t, string(loss), "Sampled Dim")
	assert.Contains(t, string(loss), "worker.0.step")
	assert.True(t, strings.HasSuffix(string(loss), res.Ledger))

	dist, err := os.ReadFile(filepath.Join(cfg.OutputDir, StalenessFile))
	require.NoError(t, err)
	assert.Equal(t, res.Staleness, string(dist))
	assert.Len(t, strings.Split(strings.TrimSpace(string(dist)), "\n"), 3)
}

func TestEngineConfigurationErrors(t *testing.T) {
	ds := &dataio.Dataset{
		Columns:    []dataio.Column{col(0, 1), col(1, 1)},
		Labels:     []float64{1, 2},
		NumSamples: 2,
	}

	cfg := DefaultConfig()
	cfg.NumThreads = 3
	e, err := NewSolverEngine(cfg, newGroup(t, newLocalStore(), cfg), FromDataset(ds))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.True(t, IsConfigurationError(err), "more workers than features: %v", err)
	assert.Equal(t, StateLoading, e.State())

	cfg = DefaultConfig()
	bad := &dataio.Dataset{Columns: ds.Columns, Labels: []float64{1}, NumSamples: 2}
	e, err = NewSolverEngine(cfg, newGroup(t, newLocalStore(), cfg), FromDataset(bad))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.True(t, IsConfigurationError(err), "label count mismatch: %v", err)

	loadFails := func() (*dataio.Dataset, error) { return nil, dataio.ErrDataFormat }
	e, err = NewSolverEngine(cfg, newGroup(t, newLocalStore(), cfg), loadFails)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.True(t, IsDataFormatError(err), "got %v", err)

	other := cfg
	other.Staleness = 3
	_, err = NewSolverEngine(other, newGroup(t, newLocalStore(), cfg), FromDataset(ds))
	assert.True(t, IsConfigurationError(err), "group staleness differs")

	invalid := cfg
	invalid.LossTableID = invalid.WTableID
	_, err = NewSolverEngine(invalid, newGroup(t, newLocalStore(), cfg), FromDataset(ds))
	assert.True(t, IsConfigurationError(err), "table ids collide")
}

var errInjected = errors.New("injected failure")

// failingStore fails every BatchInc to one table after the first few
type failingStore struct {
	table.ITableStore
	failTable uint32
	after     int32
	calls     atomic.Int32
}

func (s *failingStore) BatchInc(t uint32, row uint64, update db.Update) error {
	if t == s.failTable && s.calls.Add(1) > s.after {
		return errInjected
	}
	return s.ITableStore.BatchInc(t, row, update)
}

func TestEngineAbortsAllWorkersOnError(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	ds := randomDataset(rng, 6, 10)

	cfg := DefaultConfig()
	cfg.NumThreads = 3
	cfg.NumEpochs = 50
	cfg.MinibatchRatio = 1

	store := &failingStore{ITableStore: newLocalStore(), failTable: cfg.WTableID, after: 4}
	e, err := NewSolverEngine(cfg, newGroup(t, store, cfg), FromDataset(ds))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := e.Run(ctx)
	assert.ErrorIs(t, err, errInjected)
	assert.Nil(t, res)
	assert.NotEqual(t, StateDone, e.State())
}

func TestEngineTableConflict(t *testing.T) {
	ds := &dataio.Dataset{
		Columns:    []dataio.Column{col(0, 1)},
		Labels:     []float64{1},
		NumSamples: 1,
	}
	cfg := DefaultConfig()

	store := newLocalStore()
	require.NoError(t, store.CreateTable(cfg.WTableID, db.TableInfo{RowCapacity: 17}))
	e, err := NewSolverEngine(cfg, newGroup(t, store, cfg), FromDataset(ds))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.True(t, IsConfigurationError(err), "got %v", err)
}
