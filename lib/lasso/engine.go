package lasso

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLasso/lib/dataio"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/ssp"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("lasso")

var (
	stepsTotal       = vm.GetOrCreateCounter("lasso_steps_total")
	evaluationsTotal = vm.GetOrCreateCounter("lasso_evaluations_total")
	stepSeconds      = vm.GetOrCreateHistogram("lasso_step_seconds")
)

// ledger fields, registered in this order by every worker
const (
	FieldEpoch    = "Epoch"
	FieldTime     = "Time"
	FieldFullLoss = "FullLoss"
	FieldBetaNNZ  = "BetaNNZ"
)

var ledgerFields = []string{FieldEpoch, FieldTime, FieldFullLoss, FieldBetaNNZ}

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// State is the phase of a SolverEngine. States only move forward.
type State int32

const (
	StateLoading State = iota
	StateRunning
	StateBarriered
	StateEvaluating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateRunning:
		return "Running"
	case StateBarriered:
		return "Barriered"
	case StateEvaluating:
		return "Evaluating"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Loader
// --------------------------------------------------------------------------

// Loader provides the data of this process
type Loader func() (*dataio.Dataset, error)

// FromSource loads the data from files
func FromSource(src dataio.Source) Loader {
	return func() (*dataio.Dataset, error) {
		return dataio.Load(src)
	}
}

// FromDataset uses data already in memory
func FromDataset(ds *dataio.Dataset) Loader {
	return func() (*dataio.Dataset, error) {
		return ds, nil
	}
}

// --------------------------------------------------------------------------
// Result
// --------------------------------------------------------------------------

// Result is produced by the worker with global rank 0 after the final barrier
type Result struct {
	RunID       string
	FinalSqLoss float64
	Predictions []float64 // final aggregate prediction vector
	Histogram   []float64 // bucket i counts skew i - staleness
	Staleness   string    // histogram as "skew count" lines
	Ledger      string    // all evaluation rows
	Detail      string    // experiment description
}

// --------------------------------------------------------------------------
// SolverEngine
// --------------------------------------------------------------------------

// SolverEngine runs the workers of one process. All processes of a run share
// the tables of the group's store: the W table row 0 holds the prediction
// vector followed by one clock slot per worker, the staleness table row 0
// the skew histogram and the loss table the metric ledger.
type SolverEngine struct {
	cfg   Config
	group *ssp.TableGroup
	store table.ITableStore
	load  Loader

	runID    uuid.UUID
	registry gometrics.Registry
	state    atomic.Int32

	// set while loading, read only afterwards
	columns *SparseColumnStore
	labels  []float64
}

// NewSolverEngine creates the engine of one process. The group must be
// configured with the same number of workers and staleness as cfg.
func NewSolverEngine(cfg Config, group *ssp.TableGroup, load Loader) (*SolverEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if group.NumWorkers() != cfg.NumWorkers() {
		return nil, configError("table group has %d workers, configuration %d", group.NumWorkers(), cfg.NumWorkers())
	}
	if group.Staleness() != cfg.Staleness {
		return nil, configError("table group has staleness %d, configuration %d", group.Staleness(), cfg.Staleness)
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	return &SolverEngine{
		cfg:      cfg,
		group:    group,
		store:    group.Store(),
		load:     load,
		runID:    uuid.New(),
		registry: gometrics.NewRegistry(),
	}, nil
}

// State returns the current phase
func (e *SolverEngine) State() State {
	return State(e.state.Load())
}

func (e *SolverEngine) advanceState(s State) {
	for {
		curr := e.state.Load()
		if curr >= int32(s) || e.state.CompareAndSwap(curr, int32(s)) {
			return
		}
	}
}

// RunID returns the identifier of the run, unique per process
func (e *SolverEngine) RunID() string {
	return e.runID.String()
}

// Registry returns the timers of the workers
func (e *SolverEngine) Registry() gometrics.Registry {
	return e.registry
}

// Run loads the data, creates the tables and runs all worker threads of the
// process until the last epoch and the final barrier. The first error of any
// worker cancels the others and is returned. The result is nil in processes
// without the worker of global rank 0.
func (e *SolverEngine) Run(ctx context.Context) (*Result, error) {
	log.Infof("run %s: client %d of %d starting %d threads", e.runID, e.cfg.ClientID, e.cfg.NumClients, e.cfg.NumThreads)

	if err := e.loadData(); err != nil {
		return nil, err
	}
	if err := e.createTables(); err != nil {
		return nil, err
	}
	e.advanceState(StateRunning)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		result   *Result
	)
	for threadID := 0; threadID < e.cfg.NumThreads; threadID++ {
		wg.Add(1)
		go func(threadID int) {
			defer wg.Done()
			res, err := e.runWorker(ctx, threadID)
			if err != nil {
				once.Do(func() { firstErr = err })
				cancel(err)
				return
			}
			if res != nil {
				result = res
			}
		}(threadID)
	}
	wg.Wait()

	if firstErr != nil {
		log.Errorf("run %s failed: %v", e.runID, firstErr)
		return nil, firstErr
	}
	e.advanceState(StateDone)
	return result, nil
}

func (e *SolverEngine) loadData() error {
	ds, err := e.load()
	if err != nil {
		return loadError(err)
	}
	if len(ds.Labels) != ds.NumSamples {
		return configError("%d labels for %d samples", len(ds.Labels), ds.NumSamples)
	}
	columns, err := NewSparseColumnStore(ds.Columns, ds.NumSamples)
	if err != nil {
		return err
	}

	splitBetween := e.cfg.NumThreads
	if e.cfg.GlobalData {
		splitBetween = e.cfg.NumWorkers()
	}
	if columns.NumFeatures() < splitBetween {
		return configError("%d features cannot be split between %d workers", columns.NumFeatures(), splitBetween)
	}

	e.columns = columns
	e.labels = ds.Labels
	return nil
}

func (e *SolverEngine) createTables() error {
	wrap := func(name string, err error) error {
		if err == nil {
			return nil
		}
		return &Error{Kind: KindConfiguration, Msg: "create " + name + " table", Err: err}
	}

	rowLen := e.columns.NumSamples() + e.cfg.NumWorkers()
	if err := e.group.CreateTable(e.cfg.WTableID, rowLen); err != nil {
		return wrap("w", err)
	}
	if err := e.group.CreateTable(e.cfg.StalenessTableID, 2*e.cfg.Staleness+1); err != nil {
		return wrap("staleness", err)
	}
	if err := CreateLedgerTable(e.store, e.cfg.LossTableID); err != nil {
		return wrap("loss", err)
	}
	if e.cfg.NumUnusedRows > 0 {
		if err := e.group.CreateTable(e.cfg.UnusedTableID, e.cfg.NumUnusedCols); err != nil {
			return wrap("unused", err)
		}
	}
	return nil
}

func (e *SolverEngine) newLedger() (*MetricLedger, error) {
	ledger := NewMetricLedger(e.store, e.cfg.LossTableID)
	for _, f := range ledgerFields {
		if err := ledger.RegisterField(f); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

// worker is the state of one worker thread
type worker struct {
	rank      int
	partition FeaturePartition
	updater   *ProximalUpdater
	tracker   *StalenessTracker
	clock     *ClockCoordinator
	ledger    *MetricLedger
	padding   *paddingTraffic
	stepTimer gometrics.Timer
}

func (e *SolverEngine) newWorker(handle *ssp.Worker, threadID int) (*worker, error) {
	rank := handle.Rank()

	// with global data the features are split between all workers, otherwise
	// between the threads of this process
	partRank, partWorkers := threadID, e.cfg.NumThreads
	if e.cfg.GlobalData {
		partRank, partWorkers = rank, e.cfg.NumWorkers()
	}
	partition, err := PartitionFeatures(e.columns.NumFeatures(), partWorkers, partRank)
	if err != nil {
		return nil, err
	}
	view, err := e.columns.View(partition)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(rank)))
	updater, err := NewProximalUpdater(view, e.labels, UpdaterConfig{
		Lambda:     e.cfg.Lambda,
		SampleSize: SampleSize(partition.Len(), e.cfg.MinibatchRatio),
		NumReps:    e.cfg.NumReps,
	}, NewReservoirSampler(rng))
	if err != nil {
		return nil, err
	}

	tracker, err := NewStalenessTracker(e.cfg.Staleness, rank, e.cfg.SkewPolicy)
	if err != nil {
		return nil, err
	}

	ledger, err := e.newLedger()
	if err != nil {
		return nil, err
	}

	w := &worker{
		rank:      rank,
		partition: partition,
		updater:   updater,
		tracker:   tracker,
		ledger:    ledger,
		stepTimer: gometrics.GetOrRegisterTimer(fmt.Sprintf("worker.%d.step", rank), e.registry),
	}
	waitTimer := gometrics.GetOrRegisterTimer(fmt.Sprintf("worker.%d.wait", rank), e.registry)
	w.clock = NewClockCoordinator(handle, e.store, e.cfg.WTableID, e.columns.NumSamples()+rank, waitTimer)
	if e.cfg.NumUnusedRows > 0 {
		w.padding = newPaddingTraffic(e.store, e.cfg.UnusedTableID, e.cfg.NumUnusedRows, e.cfg.NumUnusedCols)
	}
	return w, nil
}

func (e *SolverEngine) runWorker(ctx context.Context, threadID int) (*Result, error) {
	handle, err := e.group.RegisterThread(e.cfg.GlobalRank(threadID))
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Msg: "register thread", Err: err}
	}
	defer handle.Deregister()

	w, err := e.newWorker(handle, threadID)
	if err != nil {
		return nil, err
	}
	log.Infof("worker %d owns features [%d, %d), updates %d per step",
		w.rank, w.partition.Start, w.partition.End, w.updater.SampleSize())

	start := time.Now()
	evalStep := 0
	for epoch := 1; epoch <= e.cfg.NumEpochs; epoch++ {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		if err := e.step(w, epoch-1); err != nil {
			return nil, err
		}

		if epoch == 1 || epoch%e.cfg.EvalInterval == 0 {
			if err := e.evaluate(w, evalStep, epoch, start); err != nil {
				return nil, err
			}
			evalStep++
		}

		if err := w.clock.Advance(ctx); err != nil {
			return nil, err
		}
	}

	e.advanceState(StateBarriered)
	if err := w.clock.Barrier(ctx); err != nil {
		return nil, err
	}
	if w.rank != 0 {
		return nil, nil
	}

	e.advanceState(StateEvaluating)
	return e.finish(w)
}

// step reads the shared state, records the observed skews and publishes
// the prediction effect of one proximal step
func (e *SolverEngine) step(w *worker, myClock int) error {
	start := time.Now()
	numSamples := e.columns.NumSamples()

	if w.padding != nil {
		if err := w.padding.read(); err != nil {
			return err
		}
	}

	row, err := e.store.Get(e.cfg.WTableID, 0)
	if err != nil {
		return err
	}
	if len(row) != numSamples+e.cfg.NumWorkers() {
		return configError("w row has length %d, expected %d", len(row), numSamples+e.cfg.NumWorkers())
	}

	skews, err := w.tracker.Observe(row[numSamples:], myClock)
	if err != nil {
		return err
	}
	if err := e.store.BatchInc(e.cfg.StalenessTableID, 0, db.DenseUpdate(skews, 0)); err != nil {
		return err
	}

	res, err := w.updater.Step(row[:numSamples], e.cfg.LearningRate, myClock)
	if err != nil {
		return err
	}
	if update := nonZeroUpdate(res.PredictionDelta); update.Len() > 0 {
		if err := e.store.BatchInc(e.cfg.WTableID, 0, update); err != nil {
			return err
		}
	}

	if w.padding != nil {
		if err := w.padding.write(); err != nil {
			return err
		}
	}

	w.stepTimer.UpdateSince(start)
	stepSeconds.Update(time.Since(start).Seconds())
	stepsTotal.Inc()
	return nil
}

// evaluate adds the contribution of the worker to a ledger row. Every worker
// adds its penalty and nonzero count, rank 0 adds the squared loss.
func (e *SolverEngine) evaluate(w *worker, evalStep, epoch int, start time.Time) error {
	if err := w.ledger.Increment(evalStep, FieldFullLoss, w.updater.EvalL1Penalty()); err != nil {
		return err
	}
	if err := w.ledger.Increment(evalStep, FieldBetaNNZ, float64(w.updater.BetaNNZ())); err != nil {
		return err
	}
	if w.rank != 0 {
		return nil
	}

	row, err := e.store.Get(e.cfg.WTableID, 0)
	if err != nil {
		return err
	}
	sqLoss := EvalSqLoss(row[:e.columns.NumSamples()], e.labels)
	if err := w.ledger.Increment(evalStep, FieldFullLoss, sqLoss); err != nil {
		return err
	}
	if err := w.ledger.Increment(evalStep, FieldEpoch, float64(epoch)); err != nil {
		return err
	}
	if err := w.ledger.Increment(evalStep, FieldTime, time.Since(start).Seconds()); err != nil {
		return err
	}
	evaluationsTotal.Inc()

	// the previous row is complete once every worker moved past it
	if evalStep > 0 {
		line, err := w.ledger.RenderOne(evalStep - 1)
		if err != nil {
			return err
		}
		log.Infof("%s", line)
	}
	log.Infof("epoch %d finished, squared loss %g", epoch, sqLoss)
	return nil
}

// finish runs on rank 0 after the final barrier
func (e *SolverEngine) finish(w *worker) (*Result, error) {
	numSamples := e.columns.NumSamples()

	row, err := e.store.Get(e.cfg.WTableID, 0)
	if err != nil {
		return nil, err
	}
	histogram, err := e.store.Get(e.cfg.StalenessTableID, 0)
	if err != nil {
		return nil, err
	}
	ledger, err := w.ledger.RenderAll()
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       e.runID.String(),
		FinalSqLoss: EvalSqLoss(row[:numSamples], e.labels),
		Predictions: row[:numSamples],
		Histogram:   histogram,
		Staleness:   w.tracker.Render(histogram),
		Ledger:      ledger,
		Detail:      e.experimentDetail(w),
	}

	if e.cfg.OutputDir != "" {
		if err := WriteReport(e.cfg.OutputDir, res); err != nil {
			return nil, err
		}
	}
	log.Infof("run %s finished, final squared loss %g", res.RunID, res.FinalSqLoss)
	return res, nil
}

// nonZeroUpdate turns a dense delta into an update of its nonzero entries
func nonZeroUpdate(delta []float64) db.Update {
	u := db.NewUpdate(0)
	for i, d := range delta {
		if d != 0 {
			u.Add(i, d)
		}
	}
	return u
}
