package lasso

import (
	"github.com/ValentinKolb/dLasso/lib/dataio"
	"gonum.org/v1/gonum/floats"
)

// gradientScale is the factor c of g_j = c * (x_j . (w - y)). With c = 1 the
// matching objective is 0.5 * ||w - y||^2, see EvalSqLoss.
const gradientScale = 1.0

// SoftThreshold is the proximal operator of theta * |x|
func SoftThreshold(x, theta float64) float64 {
	switch {
	case x > theta:
		return x - theta
	case x < -theta:
		return x + theta
	default:
		return 0
	}
}

// UpdaterConfig configures a ProximalUpdater
type UpdaterConfig struct {
	Lambda     float64 // weight of the L1 penalty
	SampleSize int     // number of coordinates updated per step, the whole partition if <= 0
	NumReps    int     // local repetitions per published delta, at least 1
}

// StepResult is the outcome of one ProximalUpdater.Step
type StepResult struct {
	// Coords are the updated coordinates relative to the partition start, ascending
	Coords []int
	// CoefDelta[i] is the committed change of coefficient Coords[i]
	CoefDelta []float64
	// PredictionDelta is the change of the prediction vector, the value published to shared state
	PredictionDelta []float64
}

// ProximalUpdater owns the coefficients of one feature partition and computes
// proximal gradient steps for them. It is owned by a single worker.
type ProximalUpdater struct {
	columns []dataio.Column
	labels  []float64
	beta    []float64
	cfg     UpdaterConfig
	sampler *ReservoirSampler

	residual []float64
	grad     []float64
}

// NewProximalUpdater creates an updater with all coefficients zero
func NewProximalUpdater(columns []dataio.Column, labels []float64, cfg UpdaterConfig, sampler *ReservoirSampler) (*ProximalUpdater, error) {
	numFeatures := len(columns)
	if numFeatures <= 0 {
		return nil, configError("updater owns no features")
	}
	if len(labels) == 0 {
		return nil, configError("updater has no labels")
	}
	if cfg.Lambda < 0 {
		return nil, configError("lambda must not be negative, got %g", cfg.Lambda)
	}
	if cfg.SampleSize <= 0 || cfg.SampleSize > numFeatures {
		cfg.SampleSize = numFeatures
	}
	if cfg.NumReps < 1 {
		cfg.NumReps = 1
	}
	if cfg.SampleSize < numFeatures && sampler == nil {
		return nil, configError("sampling %d of %d features needs a sampler", cfg.SampleSize, numFeatures)
	}

	return &ProximalUpdater{
		columns:  columns,
		labels:   labels,
		beta:     make([]float64, numFeatures),
		cfg:      cfg,
		sampler:  sampler,
		residual: make([]float64, len(labels)),
		grad:     make([]float64, cfg.SampleSize),
	}, nil
}

// NumFeatures returns the number of owned coefficients
func (p *ProximalUpdater) NumFeatures() int {
	return len(p.beta)
}

// SampleSize returns the number of coordinates updated per step
func (p *ProximalUpdater) SampleSize() int {
	return p.cfg.SampleSize
}

// Beta returns a copy of the coefficients
func (p *ProximalUpdater) Beta() []float64 {
	return append([]float64(nil), p.beta...)
}

// Step computes one proximal gradient step from the prediction vector w.
// The coefficients of the first repetition are committed, the prediction
// effect of all repetitions is accumulated into the result.
// localClock is only used for logging.
func (p *ProximalUpdater) Step(w []float64, learningRate float64, localClock int) (StepResult, error) {
	if len(w) != len(p.labels) {
		return StepResult{}, configError("prediction vector has length %d, expected %d", len(w), len(p.labels))
	}
	if learningRate <= 0 {
		return StepResult{}, configError("learning rate must be positive, got %g", learningRate)
	}

	floats.SubTo(p.residual, w, p.labels)

	coords := allCoords(len(p.beta))
	if p.cfg.SampleSize < len(p.beta) {
		var err error
		if coords, err = p.sampler.Sample(len(p.beta), p.cfg.SampleSize); err != nil {
			return StepResult{}, err
		}
	}

	// w is not refreshed between repetitions, so the gradient is shared by all of them
	for i, j := range coords {
		p.grad[i] = gradientScale * p.columns[j].Dot(p.residual)
	}

	res := StepResult{
		Coords:          coords,
		CoefDelta:       make([]float64, len(coords)),
		PredictionDelta: make([]float64, len(p.labels)),
	}
	theta := learningRate * p.cfg.Lambda
	for rep := 0; rep < p.cfg.NumReps; rep++ {
		for i, j := range coords {
			next := SoftThreshold(p.beta[j]-learningRate*p.grad[i], theta)
			delta := next - p.beta[j]
			if rep == 0 {
				res.CoefDelta[i] = delta
				p.beta[j] = next
			}
			p.columns[j].AddScaledTo(delta, res.PredictionDelta)
		}
	}

	log.Debugf("clock %d: updated %d of %d coordinates", localClock, len(coords), len(p.beta))
	return res, nil
}

// EvalL1Penalty returns lambda * ||beta||_1 of the owned coefficients
func (p *ProximalUpdater) EvalL1Penalty() float64 {
	return p.cfg.Lambda * floats.Norm(p.beta, 1)
}

// BetaNNZ returns the number of nonzero owned coefficients
func (p *ProximalUpdater) BetaNNZ() int {
	nnz := 0
	for _, b := range p.beta {
		if b != 0 {
			nnz++
		}
	}
	return nnz
}

// EvalSqLoss returns 0.5 * ||w - y||^2
func EvalSqLoss(w, y []float64) float64 {
	e := make([]float64, len(w))
	floats.SubTo(e, w, y)
	return 0.5 * floats.Dot(e, e)
}

func allCoords(n int) []int {
	coords := make([]int, n)
	for i := range coords {
		coords[i] = i
	}
	return coords
}
