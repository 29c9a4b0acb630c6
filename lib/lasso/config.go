package lasso

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds all parameters of a solver run
type Config struct {
	// process group
	NumClients int
	NumThreads int
	ClientID   int

	// synchronization
	Staleness  int
	SkewPolicy SkewPolicy

	// optimization
	Lambda         float64
	LearningRate   float64
	NumEpochs      int
	EvalInterval   int
	MinibatchRatio float64
	NumReps        int
	Seed           uint64 // 0 draws a random seed

	// data layout. With GlobalData every process loads all features and the
	// features are split between all workers, otherwise every process loads
	// its own partitions and splits them between its threads.
	GlobalData bool

	// tables
	WTableID         uint32
	StalenessTableID uint32
	LossTableID      uint32
	UnusedTableID    uint32
	NumUnusedRows    int
	NumUnusedCols    int

	// OutputDir receives the loss and staleness.dist files, nothing is written if empty
	OutputDir string
}

// DefaultConfig returns the configuration of a single threaded run
func DefaultConfig() Config {
	return Config{
		NumClients:       1,
		NumThreads:       1,
		SkewPolicy:       SkewClamp,
		Lambda:           0.1,
		LearningRate:     0.1,
		NumEpochs:        10,
		EvalInterval:     5,
		MinibatchRatio:   0.05,
		NumReps:          1,
		GlobalData:       true,
		WTableID:         0,
		StalenessTableID: 2,
		LossTableID:      999,
		UnusedTableID:    1,
		NumUnusedCols:    1000,
	}
}

// NumWorkers returns the number of workers over all processes
func (c *Config) NumWorkers() int {
	return c.NumClients * c.NumThreads
}

// GlobalRank returns the rank of a thread of this process in the whole group
func (c *Config) GlobalRank(threadID int) int {
	return c.ClientID*c.NumThreads + threadID
}

// numEvaluations returns how many ledger rows a run fills: epoch 1 and every
// multiple of EvalInterval
func (c *Config) numEvaluations() int {
	n := c.NumEpochs / c.EvalInterval
	if c.EvalInterval > 1 {
		n++
	}
	return n
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch {
	case c.NumClients <= 0:
		return configError("num clients must be positive, got %d", c.NumClients)
	case c.NumThreads <= 0:
		return configError("num threads must be positive, got %d", c.NumThreads)
	case c.ClientID < 0 || c.ClientID >= c.NumClients:
		return configError("client id %d out of range [0, %d)", c.ClientID, c.NumClients)
	case c.Staleness < 0:
		return configError("staleness must not be negative, got %d", c.Staleness)
	case c.Lambda < 0:
		return configError("lambda must not be negative, got %g", c.Lambda)
	case c.LearningRate <= 0:
		return configError("learning rate must be positive, got %g", c.LearningRate)
	case c.NumEpochs <= 0:
		return configError("num epochs must be positive, got %d", c.NumEpochs)
	case c.EvalInterval <= 0:
		return configError("epochs per eval must be positive, got %d", c.EvalInterval)
	case c.MinibatchRatio <= 0 || c.MinibatchRatio > 1:
		return configError("minibatch ratio must be in (0, 1], got %g", c.MinibatchRatio)
	case c.NumReps < 1:
		return configError("num reps must be at least 1, got %d", c.NumReps)
	case c.NumUnusedRows < 0 || (c.NumUnusedRows > 0 && c.NumUnusedCols <= 0):
		return configError("invalid unused table shape %dx%d", c.NumUnusedRows, c.NumUnusedCols)
	}
	if _, err := ParseSkewPolicy(string(c.SkewPolicy)); err != nil {
		return err
	}
	if evals := c.numEvaluations(); evals > MaxLedgerSteps {
		return configError("%d evaluations exceed the ledger capacity of %d", evals, MaxLedgerSteps)
	}

	ids := map[uint32]string{}
	tables := []struct {
		name string
		id   uint32
		used bool
	}{
		{"w", c.WTableID, true},
		{"staleness", c.StalenessTableID, true},
		{"loss", c.LossTableID, true},
		{"unused", c.UnusedTableID, c.NumUnusedRows > 0},
	}
	for _, t := range tables {
		if !t.used {
			continue
		}
		if other, ok := ids[t.id]; ok {
			return configError("%s table and %s table share id %d", other, t.name, t.id)
		}
		ids[t.id] = t.name
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Process Group")
	addField("Num Clients", strconv.Itoa(c.NumClients))
	addField("Num Threads", strconv.Itoa(c.NumThreads))
	addField("Client ID", strconv.Itoa(c.ClientID))
	addField("Global Data", strconv.FormatBool(c.GlobalData))

	addSection("Synchronization")
	addField("Staleness", strconv.Itoa(c.Staleness))
	addField("Skew Policy", string(c.SkewPolicy))

	addSection("Optimization")
	addField("Lambda", formatValue(c.Lambda))
	addField("Learning Rate", formatValue(c.LearningRate))
	addField("Num Epochs", strconv.Itoa(c.NumEpochs))
	addField("Epochs Per Eval", strconv.Itoa(c.EvalInterval))
	addField("Minibatch Ratio", formatValue(c.MinibatchRatio))
	addField("Num Reps", strconv.Itoa(c.NumReps))
	addField("Seed", strconv.FormatUint(c.Seed, 10))

	addSection("Tables")
	addField("W Table", strconv.FormatUint(uint64(c.WTableID), 10))
	addField("Staleness Table", strconv.FormatUint(uint64(c.StalenessTableID), 10))
	addField("Loss Table", strconv.FormatUint(uint64(c.LossTableID), 10))
	if c.NumUnusedRows > 0 {
		addField("Unused Table", fmt.Sprintf("%d (%dx%d)", c.UnusedTableID, c.NumUnusedRows, c.NumUnusedCols))
	}

	addSection("Output")
	addField("Output Directory", c.OutputDir)

	return sb.String()
}
