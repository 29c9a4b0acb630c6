package lasso

import (
	"github.com/ValentinKolb/dLasso/lib/dataio"
)

// FeaturePartition is the half open range [Start, End) of feature columns owned by one worker
type FeaturePartition struct {
	Start int
	End   int
}

// Len returns the number of features in the partition
func (p FeaturePartition) Len() int {
	return p.End - p.Start
}

// PartitionFeatures divides numFeatures evenly between numWorkers workers and
// returns the range of the given rank. The last worker receives the remainder.
// Ranges of different ranks never overlap, which is what keeps the
// prediction contributions of the workers disjoint.
func PartitionFeatures(numFeatures, numWorkers, rank int) (FeaturePartition, error) {
	if numWorkers <= 0 {
		return FeaturePartition{}, configError("number of workers must be positive, got %d", numWorkers)
	}
	if rank < 0 || rank >= numWorkers {
		return FeaturePartition{}, configError("rank %d out of range [0, %d)", rank, numWorkers)
	}

	perWorker := numFeatures / numWorkers
	p := FeaturePartition{Start: rank * perWorker, End: (rank + 1) * perWorker}
	if rank == numWorkers-1 {
		p.End = numFeatures
	}
	if p.Len() <= 0 {
		return FeaturePartition{}, configError("worker %d owns no features (%d features, %d workers)", rank, numFeatures, numWorkers)
	}
	return p, nil
}

// SparseColumnStore holds the feature columns loaded by one process.
// It is read only after construction and shared by all workers of the process.
type SparseColumnStore struct {
	columns    []dataio.Column
	numSamples int
}

// NewSparseColumnStore checks that every entry of every column addresses one of numSamples samples
func NewSparseColumnStore(columns []dataio.Column, numSamples int) (*SparseColumnStore, error) {
	if numSamples <= 0 {
		return nil, configError("number of samples must be positive, got %d", numSamples)
	}
	for j, col := range columns {
		if len(col.Indices) != len(col.Values) {
			return nil, configError("column %d has %d indices but %d values", j, len(col.Indices), len(col.Values))
		}
		for _, idx := range col.Indices {
			if idx < 0 || idx >= numSamples {
				return nil, configError("column %d addresses sample %d, only %d samples", j, idx, numSamples)
			}
		}
	}
	return &SparseColumnStore{columns: columns, numSamples: numSamples}, nil
}

// NumFeatures returns the number of stored columns
func (s *SparseColumnStore) NumFeatures() int {
	return len(s.columns)
}

// NumSamples returns the length of every column
func (s *SparseColumnStore) NumSamples() int {
	return s.numSamples
}

// Column returns column j
func (s *SparseColumnStore) Column(j int) dataio.Column {
	return s.columns[j]
}

// View returns the columns of the partition. It fails if the partition
// reaches past the stored columns.
func (s *SparseColumnStore) View(p FeaturePartition) ([]dataio.Column, error) {
	if p.Start < 0 || p.End > len(s.columns) || p.Len() <= 0 {
		return nil, configError("partition [%d, %d) outside of the %d loaded features", p.Start, p.End, len(s.columns))
	}
	return s.columns[p.Start:p.End], nil
}
