package dataio

import (
	"fmt"
)

// Source locates the input of one client
type Source struct {
	XFile string // matrix file, or prefix of the partition files
	YFile string // label file, always global

	// GlobalData makes every client read the whole XFile. Otherwise the matrix
	// is split into NumPartitions files "<XFile>.<i>" and every client reads
	// NumPartitionsPerWorker consecutive ones, the last client the remainder.
	GlobalData             bool
	NumPartitions          int
	NumPartitionsPerWorker int

	ClientID   int
	NumClients int
}

// Dataset holds the feature columns and labels loaded by one client
type Dataset struct {
	Columns    []Column
	Labels     []float64
	NumSamples int
}

// NumFeatures returns the number of loaded feature columns
func (d *Dataset) NumFeatures() int {
	return len(d.Columns)
}

// PartitionRange returns the half open range of partitions read by the client of src
func PartitionRange(src Source) (begin, end int) {
	begin = src.NumPartitionsPerWorker * src.ClientID
	end = begin + src.NumPartitionsPerWorker
	if src.ClientID == src.NumClients-1 {
		end = src.NumPartitions
	}
	return begin, end
}

// Load reads the matrix and labels described by src
func Load(src Source) (*Dataset, error) {
	var (
		cols       []Column
		numSamples int
	)

	if src.GlobalData {
		meta, err := ReadMeta(src.XFile+".meta", false)
		if err != nil {
			return nil, err
		}
		cols, err = ReadLibSVM(src.XFile, meta)
		if err != nil {
			return nil, err
		}
		numSamples = meta.NumSamples
	} else {
		begin, end := PartitionRange(src)
		if begin >= end {
			return nil, fmt.Errorf("%w: client %d has no partitions (range [%d, %d))", ErrDimension, src.ClientID, begin, end)
		}
		log.Infof("client %d reads partitions [%d, %d)", src.ClientID, begin, end)

		for i := begin; i < end; i++ {
			file := fmt.Sprintf("%s.%d", src.XFile, i)
			meta, err := ReadMeta(file+".meta", true)
			if err != nil {
				return nil, err
			}
			if numSamples != 0 && meta.NumSamples != numSamples {
				return nil, fmt.Errorf("%w: partition %d has %d samples, previous partitions %d", ErrDimension, i, meta.NumSamples, numSamples)
			}
			numSamples = meta.NumSamples

			partCols, err := ReadLibSVM(file, meta)
			if err != nil {
				return nil, err
			}
			cols = append(cols, partCols...)
		}
	}

	labels, err := ReadLabels(src.YFile, numSamples)
	if err != nil {
		return nil, err
	}

	log.Infof("client %d read data: num_features: %d num_samples: %d", src.ClientID, len(cols), numSamples)
	return &Dataset{
		Columns:    cols,
		Labels:     labels,
		NumSamples: numSamples,
	}, nil
}
