package dataio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("dataio")

var (
	// ErrDataFormat marks malformed input files
	ErrDataFormat = errors.New("data format error")
	// ErrDimension marks files whose sizes disagree with their meta data or with each other
	ErrDimension = errors.New("dimension mismatch")
)

// Column is one sparse feature column: Values[i] is the entry of sample Indices[i].
// Indices are zero based and ascending.
type Column struct {
	Indices []int
	Values  []float64
}

// Dot returns the dot product of the column with a dense vector, summing over
// the nonzero entries of the column only
func (c Column) Dot(dense []float64) float64 {
	var sum float64
	for i, idx := range c.Indices {
		sum += c.Values[i] * dense[idx]
	}
	return sum
}

// AddScaledTo adds alpha times the column to dst
func (c Column) AddScaledTo(alpha float64, dst []float64) {
	if alpha == 0 {
		return
	}
	for i, idx := range c.Indices {
		dst[idx] += alpha * c.Values[i]
	}
}

// NNZ returns the number of stored entries
func (c Column) NNZ() int {
	return len(c.Indices)
}

// openData returns a reader over the content of path, snappy decoded if compressed
func openData(path string, compressed bool) (io.Reader, func() error, error) {
	if !compressed {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: snappy decode %s: %v", ErrDataFormat, path, err)
	}
	return bytes.NewReader(decoded), func() error { return nil }, nil
}

// ReadLibSVM reads a transposed libsvm file: every line is one feature column
// "<label> <sample>:<value> ...". The leading label is ignored.
// The file must contain exactly meta.NumFeatures lines.
func ReadLibSVM(path string, meta Meta) ([]Column, error) {
	log.Infof("reading %s (%d features, %d samples)", path, meta.NumFeatures, meta.NumSamples)

	r, closeFn, err := openData(path, meta.SnappyCompressed)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cols, err := ParseLibSVM(r, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cols, nil
}

// ParseLibSVM parses transposed libsvm lines from r, see ReadLibSVM
func ParseLibSVM(r io.Reader, meta Meta) ([]Column, error) {
	offset := 0
	if meta.SampleOneBased {
		offset = 1
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 256*1024*1024)

	cols := make([]Column, 0, meta.NumFeatures)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Fields(text)
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid label %q", ErrDataFormat, line, fields[0])
		}

		col := Column{
			Indices: make([]int, 0, len(fields)-1),
			Values:  make([]float64, 0, len(fields)-1),
		}
		prev := -1
		for _, f := range fields[1:] {
			idxStr, valStr, ok := strings.Cut(f, ":")
			if !ok {
				return nil, fmt.Errorf("%w: line %d: invalid entry %q", ErrDataFormat, line, f)
			}
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid sample index %q", ErrDataFormat, line, idxStr)
			}
			val, err := strconv.ParseFloat(valStr, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid value %q", ErrDataFormat, line, valStr)
			}
			idx -= offset
			if idx < 0 || idx >= meta.NumSamples {
				return nil, fmt.Errorf("%w: line %d: sample %d outside [0, %d)", ErrDataFormat, line, idx, meta.NumSamples)
			}
			if idx <= prev {
				return nil, fmt.Errorf("%w: line %d: sample indices not ascending", ErrDataFormat, line)
			}
			prev = idx
			col.Indices = append(col.Indices, idx)
			col.Values = append(col.Values, val)
		}
		cols = append(cols, col)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataFormat, err)
	}

	if len(cols) != meta.NumFeatures {
		return nil, fmt.Errorf("%w: read %d feature columns, meta data says %d", ErrDimension, len(cols), meta.NumFeatures)
	}
	return cols, nil
}

// ReadLabels reads one real label per line. The file must hold exactly numSamples labels.
func ReadLabels(path string, numSamples int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	labels, err := ParseLabels(f, numSamples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// ParseLabels parses labels from r, see ReadLabels
func ParseLabels(r io.Reader, numSamples int) ([]float64, error) {
	labels := make([]float64, 0, numSamples)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if len(labels) == numSamples {
			return nil, fmt.Errorf("%w: more than %d labels", ErrDimension, numSamples)
		}
		y, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid label %q", ErrDataFormat, line, text)
		}
		labels = append(labels, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataFormat, err)
	}
	if len(labels) != numSamples {
		return nil, fmt.Errorf("%w: read %d labels, expected %d", ErrDimension, len(labels), numSamples)
	}
	return labels, nil
}
