package dataio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func metaContent(featureKey string, features, samples int, oneBased, compressed bool) string {
	return fmt.Sprintf("%s: %d\nnum_samples: %d\nformat: libsvm\nsample_one_based: %v\nsnappy_compressed: %v\n",
		featureKey, features, samples, oneBased, compressed)
}

func TestParseLibSVM(t *testing.T) {
	meta := Meta{NumFeatures: 2, NumSamples: 3, SampleOneBased: true}
	cols, err := ParseLibSVM(strings.NewReader("0 1:1.5 3:-2\n\n0 2:4\n"), meta)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, []int{0, 2}, cols[0].Indices)
	assert.Equal(t, []float64{1.5, -2}, cols[0].Values)
	assert.Equal(t, []int{1}, cols[1].Indices)

	dense := []float64{1, 10, 100}
	assert.Equal(t, 1.5-200, cols[0].Dot(dense))

	dst := make([]float64, 3)
	cols[0].AddScaledTo(2, dst)
	assert.Equal(t, []float64{3, 0, -4}, dst)
}

func TestParseLibSVMErrors(t *testing.T) {
	meta := Meta{NumFeatures: 1, NumSamples: 2}
	for name, tc := range map[string]struct {
		input string
		want  error
	}{
		"bad entry":         {"0 1-1\n", ErrDataFormat},
		"bad index":         {"0 x:1\n", ErrDataFormat},
		"bad value":         {"0 1:y\n", ErrDataFormat},
		"bad label":         {"l 1:1\n", ErrDataFormat},
		"sample too large":  {"0 2:1\n", ErrDataFormat},
		"not ascending":     {"0 1:1 0:1\n", ErrDataFormat},
		"too many features": {"0 0:1\n0 1:1\n", ErrDimension},
		"too few features":  {"", ErrDimension},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLibSVM(strings.NewReader(tc.input), meta)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("1\n-2.5\n3e1\n"), 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2.5, 30}, labels)

	_, err = ParseLabels(strings.NewReader("1\n2\n"), 3)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = ParseLabels(strings.NewReader("1\n2\n3\n4\n"), 3)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = ParseLabels(strings.NewReader("1\nabc\n3\n"), 3)
	assert.ErrorIs(t, err, ErrDataFormat)
}

func TestReadMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.meta")

	writeFile(t, path, metaContent("num_features", 4, 3, true, false))
	meta, err := ReadMeta(path, false)
	require.NoError(t, err)
	assert.Equal(t, Meta{NumFeatures: 4, NumSamples: 3, Format: FormatLibSVM, SampleOneBased: true}, meta)

	_, err = ReadMeta(path, true)
	assert.ErrorIs(t, err, ErrDataFormat, "partition key missing")

	writeFile(t, path, "num_features: 4\nnum_samples: 3\nformat: csv\n")
	_, err = ReadMeta(path, false)
	assert.ErrorIs(t, err, ErrDataFormat)

	writeFile(t, path, "num_features: 0\nnum_samples: 3\nformat: libsvm\n")
	_, err = ReadMeta(path, false)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestLoadGlobal(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		t.Run(fmt.Sprintf("snappy=%v", compressed), func(t *testing.T) {
			dir := t.TempDir()
			x := filepath.Join(dir, "X")
			y := filepath.Join(dir, "Y")

			data := "0 0:1 2:1\n0 1:2\n0 0:3\n"
			if compressed {
				data = string(snappy.Encode(nil, []byte(data)))
			}
			writeFile(t, x, data)
			writeFile(t, x+".meta", metaContent("num_features", 3, 3, false, compressed))
			writeFile(t, y, "1\n2\n3\n")

			ds, err := Load(Source{XFile: x, YFile: y, GlobalData: true})
			require.NoError(t, err)
			assert.Equal(t, 3, ds.NumFeatures())
			assert.Equal(t, 3, ds.NumSamples)
			assert.Equal(t, []float64{1, 2, 3}, ds.Labels)
			assert.Equal(t, []int{0}, ds.Columns[2].Indices)
		})
	}
}

func TestLoadPartitioned(t *testing.T) {
	dir := t.TempDir()
	x := filepath.Join(dir, "X")
	y := filepath.Join(dir, "Y")
	writeFile(t, y, "1\n2\n")

	// 3 partitions with 1, 2 and 3 features
	for i := 0; i < 3; i++ {
		var lines []string
		for j := 0; j <= i; j++ {
			lines = append(lines, fmt.Sprintf("0 %d:%d", j%2, i))
		}
		file := fmt.Sprintf("%s.%d", x, i)
		writeFile(t, file, strings.Join(lines, "\n")+"\n")
		writeFile(t, file+".meta", metaContent("num_features_this_partition", i+1, 2, false, false))
	}

	src := Source{XFile: x, YFile: y, NumPartitions: 3, NumPartitionsPerWorker: 1, NumClients: 2}

	begin, end := PartitionRange(src)
	assert.Equal(t, [2]int{0, 1}, [2]int{begin, end})
	ds, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.NumFeatures())

	// the last client takes the remainder
	src.ClientID = 1
	begin, end = PartitionRange(src)
	assert.Equal(t, [2]int{1, 3}, [2]int{begin, end})
	ds, err = Load(src)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.NumFeatures())

	// label count must match
	writeFile(t, y, "1\n2\n3\n")
	_, err = Load(src)
	assert.ErrorIs(t, err, ErrDimension)
}
