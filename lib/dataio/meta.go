package dataio

import (
	"fmt"

	"github.com/spf13/viper"
)

// FormatLibSVM is the only supported matrix format
const FormatLibSVM = "libsvm"

// Meta describes one matrix file. It is read from "<file>.meta", a list of
// "key: value" lines.
type Meta struct {
	NumFeatures      int    // features (lines) in the file
	NumSamples       int    // length of every feature column
	Format           string // must be libsvm
	SampleOneBased   bool   // sample indices start at 1
	SnappyCompressed bool   // the file is a snappy block
}

// ReadMeta reads a meta file. Partition files carry their feature count
// under num_features_this_partition, global files under num_features.
func ReadMeta(path string, partition bool) (Meta, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Meta{}, fmt.Errorf("%w: read meta file %s: %v", ErrDataFormat, path, err)
	}

	featureKey := "num_features"
	if partition {
		featureKey = "num_features_this_partition"
	}
	for _, key := range []string{featureKey, "num_samples", "format"} {
		if !v.IsSet(key) {
			return Meta{}, fmt.Errorf("%w: meta file %s misses key %q", ErrDataFormat, path, key)
		}
	}

	m := Meta{
		NumFeatures:      v.GetInt(featureKey),
		NumSamples:       v.GetInt("num_samples"),
		Format:           v.GetString("format"),
		SampleOneBased:   v.GetBool("sample_one_based"),
		SnappyCompressed: v.GetBool("snappy_compressed"),
	}

	if m.Format != FormatLibSVM {
		return Meta{}, fmt.Errorf("%w: %s: only %s is supported, got %q", ErrDataFormat, path, FormatLibSVM, m.Format)
	}
	if m.NumFeatures <= 0 || m.NumSamples <= 0 {
		return Meta{}, fmt.Errorf("%w: %s: %d features, %d samples", ErrDimension, path, m.NumFeatures, m.NumSamples)
	}
	return m, nil
}
