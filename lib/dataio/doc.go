// Package dataio loads the design matrix and labels of a Lasso problem.
//
// The matrix is stored transposed in libsvm format: every line holds one
// feature column as "<label> <sample>:<value> ...", the label is ignored.
// Every matrix file has a meta file "<file>.meta":
//
//	num_features: 1000              # or num_features_this_partition for partitions
//	num_samples: 500
//	format: libsvm
//	sample_one_based: true
//	snappy_compressed: false
//
// Compressed files are a single snappy block. Labels are plain text, one real
// value per line.
//
// Errors wrap ErrDataFormat for malformed content and ErrDimension for sizes
// that disagree with the meta data.
package dataio
