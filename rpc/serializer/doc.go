// Package serializer converts rpc messages to bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: interface all serializers satisfy. New selects one by name.
//
//   - binarySerializerImpl: custom binary format. A flag byte marks the present
//     fields and only those are written, rows travel as raw float64 bits.
//     Recommended for production use.
//
//   - jsonSerializerImpl: json encoding, human readable, useful for debugging.
//
//   - gobSerializerImpl: Go's gob encoding. Larger and slower than binary, kept
//     for comparison in the benchmarks.
//
//   - snappySerializerImpl: wraps any of the above and snappy compresses the
//     output, worthwhile for large rows with many repeated values.
//
// Thread Safety:
//
//	All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.New("snappy-binary")
//	data, err := s.Serialize(message)
//	// ... send data ...
//	var received common.Message
//	err = s.Deserialize(receivedData, &received)
package serializer
