package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/golang/snappy"
)

// NewJSONSerializer creates a serializer using json encoding. Message types are
// written as names, which makes captured traffic readable.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

// NewGOBSerializer creates a serializer using Go's gob format
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob leaves fields with zero values untouched
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}

// NewSnappySerializer wraps a serializer and snappy compresses its output
func NewSnappySerializer(inner IRPCSerializer) IRPCSerializer {
	return snappySerializerImpl{inner: inner}
}

type snappySerializerImpl struct {
	inner IRPCSerializer
}

func (s snappySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	raw, err := s.inner.Serialize(msg)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (s snappySerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return err
	}
	return s.inner.Deserialize(raw, msg)
}
