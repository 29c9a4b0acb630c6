package serializer

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dLasso/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into the Message msg points to.
	// Fields absent in b are reset.
	Deserialize(b []byte, msg *common.Message) error
}

// New returns the serializer with the given name: binary, json, gob,
// or one of them prefixed with "snappy-"
func New(name string) (IRPCSerializer, error) {
	if inner, ok := strings.CutPrefix(name, "snappy-"); ok {
		s, err := New(inner)
		if err != nil {
			return nil, err
		}
		return NewSnappySerializer(s), nil
	}
	switch name {
	case "binary":
		return NewBinarySerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}
