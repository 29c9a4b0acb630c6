package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dLasso/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: type (1 byte), flags (1 byte), then every present field in the order
// of the flags. Integers are big endian, floats are their IEEE 754 bits,
// lists and strings are prefixed by a uint32 length.
type binarySerializerImpl struct{}

// Bit flags to indicate which optional fields are present
const (
	hasTable  byte = 1 << 0
	hasRow    byte = 1 << 1
	hasCols   byte = 1 << 2
	hasValues byte = 1 << 3
	hasShape  byte = 1 << 4 // RowCapacity and Staleness
	hasCode   byte = 1 << 5
	hasErr    byte = 1 << 6
	hasMeta   byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Table != 0 {
		flags |= hasTable
		result = binary.BigEndian.AppendUint32(result, msg.Table)
	}
	if msg.Row != 0 {
		flags |= hasRow
		result = binary.BigEndian.AppendUint64(result, msg.Row)
	}
	if len(msg.Cols) > 0 {
		flags |= hasCols
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Cols)))
		for _, c := range msg.Cols {
			if c < math.MinInt32 || c > math.MaxInt32 {
				return nil, fmt.Errorf("column %d does not fit 32 bits", c)
			}
			result = binary.BigEndian.AppendUint32(result, uint32(int32(c)))
		}
	}
	if len(msg.Values) > 0 {
		flags |= hasValues
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Values)))
		for _, v := range msg.Values {
			result = binary.BigEndian.AppendUint64(result, math.Float64bits(v))
		}
	}
	if msg.RowCapacity != 0 || msg.Staleness != 0 {
		flags |= hasShape
		result = binary.BigEndian.AppendUint32(result, msg.RowCapacity)
		result = binary.BigEndian.AppendUint32(result, msg.Staleness)
	}
	if msg.Code != 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Err)))
		result = append(result, msg.Err...)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Meta)))
		result = append(result, msg.Meta...)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := reader{data: data, pos: 2}

	if flags&hasTable != 0 {
		msg.Table = r.uint32("table")
	}
	if flags&hasRow != 0 {
		msg.Row = r.uint64("row")
	}
	if flags&hasCols != 0 {
		n := r.length("cols", 4)
		msg.Cols = make([]int, n)
		for i := range msg.Cols {
			msg.Cols[i] = int(int32(r.uint32("cols")))
		}
	}
	if flags&hasValues != 0 {
		n := r.length("values", 8)
		msg.Values = make([]float64, n)
		for i := range msg.Values {
			msg.Values[i] = math.Float64frombits(r.uint64("values"))
		}
	}
	if flags&hasShape != 0 {
		msg.RowCapacity = r.uint32("row capacity")
		msg.Staleness = r.uint32("staleness")
	}
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}
	if flags&hasMeta != 0 {
		msg.Meta = append([]byte{}, r.bytes("meta")...)
	}

	if r.err != nil {
		return r.err
	}
	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-r.pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Table != 0 {
		size += 4
	}
	if msg.Row != 0 {
		size += 8
	}
	if len(msg.Cols) > 0 {
		size += 4 + 4*len(msg.Cols)
	}
	if len(msg.Values) > 0 {
		size += 4 + 8*len(msg.Values)
	}
	if msg.RowCapacity != 0 || msg.Staleness != 0 {
		size += 8
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	return size
}

// reader reads big endian fields and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(field string, n int) []byte {
	if r.err == nil && (n < 0 || r.pos+n > len(r.data)) {
		r.err = fmt.Errorf("data too short for %s", field)
	}
	if r.err != nil {
		// zeros for the fixed size readers, the message is discarded anyway
		return make([]byte, min(max(n, 0), 8))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) uint32(field string) uint32 {
	return binary.BigEndian.Uint32(r.take(field, 4))
}

func (r *reader) uint64(field string) uint64 {
	return binary.BigEndian.Uint64(r.take(field, 8))
}

// length reads a list length and checks that the list fits the remaining data
func (r *reader) length(field string, elemSize int) int {
	n := int(r.uint32(field + " length"))
	if r.err == nil && n*elemSize > len(r.data)-r.pos {
		r.err = fmt.Errorf("data too short for %s", field)
	}
	if r.err != nil {
		return 0
	}
	return n
}

func (r *reader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	return r.take(field, n)
}
