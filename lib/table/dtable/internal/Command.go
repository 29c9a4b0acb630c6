package internal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/dLasso/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCreateTable CommandType = iota // Provision a table.
	CommandTInc                            // Add a delta to one cell.
	CommandTBatchInc                       // Add a sparse update to one row.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCreateTable:
		return "CreateTable"
	case CommandTInc:
		return "Inc"
	case CommandTBatchInc:
		return "BatchInc"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTCreateTable:
		return db.FeatureCreateTable, nil
	case CommandTInc:
		return db.FeatureInc, nil
	case CommandTBatchInc:
		return db.FeatureBatchInc, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

const (
	headerSize = 1 + 4 + 8 + 4 // Type + Table + Row + Count
	tableSize  = 4 + 4         // RowCapacity + Staleness
	updateSize = 4 + 8         // Column + Delta
)

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type   CommandType
	Table  uint32
	Row    uint64
	Info   db.TableInfo // only for CommandTCreateTable
	Update db.Update    // only for CommandTInc and CommandTBatchInc
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	if command.Type == CommandTCreateTable {
		return headerSize + tableSize
	}
	return headerSize + updateSize*len(command.Update.Cols)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for the table id,
// 8 bytes for the row id,
// 4 bytes for the entry count N,
// then either 4 bytes row capacity and 4 bytes staleness (CreateTable)
// or N times 4 bytes column and 8 bytes float64 delta (Inc, BatchInc).
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], command.Table)
	binary.BigEndian.PutUint64(result[5:13], command.Row)

	if command.Type == CommandTCreateTable {
		binary.BigEndian.PutUint32(result[13:17], 0)
		binary.BigEndian.PutUint32(result[17:21], uint32(command.Info.RowCapacity))
		binary.BigEndian.PutUint32(result[21:25], uint32(int32(command.Info.Staleness)))
		return result
	}

	n := len(command.Update.Cols)
	binary.BigEndian.PutUint32(result[13:17], uint32(n))
	off := headerSize
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(result[off:off+4], uint32(int32(command.Update.Cols[i])))
		binary.BigEndian.PutUint64(result[off+4:off+12], math.Float64bits(command.Update.Deltas[i]))
		off += updateSize
	}
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Table = binary.BigEndian.Uint32(data[1:5])
	command.Row = binary.BigEndian.Uint64(data[5:13])
	n := int(binary.BigEndian.Uint32(data[13:17]))

	if command.Type == CommandTCreateTable {
		if len(data) < headerSize+tableSize {
			return fmt.Errorf("data too short for table info")
		}
		command.Info = db.TableInfo{
			RowCapacity: int(binary.BigEndian.Uint32(data[17:21])),
			Staleness:   int(int32(binary.BigEndian.Uint32(data[21:25]))),
		}
		command.Update = db.Update{}
		return nil
	}

	if len(data) != headerSize+updateSize*n {
		return fmt.Errorf("data length %d does not match %d update entries", len(data), n)
	}

	// Reuse existing buffers if possible to reduce allocations
	if cap(command.Update.Cols) < n {
		command.Update = db.NewUpdate(n)
	}
	command.Update.Cols = command.Update.Cols[:n]
	command.Update.Deltas = command.Update.Deltas[:n]

	off := headerSize
	for i := 0; i < n; i++ {
		command.Update.Cols[i] = int(int32(binary.BigEndian.Uint32(data[off : off+4])))
		command.Update.Deltas[i] = math.Float64frombits(binary.BigEndian.Uint64(data[off+4 : off+12]))
		off += updateSize
	}
	return nil
}
