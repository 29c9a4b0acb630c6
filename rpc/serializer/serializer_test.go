package serializer

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":         NewJSONSerializer,
	"GOB":          NewGOBSerializer,
	"Binary":       NewBinarySerializer,
	"SnappyBinary": func() IRPCSerializer { return NewSnappySerializer(NewBinarySerializer()) },
	"SnappyJSON":   func() IRPCSerializer { return NewSnappySerializer(NewJSONSerializer()) },
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Requests
		*common.NewCreateTableRequest(3, db.TableInfo{RowCapacity: 1000, Staleness: 2}),
		*common.NewGetRequest(0, 7),
		*common.NewIncRequest(1<<31, 1, 4, -1.5),
		*common.NewBatchIncRequest(2, 0, db.Update{Cols: []int{0, 5, 5, 1 << 20}, Deltas: []float64{0.1, -2, 1e-300, math.MaxFloat64}}),
		*common.NewInfoRequest(),

		// Responses
		*common.NewGetResponse([]float64{0, 1.25, -3}, nil),
		*common.NewBatchIncResponse(table.NewError(table.RetCOutOfRange, "column 9 out of range")),
		*common.NewInfoResponse(db.DatabaseInfo{DbType: db.ImplDense, NumTables: 2}, nil),

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsMessage tests that a reused message does not keep fields of the previous one
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			full, err := serializer.Serialize(*common.NewBatchIncRequest(2, 9, db.DenseUpdate([]float64{1, 2}, 0)))
			if err != nil {
				t.Fatal(err)
			}
			empty, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})
			if err != nil {
				t.Fatal(err)
			}

			var msg common.Message
			if err := serializer.Deserialize(full, &msg); err != nil {
				t.Fatal(err)
			}
			if err := serializer.Deserialize(empty, &msg); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(common.Message{MsgType: common.MsgTSuccess}, msg) {
				t.Errorf("fields survived deserialization: %+v", msg)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTTblInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorCodeSurvivesRoundTrip tests that table errors keep their code over the wire
func TestErrorCodeSurvivesRoundTrip(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(*common.NewGetResponse(nil, table.NewError(table.RetCUnknownTable, "table 4 does not exist")))
	if err != nil {
		t.Fatal(err)
	}
	var msg common.Message
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatal(err)
	}

	got := msg.Error()
	if !table.HasCode(got, table.RetCUnknownTable) {
		t.Errorf("expected unknown table error, got %v", got)
	}

	var te *table.Error
	if !errors.As(got, &te) || te.Msg != "table 4 does not exist" {
		t.Errorf("message lost: %v", got)
	}

	if err := common.NewGetResponse([]float64{1}, nil).Error(); err != nil {
		t.Errorf("successful response carries error %v", err)
	}
}

// TestBinaryNegativeColumns tests that columns keep their sign, the store rejects them later
func TestBinaryNegativeColumns(t *testing.T) {
	serializer := NewBinarySerializer()
	in := common.Message{MsgType: common.MsgTTblBatchInc, Cols: []int{-1, 3}, Values: []float64{1, 2}}

	data, err := serializer.Serialize(in)
	if err != nil {
		t.Fatal(err)
	}
	var out common.Message
	if err := serializer.Deserialize(data, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("expected %+v, got %+v", in, out)
	}

	if _, err := serializer.Serialize(common.Message{Cols: []int{math.MaxInt32 + 1}}); err == nil {
		t.Errorf("expected error for a column exceeding 32 bits")
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Truncated table",
			data:        []byte{4, hasTable, 0, 0}, // table needs 4 bytes
			expectError: true,
		},
		{
			name:        "Invalid length for values",
			data:        []byte{6, hasValues, 0, 0, 0, 10, 0, 0, 0, 0, 0, 0, 0, 0}, // claims 10 values, has one
			expectError: true,
		},
		{
			name:        "Huge length for error",
			data:        []byte{2, hasErr, 0xff, 0xff, 0xff, 0xff, 'x'},
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 42},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob", "snappy-binary", "snappy-json"} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "xml", "snappy-", "snappy-snappy-x"} {
		if _, err := New(name); err == nil {
			t.Errorf("New(%q) should fail", name)
		}
	}
}
