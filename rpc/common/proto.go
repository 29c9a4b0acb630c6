package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Addressing
	Table uint32 `json:"table,omitempty"` // Used for: all table operations
	Row   uint64 `json:"row,omitempty"`   // Used for: Get, Inc, BatchInc

	// Payload
	Cols        []int     `json:"cols,omitempty"`         // Used for: Inc, BatchInc
	Values      []float64 `json:"values,omitempty"`       // Used for: Inc, BatchInc (request), Get (response)
	RowCapacity uint32    `json:"row_capacity,omitempty"` // Used for: CreateTable
	Staleness   uint32    `json:"staleness,omitempty"`    // Used for: CreateTable

	// Response only fields
	Code uint64 `json:"code,omitempty"` // table.RetCode of the error, 0 on success
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info (response), json encoded db.DatabaseInfo
}

// SetErr stores err in the response. Errors of the table package keep their code.
func (m *Message) SetErr(err error) {
	if err == nil {
		return
	}
	m.Err = err.Error()
	m.Code = uint64(table.RetCInternalError)
	if te, ok := err.(*table.Error); ok {
		m.Code = uint64(te.Code)
		m.Err = te.Msg
	}
}

// Error returns the error carried by a response, nil if there is none
func (m *Message) Error() error {
	if m.MsgType == MsgTError {
		return table.NewError(table.RetCInternalError, m.Err)
	}
	if m.Err == "" && m.Code == 0 {
		return nil
	}
	code := table.RetCode(m.Code)
	if code == table.RetCSuccess {
		code = table.RetCInternalError
	}
	return table.NewError(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCreateTableRequest creates a new CreateTable request
func NewCreateTableRequest(t uint32, info db.TableInfo) *Message {
	return &Message{
		MsgType:     MsgTTblCreate,
		Table:       t,
		RowCapacity: uint32(info.RowCapacity),
		Staleness:   uint32(info.Staleness),
	}
}

// TableInfo returns the table configuration of a CreateTable request
func (m *Message) TableInfo() db.TableInfo {
	return db.TableInfo{RowCapacity: int(m.RowCapacity), Staleness: int(m.Staleness)}
}

// NewCreateTableResponse creates a new CreateTable response
func NewCreateTableResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTTblCreate,
	}
	msg.SetErr(err)
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(t uint32, row uint64) *Message {
	return &Message{
		MsgType: MsgTTblGet,
		Table:   t,
		Row:     row,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(values []float64, err error) *Message {
	msg := &Message{
		MsgType: MsgTTblGet,
		Values:  values,
	}
	msg.SetErr(err)
	return msg
}

// NewIncRequest creates a new Inc request
func NewIncRequest(t uint32, row uint64, col int, delta float64) *Message {
	return &Message{
		MsgType: MsgTTblInc,
		Table:   t,
		Row:     row,
		Cols:    []int{col},
		Values:  []float64{delta},
	}
}

// NewIncResponse creates a new Inc response
func NewIncResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTTblInc,
	}
	msg.SetErr(err)
	return msg
}

// NewBatchIncRequest creates a new BatchInc request
func NewBatchIncRequest(t uint32, row uint64, update db.Update) *Message {
	return &Message{
		MsgType: MsgTTblBatchInc,
		Table:   t,
		Row:     row,
		Cols:    update.Cols,
		Values:  update.Deltas,
	}
}

// Update returns the update of an Inc or BatchInc request
func (m *Message) Update() db.Update {
	return db.Update{Cols: m.Cols, Deltas: m.Values}
}

// NewBatchIncResponse creates a new BatchInc response
func NewBatchIncResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTTblBatchInc,
	}
	msg.SetErr(err)
	return msg
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTTblInfo,
	}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info db.DatabaseInfo, err error) *Message {
	msg := &Message{
		MsgType: MsgTTblInfo,
	}
	if err != nil {
		msg.SetErr(err)
		return msg
	}
	meta, err := json.Marshal(info)
	if err != nil {
		msg.SetErr(fmt.Errorf("encode database info: %w", err))
		return msg
	}
	msg.Meta = meta
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTTblCreate:
		return "create"
	case MsgTTblGet:
		return "get"
	case MsgTTblInc:
		return "inc"
	case MsgTTblBatchInc:
		return "batchInc"
	case MsgTTblInfo:
		return "info"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "create":
		*t = MsgTTblCreate
	case "get":
		*t = MsgTTblGet
	case "inc":
		*t = MsgTTblInc
	case "batchInc":
		*t = MsgTTblBatchInc
	case "info":
		*t = MsgTTblInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ITableStore operations

	MsgTTblCreate   // Create a table
	MsgTTblGet      // Read a row
	MsgTTblInc      // Increment a single cell
	MsgTTblBatchInc // Increment several cells of a row
	MsgTTblInfo     // Get information about the database
)
