package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLasso/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.RowDB

// ITableStore is the interface for interacting with a store of float64 tables.
// Rows only change through additive increments, so updates from different
// writers commute and need no coordination. All methods return a *Error on failure.
type ITableStore interface {
	// CreateTable provisions a table. It must be called before any row of the
	// table is read or written. Creating a table twice with the same info is a no-op.
	CreateTable(table uint32, info db.TableInfo) (err error)
	// Get returns a copy of a row. Rows never written are all zero.
	Get(table uint32, row uint64) (values []float64, err error)
	// Inc adds delta to a single cell of a row.
	Inc(table uint32, row uint64, col int, delta float64) (err error)
	// BatchInc applies all (column, delta) pairs of update to a row atomically.
	BatchInc(table uint32, row uint64, update db.Update) (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// IRowWaiter is implemented by stores that can notify about writes.
// Stores without it are polled by callers that need to wait for a row.
type IRowWaiter interface {
	// WaitRow blocks until cond returns true for the current content of the row
	// and returns that content. It returns ctx.Err() if the context ends first.
	WaitRow(ctx context.Context, table uint32, row uint64, cond func(values []float64) bool) (values []float64, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("TableStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// FromDBError converts an error returned by a db.RowDB into an *Error with a matching code
func FromDBError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, db.ErrUnknownTable):
		return NewError(RetCUnknownTable, err.Error())
	case errors.Is(err, db.ErrColumnOutOfRange):
		return NewError(RetCOutOfRange, err.Error())
	case errors.Is(err, db.ErrTableExists),
		errors.Is(err, db.ErrInvalidUpdate),
		errors.Is(err, db.ErrInvalidCapacity):
		return NewError(RetCInvalidOperation, err.Error())
	default:
		return NewError(RetCInternalError, err.Error())
	}
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCUnknownTable                        // 4: The table was never created.
	RetCOutOfRange                          // 5: A column index is outside the row.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnknownTable:
		return "UnknownTable"
	case RetCOutOfRange:
		return "OutOfRange"
	default:
		return "Unknown"
	}
}
