package internal

import "github.com/ValentinKolb/dLasso/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGetRow       QueryType = iota // Retrieve a row.
	QueryTGetTableInfo                  // Retrieve the configuration of a table.
	QueryTGetDBInfo                     // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGetRow:
		return "GetRow"
	case QueryTGetTableInfo:
		return "GetTableInfo"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type  QueryType // The type of Query to perform.
	Table uint32
	Row   uint64
}

// TableInfoResult is the result of a QueryTGetTableInfo operation.
// All other query results are slices or predefined structs ([]float64, db.DatabaseInfo).
type TableInfoResult struct {
	Ok   bool
	Info db.TableInfo
}
