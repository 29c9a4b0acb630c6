package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplDense Implementation = "dense"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureCreateTable Feature = 1 << iota // Support for CreateTable operations
	FeatureGet                             // Support for GetRow operations
	FeatureInc                             // Support for Inc operations
	FeatureBatchInc                        // Support for BatchInc operations
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureCreateTable:
		return "CreateTable"
	case FeatureGet:
		return "Get"
	case FeatureInc:
		return "Inc"
	case FeatureBatchInc:
		return "BatchInc"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

// TableInfo describes the shape of a table. All rows of a table have the same capacity.
type TableInfo struct {
	RowCapacity int `json:"row_capacity"`
	// Staleness is the SSP staleness bound the table is read under. The database
	// only stores it, enforcing the bound is the job of the ssp package.
	Staleness int `json:"staleness"`
}

// Update is a sparse additive update for a single row.
// Cols[i] receives Deltas[i]. A column may appear more than once, the deltas add up.
type Update struct {
	Cols   []int     `json:"cols"`
	Deltas []float64 `json:"deltas"`
}

// NewUpdate creates an empty update with room for n entries
func NewUpdate(n int) Update {
	return Update{
		Cols:   make([]int, 0, n),
		Deltas: make([]float64, 0, n),
	}
}

// DenseUpdate creates an update that adds deltas[i] to column offset+i
func DenseUpdate(deltas []float64, offset int) Update {
	u := NewUpdate(len(deltas))
	for i, d := range deltas {
		u.Add(offset+i, d)
	}
	return u
}

// Add appends a (column, delta) pair to the update
func (u *Update) Add(col int, delta float64) {
	u.Cols = append(u.Cols, col)
	u.Deltas = append(u.Deltas, delta)
}

// Len returns the number of (column, delta) pairs
func (u *Update) Len() int {
	return len(u.Cols)
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	NumTables         int            `json:"num_tables"`
	NumRows           int            `json:"num_rows"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	ErrUnknownTable     = errors.New("unknown table")
	ErrTableExists      = errors.New("table already exists with a different configuration")
	ErrColumnOutOfRange = errors.New("column out of range")
	ErrInvalidUpdate    = errors.New("invalid update: column and delta count differ")
	ErrInvalidCapacity  = errors.New("row capacity must be positive")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// RowDB defines an interface for databases holding dense float64 rows grouped in tables.
// Rows are addressed by (table, row) and are zero initialised on first access.
// Rows can only be changed by additive increments, never overwritten. This is what allows
// many writers to update the same row without coordination: increments commute.
type RowDB interface {

	// --------------------------------------------------------------------------
	// Table Operations
	// --------------------------------------------------------------------------

	// CreateTable registers a table. Creating an existing table with an identical
	// TableInfo is a no-op, a different TableInfo returns ErrTableExists.
	CreateTable(table uint32, info TableInfo) (err error)

	// GetTableInfo returns the configuration of a table.
	GetTableInfo(table uint32) (info TableInfo, ok bool)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Inc adds delta to a single cell of a row.
	// The writeIndex parameter is used as a logical timestamp for the write.
	Inc(table uint32, row uint64, col int, delta float64, writeIndex uint64) (err error)

	// BatchInc applies all (column, delta) pairs of the update to a row atomically,
	// no reader observes a partially applied update.
	// The writeIndex parameter is used as a logical timestamp for the write.
	BatchInc(table uint32, row uint64, update Update, writeIndex uint64) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// GetRow returns a copy of the row. Rows that were never written are all zero.
	GetRow(table uint32, row uint64) (values []float64, err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
