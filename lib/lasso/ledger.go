package lasso

import (
	"strconv"
	"strings"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
)

const (
	// MaxLedgerFields is the number of fields a ledger can hold
	MaxLedgerFields = 100
	// MaxLedgerSteps is the number of evaluation steps a ledger can hold
	MaxLedgerSteps = 1000
)

// CreateLedgerTable creates the table backing a MetricLedger.
// Ledger rows are always read fresh, the table has staleness 0.
func CreateLedgerTable(store table.ITableStore, tableID uint32) error {
	return store.CreateTable(tableID, db.TableInfo{RowCapacity: MaxLedgerFields, Staleness: 0})
}

// MetricLedger records named metrics per evaluation step in a shared table.
// Row i of the table holds step i, column j holds the j-th registered field.
// Every worker must register the same fields in the same order, the order is
// the only mapping from names to columns.
type MetricLedger struct {
	store   table.ITableStore
	tableID uint32

	fields  []string
	index   map[string]int
	numRows int
}

// NewMetricLedger creates a ledger view of a table created with CreateLedgerTable
func NewMetricLedger(store table.ITableStore, tableID uint32) *MetricLedger {
	return &MetricLedger{
		store:   store,
		tableID: tableID,
		index:   make(map[string]int),
	}
}

// RegisterField appends a field
func (l *MetricLedger) RegisterField(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return configError("invalid field name %q", name)
	}
	if _, ok := l.index[name]; ok {
		return configError("field %q registered twice", name)
	}
	if len(l.fields) == MaxLedgerFields {
		return configError("ledger holds at most %d fields", MaxLedgerFields)
	}
	l.index[name] = len(l.fields)
	l.fields = append(l.fields, name)
	return nil
}

// Fields returns the registered field names in registration order
func (l *MetricLedger) Fields() []string {
	return append([]string(nil), l.fields...)
}

func (l *MetricLedger) column(name string) (int, error) {
	col, ok := l.index[name]
	if !ok {
		return 0, configError("unknown field %q", name)
	}
	return col, nil
}

func checkStep(step int) error {
	if step < 0 || step >= MaxLedgerSteps {
		return configError("step %d out of range [0, %d)", step, MaxLedgerSteps)
	}
	return nil
}

// Increment adds value to the field of a step
func (l *MetricLedger) Increment(step int, name string, value float64) error {
	if err := checkStep(step); err != nil {
		return err
	}
	col, err := l.column(name)
	if err != nil {
		return err
	}
	if err := l.store.Inc(l.tableID, uint64(step), col, value); err != nil {
		return err
	}
	l.numRows = max(l.numRows, step+1)
	return nil
}

// Get returns the value of a field of a step
func (l *MetricLedger) Get(step int, name string) (float64, error) {
	if err := checkStep(step); err != nil {
		return 0, err
	}
	col, err := l.column(name)
	if err != nil {
		return 0, err
	}
	row, err := l.store.Get(l.tableID, uint64(step))
	if err != nil {
		return 0, err
	}
	return row[col], nil
}

// NumSteps returns one past the highest step this ledger incremented
func (l *MetricLedger) NumSteps() int {
	return l.numRows
}

// RenderOne formats a step as "name value" pairs separated by spaces
func (l *MetricLedger) RenderOne(step int) (string, error) {
	if err := checkStep(step); err != nil {
		return "", err
	}
	row, err := l.store.Get(l.tableID, uint64(step))
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, 2*len(l.fields))
	for i, name := range l.fields {
		parts = append(parts, name, formatValue(row[i]))
	}
	return strings.Join(parts, " "), nil
}

// RenderAll formats the ledger as a header line with the field names
// followed by one line of values per step
func (l *MetricLedger) RenderAll() (string, error) {
	var sb strings.Builder
	sb.WriteString(strings.Join(l.fields, " "))
	sb.WriteString("\n")

	values := make([]string, len(l.fields))
	for step := 0; step < l.numRows; step++ {
		row, err := l.store.Get(l.tableID, uint64(step))
		if err != nil {
			return "", err
		}
		for i := range l.fields {
			values[i] = formatValue(row[i])
		}
		sb.WriteString(strings.Join(values, " "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
