package dense

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "DLROWDB\x00" // File format identifier
	denseVersion = 1             // Database version
	rowOverhead  = 48            // Estimated bytes per row besides the values
)

// --------------------------------------------------------------------------
// Core structures
// --------------------------------------------------------------------------

type rowKey struct {
	table uint32
	row   uint64
}

// denseRow holds the values of a single row. The mutex makes a BatchInc
// atomic with respect to readers of the same row.
type denseRow struct {
	mu     sync.RWMutex
	values []float64
	index  uint64 // write index of the last increment
}

type shard struct {
	rows *xsync.MapOf[rowKey, *denseRow]
}

// denseImpl implements db.RowDB with rows spread over independent shards
type denseImpl struct {
	seed      uint64
	shards    []*shard
	tables    *xsync.MapOf[uint32, db.TableInfo]
	currIndex atomic.Uint64
}

// DBOptions configures the database during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = number of CPUs)
}

// DefaultOptions returns the default options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewDenseDB creates a new in-memory row database with the specified options (optional)
func NewDenseDB(opts *DBOptions) db.RowDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	d := &denseImpl{
		seed:   util.GenerateSeed(),
		tables: xsync.NewMapOf[uint32, db.TableInfo](),
	}
	d.shards = newShards(opts.NumShards)
	return d
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{
			rows: xsync.NewMapOfWithHasher[rowKey, *denseRow](func(k rowKey, seed uint64) uint64 {
				return uint64(util.HashRowKey(k.table, k.row, seed))
			}),
		}
	}
	return shards
}

func (d *denseImpl) shardFor(k rowKey) *shard {
	return d.shards[util.ShardIndex(util.HashRowKey(k.table, k.row, d.seed), len(d.shards))]
}

// --------------------------------------------------------------------------
// Table Operations
// --------------------------------------------------------------------------

// CreateTable registers a table. It is idempotent for an identical configuration.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *denseImpl) CreateTable(table uint32, info db.TableInfo) error {
	if info.RowCapacity <= 0 {
		return fmt.Errorf("%w: table %d has capacity %d", db.ErrInvalidCapacity, table, info.RowCapacity)
	}
	existing, loaded := d.tables.LoadOrStore(table, info)
	if loaded && existing != info {
		return fmt.Errorf("%w: table %d (have %+v, want %+v)", db.ErrTableExists, table, existing, info)
	}
	return nil
}

// GetTableInfo returns the configuration of a table
func (d *denseImpl) GetTableInfo(table uint32) (db.TableInfo, bool) {
	return d.tables.Load(table)
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// loadOrCreateRow returns the row, creating a zero row on first access
func (d *denseImpl) loadOrCreateRow(table uint32, row uint64) (*denseRow, error) {
	info, ok := d.tables.Load(table)
	if !ok {
		return nil, fmt.Errorf("%w: %d", db.ErrUnknownTable, table)
	}
	k := rowKey{table: table, row: row}
	r, _ := d.shardFor(k).rows.LoadOrCompute(k, func() *denseRow {
		return &denseRow{values: make([]float64, info.RowCapacity)}
	})
	return r, nil
}

// Inc adds delta to a single cell.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *denseImpl) Inc(table uint32, row uint64, col int, delta float64, writeIndex uint64) error {
	u := db.NewUpdate(1)
	u.Add(col, delta)
	return d.BatchInc(table, row, u, writeIndex)
}

// BatchInc applies all pairs of the update to the row while holding the row lock.
// The update is validated first so that an invalid update changes nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *denseImpl) BatchInc(table uint32, row uint64, update db.Update, writeIndex uint64) error {
	if len(update.Cols) != len(update.Deltas) {
		return db.ErrInvalidUpdate
	}

	d.SetWriteIdx(writeIndex)

	r, err := d.loadOrCreateRow(table, row)
	if err != nil {
		return err
	}

	for _, c := range update.Cols {
		if c < 0 || c >= len(r.values) {
			return fmt.Errorf("%w: column %d of table %d (capacity %d)", db.ErrColumnOutOfRange, c, table, len(r.values))
		}
	}

	r.mu.Lock()
	for i, c := range update.Cols {
		r.values[c] += update.Deltas[i]
	}
	if writeIndex > r.index {
		r.index = writeIndex
	}
	r.mu.Unlock()
	return nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// GetRow returns a copy of the row. Rows never written are returned as zeros
// without being materialized.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *denseImpl) GetRow(table uint32, row uint64) ([]float64, error) {
	info, ok := d.tables.Load(table)
	if !ok {
		return nil, fmt.Errorf("%w: %d", db.ErrUnknownTable, table)
	}

	k := rowKey{table: table, row: row}
	r, ok := d.shardFor(k).rows.Load(k)
	if !ok {
		return make([]float64, info.RowCapacity), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]float64, len(r.values))
	copy(values, r.values)
	return values, nil
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes a snapshot of all tables and rows to w.
// Each row is copied under its lock, the snapshot as a whole is fuzzy: rows
// that are incremented concurrently may or may not contain the increment.
func (d *denseImpl) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)

	type savedRow struct {
		key    rowKey
		index  uint64
		values []float64
	}

	var rows []savedRow
	for _, s := range d.shards {
		s.rows.Range(func(k rowKey, r *denseRow) bool {
			r.mu.RLock()
			values := make([]float64, len(r.values))
			copy(values, r.values)
			idx := r.index
			r.mu.RUnlock()
			rows = append(rows, savedRow{key: k, index: idx, values: values})
			return true
		})
	}

	type savedTable struct {
		id   uint32
		info db.TableInfo
	}
	var tables []savedTable
	d.tables.Range(func(id uint32, info db.TableInfo) bool {
		tables = append(tables, savedTable{id: id, info: info})
		return true
	})

	// Header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(denseVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, d.seed); err != nil {
		return err
	}

	// Tables
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(tables))); err != nil {
		return err
	}
	for _, t := range tables {
		if err := binary.Write(bw, binary.LittleEndian, t.id); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(t.info.RowCapacity)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, int32(t.info.Staleness)); err != nil {
			return err
		}
	}

	// Rows
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(rows))); err != nil {
		return err
	}
	for _, r := range rows {
		if err := binary.Write(bw, binary.LittleEndian, r.key.table); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, r.key.row); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, r.index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(r.values))); err != nil {
			return err
		}
		for _, v := range r.values {
			if err := binary.Write(bw, binary.LittleEndian, math.Float64bits(v)); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load replaces the content of the database with the snapshot read from r.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (d *denseImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != denseVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, denseVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	tables := xsync.NewMapOf[uint32, db.TableInfo]()
	var tableCount uint32
	if err := binary.Read(br, binary.LittleEndian, &tableCount); err != nil {
		return err
	}
	for i := uint32(0); i < tableCount; i++ {
		var (
			id        uint32
			capacity  uint32
			staleness int32
		)
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &capacity); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &staleness); err != nil {
			return err
		}
		tables.Store(id, db.TableInfo{RowCapacity: int(capacity), Staleness: int(staleness)})
	}

	d.seed = seed
	d.tables = tables
	d.shards = newShards(len(d.shards))
	d.currIndex.Store(0)

	var rowCount uint64
	if err := binary.Read(br, binary.LittleEndian, &rowCount); err != nil {
		return err
	}

	var maxIndex uint64
	for i := uint64(0); i < rowCount; i++ {
		var (
			k        rowKey
			index    uint64
			valueLen uint32
		)
		if err := binary.Read(br, binary.LittleEndian, &k.table); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &k.row); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}

		info, ok := tables.Load(k.table)
		if !ok || int(valueLen) != info.RowCapacity {
			return fmt.Errorf("invalid snapshot: row %d of table %d does not match its table", k.row, k.table)
		}

		values := make([]float64, valueLen)
		for j := range values {
			var bits uint64
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				return err
			}
			values[j] = math.Float64frombits(bits)
		}

		if index > maxIndex {
			maxIndex = index
		}
		d.shardFor(k).rows.Store(k, &denseRow{values: values, index: index})
	}

	d.SetWriteIdx(maxIndex)
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (d *denseImpl) GetInfo() db.DatabaseInfo {
	shardSizes := make([]float64, len(d.shards))
	numRows := 0
	sizeBytes := 0
	for i, s := range d.shards {
		s.rows.Range(func(_ rowKey, r *denseRow) bool {
			sizeBytes += rowOverhead + 8*len(r.values)
			return true
		})
		n := s.rows.Size()
		shardSizes[i] = float64(n)
		numRows += n
	}

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
	}{
		CurrentWriteIndex: d.currIndex.Load(),
		ShardCount:        len(d.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplDense,
		SupportedFeatures: []db.Feature{
			db.FeatureCreateTable,
			db.FeatureGet,
			db.FeatureInc, db.FeatureBatchInc,
			db.FeatureSave, db.FeatureLoad,
		},
		NumTables: d.tables.Size(),
		NumRows:   numRows,
		Metadata:  meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (d *denseImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureCreateTable |
		db.FeatureGet |
		db.FeatureInc |
		db.FeatureBatchInc |
		db.FeatureSave |
		db.FeatureLoad
	return supported&feature == feature
}

// Close releases nothing, the database lives in memory only
func (d *denseImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx updates the current index if the new index is greater than the current one
func (d *denseImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := d.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if d.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (d *denseImpl) WriteIdx() uint64 {
	return d.currIndex.Load()
}
