package testing

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dLasso/lib/db"
)

// DBFactory is a function that creates a new instance of a RowDB implementation
type DBFactory func() db.RowDB

// RunRowDBTests runs a comprehensive test suite for a RowDB implementation.
func RunRowDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateTable", func(t *testing.T) {
			testCreateTable(t, factory())
		})

		t.Run("Inc&Get", func(t *testing.T) {
			testIncGet(t, factory())
		})

		t.Run("BatchInc", func(t *testing.T) {
			testBatchInc(t, factory())
		})

		t.Run("OutOfRange", func(t *testing.T) {
			testOutOfRange(t, factory())
		})

		t.Run("UnknownTable", func(t *testing.T) {
			testUnknownTable(t, factory())
		})

		t.Run("Commutativity", func(t *testing.T) {
			testCommutativity(t, factory)
		})

		t.Run("ConcurrentDisjointWriters", func(t *testing.T) {
			testConcurrentDisjointWriters(t, factory())
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.RowDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustCreate(t testing.TB, database db.RowDB, table uint32, capacity int) {
	if err := database.CreateTable(table, db.TableInfo{RowCapacity: capacity}); err != nil {
		t.Fatalf("CreateTable(%d): %v", table, err)
	}
}

func mustGet(t testing.TB, database db.RowDB, table uint32, row uint64) []float64 {
	values, err := database.GetRow(table, row)
	if err != nil {
		t.Fatalf("GetRow(%d, %d): %v", table, row, err)
	}
	return values
}

func equalRows(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateTable(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable)

	info := db.TableInfo{RowCapacity: 8, Staleness: 2}
	if err := database.CreateTable(1, info); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// identical configuration is a no-op
	if err := database.CreateTable(1, info); err != nil {
		t.Errorf("Expected idempotent CreateTable, got %v", err)
	}

	// different configuration is rejected
	err := database.CreateTable(1, db.TableInfo{RowCapacity: 9, Staleness: 2})
	if !errors.Is(err, db.ErrTableExists) {
		t.Errorf("Expected ErrTableExists, got %v", err)
	}

	if err := database.CreateTable(2, db.TableInfo{RowCapacity: 0}); !errors.Is(err, db.ErrInvalidCapacity) {
		t.Errorf("Expected ErrInvalidCapacity, got %v", err)
	}

	got, ok := database.GetTableInfo(1)
	if !ok || got != info {
		t.Errorf("Expected table info %+v, got %+v (ok=%v)", info, got, ok)
	}

	if _, ok := database.GetTableInfo(3); ok {
		t.Errorf("Expected no info for unknown table")
	}
}

func testIncGet(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureInc|db.FeatureGet)
	mustCreate(t, database, 1, 4)

	// untouched rows are zero
	if row := mustGet(t, database, 1, 42); !equalRows(row, []float64{0, 0, 0, 0}) {
		t.Errorf("Expected zero row, got %v", row)
	}

	if err := database.Inc(1, 0, 2, 1.5, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := database.Inc(1, 0, 2, 2.0, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := database.Inc(1, 0, 0, -1, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	row := mustGet(t, database, 1, 0)
	if !equalRows(row, []float64{-1, 0, 3.5, 0}) {
		t.Errorf("Expected [-1 0 3.5 0], got %v", row)
	}

	// GetRow returns a copy
	row[0] = 100
	if again := mustGet(t, database, 1, 0); again[0] != -1 {
		t.Errorf("GetRow should return a copy, not a reference to the stored row")
	}
}

func testBatchInc(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureBatchInc|db.FeatureGet)
	mustCreate(t, database, 1, 5)

	u := db.NewUpdate(3)
	u.Add(0, 1)
	u.Add(4, 2)
	u.Add(0, 3) // duplicate columns add up
	if err := database.BatchInc(1, 7, u, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := database.BatchInc(1, 7, db.DenseUpdate([]float64{1, 1, 1}, 1), 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if row := mustGet(t, database, 1, 7); !equalRows(row, []float64{4, 1, 1, 1, 2}) {
		t.Errorf("Expected [4 1 1 1 2], got %v", row)
	}

	bad := db.Update{Cols: []int{0, 1}, Deltas: []float64{1}}
	if err := database.BatchInc(1, 7, bad, 0); !errors.Is(err, db.ErrInvalidUpdate) {
		t.Errorf("Expected ErrInvalidUpdate, got %v", err)
	}
}

func testOutOfRange(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureBatchInc|db.FeatureGet)
	mustCreate(t, database, 1, 3)

	if err := database.Inc(1, 0, 3, 1, 0); !errors.Is(err, db.ErrColumnOutOfRange) {
		t.Errorf("Expected ErrColumnOutOfRange, got %v", err)
	}
	if err := database.Inc(1, 0, -1, 1, 0); !errors.Is(err, db.ErrColumnOutOfRange) {
		t.Errorf("Expected ErrColumnOutOfRange for negative column, got %v", err)
	}

	// an invalid batch must not be applied partially
	u := db.NewUpdate(2)
	u.Add(0, 1)
	u.Add(10, 1)
	if err := database.BatchInc(1, 0, u, 0); !errors.Is(err, db.ErrColumnOutOfRange) {
		t.Errorf("Expected ErrColumnOutOfRange, got %v", err)
	}
	if row := mustGet(t, database, 1, 0); !equalRows(row, []float64{0, 0, 0}) {
		t.Errorf("Expected row to be unchanged after rejected batch, got %v", row)
	}
}

func testUnknownTable(t *testing.T, database db.RowDB) {
	defer database.Close()

	if _, err := database.GetRow(99, 0); !errors.Is(err, db.ErrUnknownTable) {
		t.Errorf("Expected ErrUnknownTable on GetRow, got %v", err)
	}
	if err := database.Inc(99, 0, 0, 1, 0); !errors.Is(err, db.ErrUnknownTable) {
		t.Errorf("Expected ErrUnknownTable on Inc, got %v", err)
	}
}

// Two disjoint increments applied in either order give the same row
func testCommutativity(t *testing.T, factory DBFactory) {
	a := db.DenseUpdate([]float64{0.5, -1.25}, 0)
	b := db.DenseUpdate([]float64{3, 0.125}, 2)

	apply := func(first, second db.Update) []float64 {
		database := factory()
		defer database.Close()
		requireFeature(t, database, db.FeatureCreateTable|db.FeatureBatchInc|db.FeatureGet)
		mustCreate(t, database, 1, 4)
		if err := database.BatchInc(1, 0, first, 0); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if err := database.BatchInc(1, 0, second, 0); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return mustGet(t, database, 1, 0)
	}

	ab := apply(a, b)
	ba := apply(b, a)
	if !equalRows(ab, ba) {
		t.Errorf("Order of increments changed the row: %v vs %v", ab, ba)
	}
	if !equalRows(ab, []float64{0.5, -1.25, 3, 0.125}) {
		t.Errorf("Unexpected row %v", ab)
	}
}

func testConcurrentDisjointWriters(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureBatchInc|db.FeatureGet)

	const (
		writers    = 8
		perWriter  = 16
		iterations = 500
	)
	mustCreate(t, database, 1, writers*perWriter)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			deltas := make([]float64, perWriter)
			for i := range deltas {
				deltas[i] = 1
			}
			for i := 0; i < iterations; i++ {
				if err := database.BatchInc(1, 0, db.DenseUpdate(deltas, w*perWriter), uint64(i)); err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	row := mustGet(t, database, 1, 0)
	for i, v := range row {
		if v != iterations {
			t.Errorf("Column %d: expected %d, got %v", i, iterations, v)
		}
	}
}

func testWriteIdx(t *testing.T, database db.RowDB) {
	defer database.Close()

	database.SetWriteIdx(10)
	database.SetWriteIdx(5)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Expected write index 10, got %d", idx)
	}

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureInc)
	mustCreate(t, database, 1, 1)
	if err := database.Inc(1, 0, 0, 1, 20); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx := database.WriteIdx(); idx != 20 {
		t.Errorf("Expected write index 20 after Inc, got %d", idx)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureInc|db.FeatureGet)
	requireFeature(t, database, db.FeatureSave|db.FeatureLoad)

	mustCreate(t, database, 1, 3)
	if err := database.CreateTable(2, db.TableInfo{RowCapacity: 2, Staleness: 4}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	numRows := 100
	for i := 0; i < numRows; i++ {
		if err := database.Inc(1, uint64(i), i%3, float64(i)+0.25, uint64(i)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err := database.Inc(2, 0, 1, -7, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	if info, ok := database2.GetTableInfo(2); !ok || info.Staleness != 4 || info.RowCapacity != 2 {
		t.Errorf("Table info not restored: %+v (ok=%v)", info, ok)
	}

	for i := 0; i < numRows; i++ {
		want := mustGet(t, database, 1, uint64(i))
		got := mustGet(t, database2, 1, uint64(i))
		if !equalRows(want, got) {
			t.Errorf("Row %d mismatch after Load: expected %v, got %v", i, want, got)
		}
	}
	if row := mustGet(t, database2, 2, 0); !equalRows(row, []float64{0, -7}) {
		t.Errorf("Expected [0 -7], got %v", row)
	}
	if idx := database2.WriteIdx(); idx != uint64(numRows-1) {
		t.Errorf("Expected write index %d after Load, got %d", numRows-1, idx)
	}

	if err := database2.Load(bytes.NewBufferString("garbage!")); err == nil {
		t.Errorf("Expected error when loading invalid data")
	}
}

func testInfo(t *testing.T, database db.RowDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCreateTable|db.FeatureInc)
	mustCreate(t, database, 1, 2)
	mustCreate(t, database, 2, 2)
	for i := 0; i < 10; i++ {
		if err := database.Inc(1, uint64(i), 0, 1, 0); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	info := database.GetInfo()
	if info.NumTables != 2 {
		t.Errorf("Expected 2 tables, got %d", info.NumTables)
	}
	if info.NumRows != 10 {
		t.Errorf("Expected 10 rows, got %d", info.NumRows)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected positive size estimate, got %d", info.SizeBytes)
	}
}
