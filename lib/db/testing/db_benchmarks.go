package testing

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dLasso/lib/db"
)

// RunRowDBBenchmarks runs all benchmarks for a row database implementation
func RunRowDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Inc", func(b *testing.B) {
		benchmarkInc(b, factory())
	})

	b.Run("BatchIncSameRow", func(b *testing.B) {
		benchmarkBatchIncSameRow(b, factory())
	})

	b.Run("BatchIncDisjointRows", func(b *testing.B) {
		benchmarkBatchIncDisjointRows(b, factory())
	})

	b.Run("GetRow", func(b *testing.B) {
		benchmarkGetRow(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

const benchRowCapacity = 1024

// Benchmark for single cell increments on many rows
func benchmarkInc(b *testing.B, database db.RowDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureInc)
	mustCreate(b, database, 1, benchRowCapacity)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_ = database.Inc(1, uint64(counter%1000), counter%benchRowCapacity, 1, 0)
			counter++
		}
	})
}

// Benchmark for full row increments that all hit the same row (the shared prediction row case)
func benchmarkBatchIncSameRow(b *testing.B, database db.RowDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureBatchInc)
	mustCreate(b, database, 1, benchRowCapacity)

	deltas := make([]float64, benchRowCapacity)
	for i := range deltas {
		deltas[i] = 0.5
	}
	update := db.DenseUpdate(deltas, 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = database.BatchInc(1, 0, update, 0)
		}
	})
}

// Benchmark for increments where every goroutine owns its row
func benchmarkBatchIncDisjointRows(b *testing.B, database db.RowDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureBatchInc)
	mustCreate(b, database, 1, 64)

	update := db.DenseUpdate(make([]float64, 64), 0)
	var nextRow atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		row := nextRow.Add(1)
		for pb.Next() {
			_ = database.BatchInc(1, row, update, 0)
		}
	})
}

// Benchmark for reading rows
func benchmarkGetRow(b *testing.B, database db.RowDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureInc|db.FeatureGet)
	mustCreate(b, database, 1, benchRowCapacity)
	for i := 0; i < 100; i++ {
		_ = database.Inc(1, uint64(i), 0, 1, 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = database.GetRow(1, uint64(counter%100))
			counter++
		}
	})
}

// Benchmark for Save and Load
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureInc|db.FeatureSave|db.FeatureLoad)
	mustCreate(b, database, 1, 128)
	for i := 0; i < 10_000; i++ {
		_ = database.Inc(1, uint64(i), i%128, float64(i), uint64(i))
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}
	data := snapshot.Bytes()

	b.Run("Load", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			target := factory()
			if err := target.Load(bytes.NewReader(data)); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
			_ = target.Close()
		}
	})
}

// Benchmark for a solver-like mix: one read per publish of a dense delta
func benchmarkMixedUsage(b *testing.B, database db.RowDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCreateTable|db.FeatureBatchInc|db.FeatureGet)
	mustCreate(b, database, 1, benchRowCapacity)
	update := db.DenseUpdate(make([]float64, benchRowCapacity), 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if counter%2 == 0 {
				_, _ = database.GetRow(1, 0)
			} else {
				_ = database.BatchInc(1, 0, update, 0)
			}
			counter++
		}
	})
}
