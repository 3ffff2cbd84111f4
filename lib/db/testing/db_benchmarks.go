package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
)

// RunKCVDBBenchmarks runs all benchmarks for a key-column-value database implementation
func RunKCVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Mutate", func(b *testing.B) {
			benchmarkMutate(b, factory())
		})

		b.Run("ClaimCycle", func(b *testing.B) {
			benchmarkClaimCycle(b, factory())
		})

		b.Run("GetSlice", func(b *testing.B) {
			benchmarkGetSlice(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for single column writes to distinct rows
func benchmarkMutate(b *testing.B, database db.KCVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureMutate)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			row := fmt.Sprintf("row-%d", counter%1000)
			database.Mutate(row, []db.Entry{entry(fmt.Sprintf("col-%d", counter), "v")}, nil, uint64(counter))
			counter++
		}
	})
}

// Benchmark for the write, read, delete pattern of a lock claim on a hot row
func benchmarkClaimCycle(b *testing.B, database db.KCVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureMutate|db.FeatureGetSlice)

	query := db.SliceQuery{Start: []byte{0x00}, End: bytes.Repeat([]byte{0xFF}, 9)}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := uint64(0)
		for pb.Next() {
			col := make([]byte, 9)
			binary.BigEndian.PutUint64(col, counter)
			database.Mutate("lock-row", []db.Entry{{Column: col, Value: []byte{}}}, nil, counter)
			database.GetSlice("lock-row", query)
			database.Mutate("lock-row", nil, [][]byte{col}, counter)
			counter++
		}
	})
}

// Benchmark for range reads on a row with many columns
func benchmarkGetSlice(b *testing.B, database db.KCVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureMutate|db.FeatureGetSlice)

	var adds []db.Entry
	for i := 0; i < 1000; i++ {
		adds = append(adds, entry(fmt.Sprintf("col-%04d", i), "v"))
	}
	database.Mutate("wide-row", adds, nil, 1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := []byte(fmt.Sprintf("col-%04d", counter%900))
			database.GetSlice("wide-row", db.SliceQuery{Start: start, Limit: 100})
			counter++
		}
	})
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureMutate|db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 10000; i++ {
		database.Mutate(fmt.Sprintf("row-%d", i), []db.Entry{entry("col", fmt.Sprintf("value-%d", i))}, nil, uint64(i))
	}

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			_ = database.Save(&buf)
		}
	})

	var loadBuf bytes.Buffer
	_ = database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB := factory()
			_ = loadDB.Load(bytes.NewReader(data))
			_ = loadDB.Close()
		}
	})
}
