package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
)

// DBFactory is a function that creates a new instance of a KCVDB implementation
type DBFactory func() db.KCVDB

// RunKCVDBTests runs a comprehensive test suite for a KCVDB implementation.
func RunKCVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Mutate&GetSlice", func(t *testing.T) {
			testMutateGetSlice(t, factory())
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, factory())
		})

		t.Run("Deletions", func(t *testing.T) {
			testDeletions(t, factory())
		})

		t.Run("AtomicReplace", func(t *testing.T) {
			testAtomicReplace(t, factory())
		})

		t.Run("SliceBounds", func(t *testing.T) {
			testSliceBounds(t, factory())
		})

		t.Run("BinaryColumnOrder", func(t *testing.T) {
			testBinaryColumnOrder(t, factory())
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, factory())
		})

		t.Run("WriteIndex", func(t *testing.T) {
			testWriteIndex(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("ConcurrentMutations", func(t *testing.T) {
			testConcurrentMutations(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KCVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func entry(col, val string) db.Entry {
	return db.Entry{Column: []byte(col), Value: []byte(val)}
}

func all(database db.KCVDB, row string) []db.Entry {
	return database.GetSlice(row, db.SliceQuery{})
}

func columns(entries []db.Entry) []string {
	cols := make([]string, len(entries))
	for i, e := range entries {
		cols[i] = string(e.Column)
	}
	return cols
}

func equalStrings(a, b []string) bool {
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

func testMutateGetSlice(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	database.Mutate("row-1", []db.Entry{entry("c", "3"), entry("a", "1"), entry("b", "2")}, nil, 1)

	got := all(database, "row-1")
	if want := []string{"a", "b", "c"}; !equalStrings(columns(got), want) {
		t.Fatalf("Expected columns %v, got %v", want, columns(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(got[i].Value) != want {
			t.Errorf("Expected value %s at position %d, got %s", want, i, got[i].Value)
		}
	}

	if got := all(database, "missing-row"); len(got) != 0 {
		t.Errorf("Expected no columns for missing row, got %v", columns(got))
	}

	if got := all(database, "row-2"); len(got) != 0 {
		t.Errorf("Rows must be independent, got %v", columns(got))
	}
}

func testOverwrite(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	database.Mutate("row", []db.Entry{entry("col", "v1")}, nil, 1)
	database.Mutate("row", []db.Entry{entry("col", "v2")}, nil, 2)

	got := database.GetSlice("row", db.ColumnQuery([]byte("col")))
	if len(got) != 1 {
		t.Fatalf("Expected exactly one column, got %d", len(got))
	}
	if string(got[0].Value) != "v2" {
		t.Errorf("Expected overwritten value v2, got %s", got[0].Value)
	}
}

func testDeletions(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	database.Mutate("row", []db.Entry{entry("a", "1"), entry("b", "2"), entry("c", "3")}, nil, 1)
	database.Mutate("row", nil, [][]byte{[]byte("b"), []byte("does-not-exist")}, 2)

	if want, got := []string{"a", "c"}, columns(all(database, "row")); !equalStrings(got, want) {
		t.Errorf("Expected columns %v after delete, got %v", want, got)
	}

	// deleting every column removes the row
	database.Mutate("row", nil, [][]byte{[]byte("a"), []byte("c")}, 3)
	if got := all(database, "row"); len(got) != 0 {
		t.Errorf("Expected empty row, got %v", columns(got))
	}

	// deleting from a missing row is a no-op
	database.Mutate("missing", nil, [][]byte{[]byte("x")}, 4)
	if got := all(database, "missing"); len(got) != 0 {
		t.Errorf("Delete must not create rows, got %v", columns(got))
	}
}

func testAtomicReplace(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	database.Mutate("row", []db.Entry{entry("old", "x")}, nil, 1)
	database.Mutate("row", []db.Entry{entry("new", "y")}, [][]byte{[]byte("old")}, 2)

	if want, got := []string{"new"}, columns(all(database, "row")); !equalStrings(got, want) {
		t.Errorf("Expected %v after replace, got %v", want, got)
	}

	// deletions are applied before additions
	database.Mutate("row", []db.Entry{entry("new", "z")}, [][]byte{[]byte("new")}, 3)
	got := all(database, "row")
	if len(got) != 1 || string(got[0].Value) != "z" {
		t.Errorf("Expected re-added column with value z, got %v", got)
	}
}

func testSliceBounds(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	var adds []db.Entry
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		adds = append(adds, entry(c, c))
	}
	database.Mutate("row", adds, nil, 1)

	tests := []struct {
		name  string
		query db.SliceQuery
		want  []string
	}{
		{"unbounded", db.SliceQuery{}, []string{"a", "b", "c", "d", "e"}},
		{"start inclusive", db.SliceQuery{Start: []byte("b")}, []string{"b", "c", "d", "e"}},
		{"end exclusive", db.SliceQuery{Start: []byte("b"), End: []byte("d")}, []string{"b", "c"}},
		{"between columns", db.SliceQuery{Start: []byte("bb"), End: []byte("dd")}, []string{"c", "d"}},
		{"limit", db.SliceQuery{Limit: 2}, []string{"a", "b"}},
		{"limit with range", db.SliceQuery{Start: []byte("c"), Limit: 10}, []string{"c", "d", "e"}},
		{"empty range", db.SliceQuery{Start: []byte("x")}, []string{}},
		{"single column", db.ColumnQuery([]byte("c")), []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := columns(database.GetSlice("row", tt.query))
			if !equalStrings(got, tt.want) {
				t.Errorf("GetSlice(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func testBinaryColumnOrder(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	// big endian timestamps followed by an id, like lock claim columns
	col := func(ts uint64, id byte) []byte {
		b := make([]byte, 9)
		binary.BigEndian.PutUint64(b, ts)
		b[8] = id
		return b
	}

	database.Mutate("locks", []db.Entry{
		{Column: col(300, 1), Value: []byte{}},
		{Column: col(1, 9), Value: []byte{}},
		{Column: col(256, 2), Value: []byte{}},
		{Column: col(1, 2), Value: []byte{}},
	}, nil, 1)

	start := []byte{0x00}
	end := bytes.Repeat([]byte{0xFF}, 9)
	got := database.GetSlice("locks", db.SliceQuery{Start: start, End: end})

	want := [][]byte{col(1, 2), col(1, 9), col(256, 2), col(300, 1)}
	if len(got) != len(want) {
		t.Fatalf("Expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i].Column, want[i]) {
			t.Errorf("Position %d: expected %x, got %x", i, want[i], got[i].Column)
		}
	}

	// empty values are preserved
	if got[0].Value == nil || len(got[0].Value) != 0 {
		t.Errorf("Expected empty non-nil value, got %v", got[0].Value)
	}
}

func testCopySemantics(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	value := []byte("value")
	column := []byte("col")
	database.Mutate("row", []db.Entry{{Column: column, Value: value}}, nil, 1)

	// mutating the caller's buffers must not change the stored data
	value[0] = 'X'
	column[0] = 'X'

	got := database.GetSlice("row", db.SliceQuery{})
	if len(got) != 1 || string(got[0].Column) != "col" || string(got[0].Value) != "value" {
		t.Fatalf("Stored data changed with caller buffers: %v", got)
	}

	// mutating returned data must not change the stored data
	got[0].Value[0] = 'Y'
	again := database.GetSlice("row", db.SliceQuery{})
	if string(again[0].Value) != "value" {
		t.Errorf("GetSlice should return a copy, not a reference to the stored value")
	}
}

func testWriteIndex(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate)

	database.Mutate("row", []db.Entry{entry("a", "1")}, nil, 10)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Expected write index 10, got %d", idx)
	}

	database.SetWriteIdx(5)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Write index must not decrease, got %d", idx)
	}

	database.SetWriteIdx(20)
	if idx := database.WriteIdx(); idx != 20 {
		t.Errorf("Expected write index 20, got %d", idx)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice|db.FeatureSave|db.FeatureLoad)

	numRows := 200
	colsPerRow := 5
	for i := 0; i < numRows; i++ {
		var adds []db.Entry
		for j := 0; j < colsPerRow; j++ {
			adds = append(adds, entry(fmt.Sprintf("col-%d", j), fmt.Sprintf("value-%d-%d", i, j)))
		}
		database.Mutate(fmt.Sprintf("row-%d", i), adds, nil, uint64(i+1))
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numRows; i++ {
		row := fmt.Sprintf("row-%d", i)
		got := all(database2, row)
		if len(got) != colsPerRow {
			t.Errorf("Row %s: expected %d columns after Load, got %d", row, colsPerRow, len(got))
			continue
		}
		for j, e := range got {
			if want := fmt.Sprintf("value-%d-%d", i, j); string(e.Value) != want {
				t.Errorf("Row %s: expected %s, got %s", row, want, e.Value)
			}
		}
	}

	if idx := database2.WriteIdx(); idx != uint64(numRows) {
		t.Errorf("Expected write index %d after Load, got %d", numRows, idx)
	}

	if err := database2.Load(bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Errorf("Expected error when loading invalid data")
	}
}

func testConcurrentMutations(t *testing.T, database db.KCVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureMutate|db.FeatureGetSlice)

	numWorkers := 8
	perWorker := 250

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// every worker adds its own columns to one shared hot row
				col := fmt.Sprintf("w%02d-%04d", worker, i)
				database.Mutate("hot-row", []db.Entry{entry(col, "x")}, nil, uint64(i+1))

				// and reads a private row concurrently
				database.GetSlice(fmt.Sprintf("private-%d", worker), db.SliceQuery{})
			}
		}(w)
	}
	wg.Wait()

	got := all(database, "hot-row")
	if len(got) != numWorkers*perWorker {
		t.Fatalf("Expected %d columns after concurrent mutations, got %d", numWorkers*perWorker, len(got))
	}
	for i := 1; i < len(got); i++ {
		if bytes.Compare(got[i-1].Column, got[i].Column) >= 0 {
			t.Fatalf("Columns out of order at %d: %s >= %s", i, got[i-1].Column, got[i].Column)
		}
	}
}
