package testing

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

// StoreFactory creates a new, empty store for a single test.
// Cleanup should be registered on t.
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the conformance suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("WriteRead", func(t *testing.T) {
			testWriteRead(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("MutateReplace", func(t *testing.T) {
			testMutateReplace(t, factory(t))
		})

		t.Run("SliceRangeAndLimit", func(t *testing.T) {
			testSliceRangeAndLimit(t, factory(t))
		})

		t.Run("BinaryColumns", func(t *testing.T) {
			testBinaryColumns(t, factory(t))
		})

		t.Run("ConsistencyLevels", func(t *testing.T) {
			testConsistencyLevels(t, factory(t))
		})

		t.Run("CancelledContext", func(t *testing.T) {
			testCancelledContext(t, factory(t))
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustColumns(t *testing.T, s store.IStore, row string, q db.SliceQuery) []string {
	t.Helper()
	entries, err := s.GetSlice(context.Background(), row, q, store.ConsistencyKey)
	if err != nil {
		t.Fatalf("GetSlice(%s) error = %v", row, err)
	}
	cols := make([]string, len(entries))
	for i, e := range entries {
		cols[i] = string(e.Column)
	}
	return cols
}

func sameColumns(a, b []string) bool {
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

func testWriteRead(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := store.Write(ctx, s, "row", []byte("col"), []byte("value"), store.ConsistencyKey); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	val, ok, err := store.ReadColumn(ctx, s, "row", []byte("col"), store.ConsistencyKey)
	if err != nil {
		t.Fatalf("ReadColumn() error = %v", err)
	}
	if !ok || string(val) != "value" {
		t.Errorf("ReadColumn() = %q, %v; want value, true", val, ok)
	}

	if err := store.Write(ctx, s, "row", []byte("col"), []byte("value2"), store.ConsistencyKey); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	val, _, _ = store.ReadColumn(ctx, s, "row", []byte("col"), store.ConsistencyKey)
	if string(val) != "value2" {
		t.Errorf("Expected overwritten value value2, got %q", val)
	}

	_, ok, err = store.ReadColumn(ctx, s, "other-row", []byte("col"), store.ConsistencyKey)
	if err != nil || ok {
		t.Errorf("Expected missing column in other row, got ok=%v err=%v", ok, err)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for _, c := range []string{"a", "b"} {
		if err := store.Write(ctx, s, "row", []byte(c), []byte(c), store.ConsistencyKey); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if err := store.Delete(ctx, s, "row", []byte("a"), store.ConsistencyKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := mustColumns(t, s, "row", db.SliceQuery{}); !sameColumns(got, []string{"b"}) {
		t.Errorf("Expected [b] after delete, got %v", got)
	}

	// deleting a missing column is not an error
	if err := store.Delete(ctx, s, "row", []byte("missing"), store.ConsistencyKey); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func testMutateReplace(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := store.Write(ctx, s, "row", []byte("old"), []byte("1"), store.ConsistencyKey); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	err := s.Mutate(ctx, "row",
		[]db.Entry{{Column: []byte("new"), Value: []byte("2")}},
		[][]byte{[]byte("old")},
		store.ConsistencyKey)
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	if got := mustColumns(t, s, "row", db.SliceQuery{}); !sameColumns(got, []string{"new"}) {
		t.Errorf("Expected [new] after replace, got %v", got)
	}
}

func testSliceRangeAndLimit(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	var adds []db.Entry
	for _, c := range []string{"e", "a", "d", "b", "c"} {
		adds = append(adds, db.Entry{Column: []byte(c), Value: []byte("v-" + c)})
	}
	if err := s.Mutate(ctx, "row", adds, nil, store.ConsistencyKey); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	tests := []struct {
		name  string
		query db.SliceQuery
		want  []string
	}{
		{"all", db.SliceQuery{}, []string{"a", "b", "c", "d", "e"}},
		{"range", db.SliceQuery{Start: []byte("b"), End: []byte("e")}, []string{"b", "c", "d"}},
		{"open end", db.SliceQuery{Start: []byte("c")}, []string{"c", "d", "e"}},
		{"limit", db.SliceQuery{Start: []byte("b"), Limit: 2}, []string{"b", "c"}},
		{"empty", db.SliceQuery{Start: []byte("f")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustColumns(t, s, "row", tt.query); !sameColumns(got, tt.want) {
				t.Errorf("GetSlice(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func testBinaryColumns(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	col := func(ts uint64, rid string) []byte {
		b := make([]byte, 8, 8+len(rid))
		binary.BigEndian.PutUint64(b, ts)
		return append(b, rid...)
	}

	cols := [][]byte{col(1000, "b"), col(5, "z"), col(1000, "a"), col(1<<40, "a")}
	for _, c := range cols {
		if err := store.Write(ctx, s, "\x00\x00\x00\x03rowcol", c, []byte{}, store.ConsistencyKey); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := store.Read(ctx, s, "\x00\x00\x00\x03rowcol", []byte{0x00}, bytes.Repeat([]byte{0xFF}, 9), store.ConsistencyKey)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := [][]byte{col(5, "z"), col(1000, "a"), col(1000, "b"), col(1<<40, "a")}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if !bytes.Equal(entries[i].Column, want[i]) {
			t.Errorf("Position %d: expected %x, got %x", i, want[i], entries[i].Column)
		}
		if len(entries[i].Value) != 0 {
			t.Errorf("Position %d: expected empty value, got %x", i, entries[i].Value)
		}
	}
}

func testConsistencyLevels(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	features := s.Features()
	if !features.KeyConsistent {
		t.Skip("store is not key consistent")
	}

	for _, level := range []store.Consistency{store.ConsistencyDefault, store.ConsistencyKey, store.ConsistencyLocalKey} {
		row := fmt.Sprintf("row-%s", level)
		if err := store.Write(ctx, s, row, []byte("col"), []byte("v"), level); err != nil {
			t.Fatalf("Write(%s) error = %v", level, err)
		}
		_, ok, err := store.ReadColumn(ctx, s, row, []byte("col"), level)
		if err != nil {
			t.Fatalf("ReadColumn(%s) error = %v", level, err)
		}
		if !ok {
			t.Errorf("Expected read-your-writes at level %s", level)
		}
	}
}

func testCancelledContext(t *testing.T, s store.IStore) {
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Write(ctx, s, "row", []byte("col"), []byte("v"), store.ConsistencyKey)
	if err == nil {
		t.Fatalf("Expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) && !store.IsTemporary(err) {
		t.Errorf("Expected context.Canceled or temporary error, got %v", err)
	}
}

func testConcurrentWriters(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	workers := 8
	perWorker := 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				col := []byte(fmt.Sprintf("w%02d-%03d", worker, i))
				if err := store.Write(ctx, s, "shared", col, []byte("x"), store.ConsistencyKey); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent Write() error = %v", err)
	}

	if got := mustColumns(t, s, "shared", db.SliceQuery{}); len(got) != workers*perWorker {
		t.Errorf("Expected %d columns, got %d", workers*perWorker, len(got))
	}
}
