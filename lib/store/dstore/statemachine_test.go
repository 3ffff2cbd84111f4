package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestStateMachine() sm.IConcurrentStateMachine {
	factory := CreateStateMachineFactory(func() db.KCVDB { return maple.NewMapleDB(nil) })
	return factory(1, 1)
}

func mutateEntry(index uint64, row string, adds []db.Entry, dels [][]byte) sm.Entry {
	cmd := internal.Command{Type: internal.CommandTMutate, Row: row, Additions: adds, Deletions: dels}
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func lookupSlice(t *testing.T, fsm sm.IConcurrentStateMachine, row string) []db.Entry {
	t.Helper()
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetSlice, Row: row})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	entries, ok := res.([]db.Entry)
	if !ok {
		t.Fatalf("Lookup() returned %T", res)
	}
	return entries
}

func TestStateMachineUpdate(t *testing.T) {
	fsm := newTestStateMachine()
	defer fsm.Close()

	entries := []sm.Entry{
		mutateEntry(1, "row", []db.Entry{{Column: []byte("a"), Value: []byte("1")}, {Column: []byte("b"), Value: []byte("2")}}, nil),
		mutateEntry(2, "row", []db.Entry{{Column: []byte("c"), Value: []byte("3")}}, [][]byte{[]byte("a")}),
		{Index: 3},
		{Index: 4, Cmd: []byte{1, 2, 3}},
		func() sm.Entry {
			cmd := internal.Command{Type: internal.CommandType(9), Row: "row"}
			return sm.Entry{Index: 5, Cmd: cmd.Serialize()}
		}(),
	}

	results, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []store.RetCode{
		store.RetCSuccess,
		store.RetCSuccess,
		store.RetCInvalidOperation,
		store.RetCInternalError,
		store.RetCInvalidOperation,
	}
	for i, code := range want {
		if got := store.RetCode(results[i].Result.Value); got != code {
			t.Errorf("entry %d: result %s, want %s (%s)", i, got, code, results[i].Result.Data)
		}
	}

	got := lookupSlice(t, fsm, "row")
	if len(got) != 2 || string(got[0].Column) != "b" || string(got[1].Column) != "c" {
		t.Errorf("unexpected row content %v", got)
	}
}

func TestStateMachineLookup(t *testing.T) {
	fsm := newTestStateMachine()
	defer fsm.Close()

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
	if _, err := fsm.Lookup(internal.Query{Type: internal.QueryType(9)}); err == nil {
		t.Errorf("expected error for unknown query")
	}

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetDBInfo})
	if err != nil {
		t.Fatalf("Lookup(GetDBInfo) error = %v", err)
	}
	if info, ok := res.(db.DatabaseInfo); !ok || info.DbType != db.ImplMaple {
		t.Errorf("unexpected db info %v", res)
	}

	if got := lookupSlice(t, fsm, "missing"); len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	src := newTestStateMachine()
	defer src.Close()

	_, err := src.Update([]sm.Entry{
		mutateEntry(1, "r1", []db.Entry{{Column: []byte("x"), Value: []byte("1")}}, nil),
		mutateEntry(2, "r2", []db.Entry{{Column: []byte{0, 0xFF}, Value: nil}}, nil),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	ctx, err := src.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot() error = %v", err)
	}
	var buf bytes.Buffer
	if err := src.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	dst := newTestStateMachine()
	defer dst.Close()
	if err := dst.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot() error = %v", err)
	}

	if got := lookupSlice(t, dst, "r1"); len(got) != 1 || string(got[0].Value) != "1" {
		t.Errorf("r1 not recovered: %v", got)
	}
	if got := lookupSlice(t, dst, "r2"); len(got) != 1 || !bytes.Equal(got[0].Column, []byte{0, 0xFF}) {
		t.Errorf("r2 not recovered: %v", got)
	}
}
