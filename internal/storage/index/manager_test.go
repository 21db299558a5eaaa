package index

import (
	"testing"
)

func TestIndexManagerCreateOpenCloseDrop(t *testing.T) {
	bm := newTestBufferManager(t)
	dir := t.TempDir()
	m := NewIndexManager(bm, dir, 4)

	idx, err := m.CreateIndex("users", "id")
	if err != nil {
		t.Fatal(err)
	}
	idx.Insert(1, rid(0, 0))
	idx.Insert(2, rid(0, 1))

	if _, err := m.CreateIndex("users", "id"); err == nil {
		t.Fatal("expected ErrIndexAlreadyExists on double create")
	}

	if err := m.CloseIndex("users", "id"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get("users", "id"); err == nil {
		t.Fatal("expected IndexNotOpenError after close")
	}

	reopened, err := m.OpenIndex("users", "id")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.Search(2); !ok || v != rid(0, 1) {
		t.Fatalf("search(2) = (%v,%v)", v, ok)
	}

	// Idempotent open.
	again, err := m.OpenIndex("users", "id")
	if err != nil {
		t.Fatal(err)
	}
	if again != reopened {
		t.Fatal("expected OpenIndex to be idempotent for an already-open index")
	}

	if err := m.DropIndex("users", "id"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.OpenIndex("users", "id"); err == nil {
		t.Fatal("expected open to fail after drop")
	}
}

func TestIndexManagerCreateIndexFromTable(t *testing.T) {
	bm := newTestBufferManager(t)
	dir := t.TempDir()
	m := NewIndexManager(bm, dir, 4)

	var entries []ScanEntry
	for i := int64(20); i >= 0; i-- { // deliberately unsorted input
		entries = append(entries, ScanEntry{ID: rid(uint32(i), 0), Key: i})
	}

	idx, stats, err := m.CreateIndexFromTable("orders", "amount", entries)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 21 {
		t.Fatalf("stats.Entries = %d, want 21", stats.Entries)
	}
	if stats.ActualHeight < 1 {
		t.Fatalf("stats.ActualHeight = %d, want >= 1", stats.ActualHeight)
	}
	for i := int64(0); i <= 20; i++ {
		if v, ok := idx.Search(i); !ok || v != rid(uint32(i), 0) {
			t.Fatalf("search(%d) = (%v,%v)", i, v, ok)
		}
	}
	checkTreeInvariants(t, idx.Tree())
}

func TestIndexManagerCreateIndexFromEmptyTable(t *testing.T) {
	bm := newTestBufferManager(t)
	dir := t.TempDir()
	m := NewIndexManager(bm, dir, 4)

	idx, stats, err := m.CreateIndexFromTable("empty", "id", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 || idx.Tree().Len() != 0 {
		t.Fatalf("expected empty index, got %+v", stats)
	}
}

func TestIndexManagerFlushAll(t *testing.T) {
	bm := newTestBufferManager(t)
	dir := t.TempDir()
	m := NewIndexManager(bm, dir, 4)

	if _, err := m.CreateIndex("a", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateIndex("b", "y"); err != nil {
		t.Fatal(err)
	}
	if err := m.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
