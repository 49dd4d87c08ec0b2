package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnohosten/laura-db/pkg/replacer"
)

func newTestTableHeap(t *testing.T) *TableHeap {
	t.Helper()
	dir := t.TempDir()
	dm, err := NewDiskManager(dir, true)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	lm := NewLogManager(dm, time.Second)
	bp := NewBufferPool(8, dm, lm, replacer.VariantLRU, 2)

	heap, err := NewTableHeap(bp, lm)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	return heap
}

func TestTableHeapInsertAndGet(t *testing.T) {
	heap := newTestTableHeap(t)

	rid, err := heap.InsertTuple(1, []byte("row-one"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	tuple, err := heap.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if string(tuple) != "row-one" {
		t.Errorf("tuple = %q, want %q", tuple, "row-one")
	}
}

func TestTableHeapDeleteLifecycle(t *testing.T) {
	heap := newTestTableHeap(t)
	rid, err := heap.InsertTuple(1, []byte("to-delete"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	if err := heap.MarkDelete(1, rid); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if _, err := heap.GetTuple(rid); err == nil {
		t.Error("expected GetTuple to fail for a tombstoned rid")
	}
	if err := heap.RollbackDelete(1, rid); err != nil {
		t.Fatalf("RollbackDelete: %v", err)
	}
	if _, err := heap.GetTuple(rid); err != nil {
		t.Fatalf("GetTuple after rollback: %v", err)
	}

	if err := heap.MarkDelete(1, rid); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if err := heap.ApplyDelete(1, rid); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	if _, err := heap.GetTuple(rid); err == nil {
		t.Error("expected GetTuple to fail after ApplyDelete")
	}
}

func TestTableHeapSpillsToNewPage(t *testing.T) {
	heap := newTestTableHeap(t)

	tuple := make([]byte, 512)
	var rids []RID
	for i := 0; i < 20; i++ {
		rid, err := heap.InsertTuple(1, tuple)
		if err != nil {
			t.Fatalf("InsertTuple #%d: %v", i, err)
		}
		rids = append(rids, rid)
	}

	pages := map[PageID]bool{}
	for _, rid := range rids {
		pages[rid.PageID] = true
	}
	if len(pages) < 2 {
		t.Errorf("expected inserts to spill across multiple pages, got %d distinct pages", len(pages))
	}
}

func TestTableHeapIteratorSkipsDeleted(t *testing.T) {
	heap := newTestTableHeap(t)

	rid1, _ := heap.InsertTuple(1, []byte("a"))
	_, _ = heap.InsertTuple(1, []byte("b"))
	rid3, _ := heap.InsertTuple(1, []byte("c"))

	if err := heap.MarkDelete(1, rid1); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if err := heap.ApplyDelete(1, rid1); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}

	it := heap.Iterator()
	var seen []RID
	for {
		rid, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, rid)
	}
	if len(seen) != 2 {
		t.Fatalf("scanned %d tuples, want 2", len(seen))
	}
	if seen[len(seen)-1] != rid3 {
		t.Errorf("last scanned rid = %v, want %v", seen[len(seen)-1], rid3)
	}
}

func TestTableHeapCompactReclaimsSlots(t *testing.T) {
	heap := newTestTableHeap(t)
	rid, _ := heap.InsertTuple(1, []byte("gone"))
	heap.MarkDelete(1, rid)
	if err := heap.ApplyDelete(1, rid); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}

	n, err := heap.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if n == 0 {
		t.Error("expected Compact to reclaim at least one slot")
	}
}

func TestTableHeapSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	os.MkdirAll(dir, 0o755)

	dm, err := NewDiskManager(dir, true)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	lm := NewLogManager(dm, time.Second)
	bp := NewBufferPool(8, dm, lm, replacer.VariantLRU, 2)
	heap, err := NewTableHeap(bp, lm)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	rid, err := heap.InsertTuple(1, []byte("persisted"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	firstPageID := heap.FirstPageID()
	if err := bp.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	dm.Close()

	dm2, err := NewDiskManager(dir, true)
	if err != nil {
		t.Fatalf("reopen NewDiskManager: %v", err)
	}
	defer dm2.Close()
	lm2 := NewLogManager(dm2, time.Second)
	bp2 := NewBufferPool(8, dm2, lm2, replacer.VariantLRU, 2)
	heap2 := OpenTableHeap(bp2, lm2, firstPageID)

	tuple, err := heap2.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple after reopen: %v", err)
	}
	if string(tuple) != "persisted" {
		t.Errorf("tuple after reopen = %q, want %q", tuple, "persisted")
	}
}
