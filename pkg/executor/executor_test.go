package executor

import (
	"testing"
	"time"

	"github.com/mnohosten/laura-db/pkg/catalog"
	"github.com/mnohosten/laura-db/pkg/index"
	"github.com/mnohosten/laura-db/pkg/replacer"
	"github.com/mnohosten/laura-db/pkg/storage"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	dm, err := storage.NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	lm := storage.NewLogManager(dm, time.Second)
	bp := storage.NewBufferPool(32, dm, lm, replacer.VariantLRU, 2)
	cat := catalog.New(bp, lm)

	schema := catalog.NewSchema([]catalog.Column{
		{Name: "id", Type: catalog.ColumnBigInt},
		{Name: "flag", Type: catalog.ColumnBoolean},
	})
	if _, err := cat.CreateTable("widgets", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateIndex("widgets_id", "widgets", schema.Columns[:1], 8, index.Int64Comparator); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	return New(cat, 1)
}

func TestInsertScanMarkDelete(t *testing.T) {
	exec := newTestExecutor(t)

	tuple := make([]byte, 9)
	rid, err := exec.InsertTuple("widgets", tuple)
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	idxInfo, ok := exec.catalog.GetIndex("widgets_id")
	if !ok {
		t.Fatal("GetIndex: widgets_id not found")
	}
	if err := idxInfo.Index.Insert(index.EncodeInt64Key(1), rid); err != nil {
		t.Fatalf("index Insert: %v", err)
	}

	got, err := exec.IndexScan("widgets_id", index.EncodeInt64Key(1))
	if err != nil {
		t.Fatalf("IndexScan: %v", err)
	}
	defer got.Close()
	if !got.Valid() {
		t.Fatal("IndexScan returned no entries")
	}
	if got.RID() != rid {
		t.Errorf("IndexScan RID = %v, want %v", got.RID(), rid)
	}

	it, err := exec.SeqScan("widgets")
	if err != nil {
		t.Fatalf("SeqScan: %v", err)
	}
	seen := 0
	for {
		r, _, ok := it.Next()
		if !ok {
			break
		}
		if r == rid {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("SeqScan saw rid %d times, want 1", seen)
	}

	if err := exec.MarkDelete("widgets", rid); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
}

func TestInsertTupleMissingTable(t *testing.T) {
	exec := newTestExecutor(t)
	if _, err := exec.InsertTuple("nope", nil); err == nil {
		t.Error("expected error inserting into missing table")
	}
}
