package catalog

import (
	"testing"
	"time"

	"github.com/mnohosten/laura-db/pkg/index"
	"github.com/mnohosten/laura-db/pkg/replacer"
	"github.com/mnohosten/laura-db/pkg/storage"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dm, err := storage.NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	lm := storage.NewLogManager(dm, time.Second)
	bp := storage.NewBufferPool(32, dm, lm, replacer.VariantLRU, 2)
	return New(bp, lm)
}

func testSchema() *Schema {
	return NewSchema([]Column{
		{Name: "id", Type: ColumnBigInt},
		{Name: "name", Type: ColumnVarchar, MaxLength: 64},
	})
}

// TestGetTableNameOIDRoundTrip drives §8's testable property:
// get_table(name).oid == get_table(get_table(name).oid).oid.
func TestGetTableNameOIDRoundTrip(t *testing.T) {
	cat := newTestCatalog(t)
	if _, err := cat.CreateTable("widgets", testSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	byName, ok := cat.GetTable("widgets")
	if !ok {
		t.Fatal("GetTable(widgets) not found")
	}
	byOID, ok := cat.GetTableByOID(byName.OID)
	if !ok {
		t.Fatalf("GetTableByOID(%d) not found", byName.OID)
	}
	if byOID.OID != byName.OID {
		t.Errorf("GetTableByOID(%d).OID = %d, want %d", byName.OID, byOID.OID, byName.OID)
	}
	if byOID.Name != byName.Name {
		t.Errorf("GetTableByOID(%d).Name = %q, want %q", byName.OID, byOID.Name, byName.Name)
	}
}

func TestGetIndexNameOIDRoundTrip(t *testing.T) {
	cat := newTestCatalog(t)
	schema := testSchema()
	if _, err := cat.CreateTable("widgets", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateIndex("widgets_id", "widgets", schema.Columns[:1], 8, index.Int64Comparator); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	byName, ok := cat.GetIndex("widgets_id")
	if !ok {
		t.Fatal("GetIndex(widgets_id) not found")
	}
	byOID, ok := cat.GetIndexByOID(byName.OID)
	if !ok {
		t.Fatalf("GetIndexByOID(%d) not found", byName.OID)
	}
	if byOID.OID != byName.OID {
		t.Errorf("GetIndexByOID(%d).OID = %d, want %d", byName.OID, byOID.OID, byName.OID)
	}
}

func TestCreateTableDuplicateRejected(t *testing.T) {
	cat := newTestCatalog(t)
	if _, err := cat.CreateTable("widgets", testSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateTable("widgets", testSchema()); err == nil {
		t.Error("expected error creating duplicate table")
	}
}

func TestCreateIndexRequiresExistingTable(t *testing.T) {
	cat := newTestCatalog(t)
	schema := testSchema()
	if _, err := cat.CreateIndex("widgets_id", "widgets", schema.Columns[:1], 8, index.Int64Comparator); err == nil {
		t.Error("expected error creating index against a missing table")
	}
}

func TestGetTableIndexes(t *testing.T) {
	cat := newTestCatalog(t)
	schema := testSchema()
	if _, err := cat.CreateTable("widgets", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateIndex("widgets_id", "widgets", schema.Columns[:1], 8, index.Int64Comparator); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	idxs := cat.GetTableIndexes("widgets")
	if len(idxs) != 1 || idxs[0].Name != "widgets_id" {
		t.Errorf("GetTableIndexes(widgets) = %+v, want [widgets_id]", idxs)
	}
}
