// Package executor exposes the narrow operator surface the SQL layer is
// allowed to call (§4.10, C10): nothing above this package touches a page,
// a table heap, or a B+-tree directly.
package executor

import (
	"github.com/mnohosten/laura-db/pkg/catalog"
	"github.com/mnohosten/laura-db/pkg/errkind"
	"github.com/mnohosten/laura-db/pkg/index"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// Executor binds one database's catalog to the operations named in §4.10.
type Executor struct {
	txnID   uint64
	catalog *catalog.Catalog
}

// New returns an Executor bound to cat, tagging every mutation it performs
// with txnID (the log records' txn_id field).
func New(cat *catalog.Catalog, txnID uint64) *Executor {
	return &Executor{txnID: txnID, catalog: cat}
}

// SeqScan returns an iterator over every live (non-tombstoned) tuple in
// table, in heap order.
func (e *Executor) SeqScan(table string) (*storage.TableIterator, error) {
	info, ok := e.catalog.GetTable(table)
	if !ok {
		return nil, tableNotFound(table)
	}
	return info.TableHeap.Iterator(), nil
}

// IndexScan returns an ordered iterator over the named index, positioned at
// the first entry whose key is >= key, or at the first entry of the index
// when key is nil (a whole-range scan).
func (e *Executor) IndexScan(indexName string, key []byte) (*index.Iterator, error) {
	info, ok := e.catalog.GetIndex(indexName)
	if !ok {
		return nil, indexNotFound(indexName)
	}
	if key == nil {
		return info.Index.Begin()
	}
	return info.Index.BeginAt(key)
}

// InsertTuple appends tuple to table and returns its RID. Callers are
// responsible for updating any affected indexes (the executor surface does
// not infer which indexes cover which columns).
func (e *Executor) InsertTuple(table string, tuple []byte) (storage.RID, error) {
	info, ok := e.catalog.GetTable(table)
	if !ok {
		return storage.RID{}, tableNotFound(table)
	}
	return info.TableHeap.InsertTuple(e.txnID, tuple)
}

// MarkDelete tombstones rid within table.
func (e *Executor) MarkDelete(table string, rid storage.RID) error {
	info, ok := e.catalog.GetTable(table)
	if !ok {
		return tableNotFound(table)
	}
	return info.TableHeap.MarkDelete(e.txnID, rid)
}

// UpdateTuple overwrites rid's tuple with newTuple (same-length tuples
// only, per the table page's in-place update constraint).
func (e *Executor) UpdateTuple(table string, rid storage.RID, newTuple []byte) error {
	info, ok := e.catalog.GetTable(table)
	if !ok {
		return tableNotFound(table)
	}
	return info.TableHeap.UpdateTuple(e.txnID, rid, newTuple)
}

// CreateTable registers a new table with schema.
func (e *Executor) CreateTable(name string, schema *catalog.Schema) error {
	_, err := e.catalog.CreateTable(name, schema)
	return err
}

// CreateIndex builds a new index over keyColumns of table.
func (e *Executor) CreateIndex(name, table string, keyColumns []catalog.Column, keySize int, cmp index.Comparator) error {
	_, err := e.catalog.CreateIndex(name, table, keyColumns, keySize, cmp)
	return err
}

func tableNotFound(name string) error {
	return errkind.New(errkind.NotFound, "executor", "table "+name+" not found")
}

func indexNotFound(name string) error {
	return errkind.New(errkind.NotFound, "executor", "index "+name+" not found")
}
