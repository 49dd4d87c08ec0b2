package catalog

import (
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
	"github.com/mnohosten/laura-db/pkg/index"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// TableInfo is one registered table: its schema and the heap holding its
// tuples.
type TableInfo struct {
	OID       uint32
	Name      string
	Schema    *Schema
	TableHeap *storage.TableHeap
}

// IndexInfo is one registered index: its key schema and the tree holding
// its entries.
type IndexInfo struct {
	OID       uint32
	Name      string
	KeySchema []Column
	KeySize   int
	Index     *index.BPlusTree
	TableName string
}

// ViewInfo is a named, unmaterialized query (§4.9: "a view expands into its
// query text at bind time").
type ViewInfo struct {
	Name      string
	QueryText string
}

// Catalog holds one database's metadata, protected by a single reader-writer
// mutex (§5's "per-database shared mutex; readers take it shared, writers
// exclusive").
type Catalog struct {
	bufferPool *storage.BufferPool
	logMgr     *storage.LogManager

	mu         sync.RWMutex
	nextOID    uint32
	tables     map[string]*TableInfo
	tableByOID map[uint32]*TableInfo
	indexes    map[string]*IndexInfo
	tableIdxs  map[string][]uint32
	indexByOID map[uint32]*IndexInfo
	views      map[string]*ViewInfo
}

// New creates an empty catalog bound to bufferPool/logMgr.
func New(bufferPool *storage.BufferPool, logMgr *storage.LogManager) *Catalog {
	return &Catalog{
		bufferPool: bufferPool,
		logMgr:     logMgr,
		tables:     make(map[string]*TableInfo),
		tableByOID: make(map[uint32]*TableInfo),
		indexes:    make(map[string]*IndexInfo),
		tableIdxs:  make(map[string][]uint32),
		indexByOID: make(map[uint32]*IndexInfo),
		views:      make(map[string]*ViewInfo),
	}
}

// CreateTable allocates the table's first heap page and installs the
// mapping atomically under the catalog's write latch.
func (c *Catalog) CreateTable(name string, schema *Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, errkind.New(errkind.AlreadyExists, "catalog", "table "+name+" already exists")
	}
	heap, err := storage.NewTableHeap(c.bufferPool, c.logMgr)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{OID: c.nextOID, Name: name, Schema: schema, TableHeap: heap}
	c.nextOID++
	c.tables[name] = info
	c.tableByOID[info.OID] = info
	return info, nil
}

// CreateIndex builds a new B+-tree over keyColumns of table, keyed by
// keySize-byte encoded keys compared by cmp.
func (c *Catalog) CreateIndex(name, tableName string, keyColumns []Column, keySize int, cmp index.Comparator) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.indexes[name]; exists {
		return nil, errkind.New(errkind.AlreadyExists, "catalog", "index "+name+" already exists")
	}
	if _, exists := c.tables[tableName]; !exists {
		return nil, errkind.New(errkind.NotFound, "catalog", "table "+tableName+" not found")
	}

	tree, err := index.NewBPlusTree(name, c.bufferPool, keySize, cmp)
	if err != nil {
		return nil, err
	}
	info := &IndexInfo{OID: c.nextOID, Name: name, KeySchema: keyColumns, KeySize: keySize, Index: tree, TableName: tableName}
	c.nextOID++
	c.indexes[name] = info
	c.indexByOID[info.OID] = info
	c.tableIdxs[tableName] = append(c.tableIdxs[tableName], info.OID)
	return info, nil
}

// GetTable looks up a table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// GetTableByOID looks up a table by oid (§4.9's get-table(name|oid)).
func (c *Catalog) GetTableByOID(oid uint32) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tableByOID[oid]
	return t, ok
}

// GetIndex looks up an index by name.
func (c *Catalog) GetIndex(name string) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	return idx, ok
}

// GetIndexByOID looks up an index by oid (§4.9's get-index(name|oid)).
func (c *Catalog) GetIndexByOID(oid uint32) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexByOID[oid]
	return idx, ok
}

// GetTableIndexes returns every index registered against table.
func (c *Catalog) GetTableIndexes(table string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oids := c.tableIdxs[table]
	out := make([]*IndexInfo, 0, len(oids))
	for _, oid := range oids {
		out = append(out, c.indexByOID[oid])
	}
	return out
}

// CreateView registers a named, unmaterialized query.
func (c *Catalog) CreateView(name, queryText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.views[name]; exists {
		return errkind.New(errkind.AlreadyExists, "catalog", "view "+name+" already exists")
	}
	c.views[name] = &ViewInfo{Name: name, QueryText: queryText}
	return nil
}

// GetView looks up a view by name.
func (c *Catalog) GetView(name string) (*ViewInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[name]
	return v, ok
}

// TableNames lists every registered table, for save_state.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}
