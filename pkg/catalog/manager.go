package catalog

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"github.com/mnohosten/laura-db/pkg/compression"
	"github.com/mnohosten/laura-db/pkg/errkind"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// databaseHandle pairs one database's catalog with the storage engine
// backing it, so Manager can open/close heap files per database.
type databaseHandle struct {
	catalog    *Catalog
	diskMgr    *storage.DiskManager
	logMgr     *storage.LogManager
	bufferPool *storage.BufferPool
}

// Manager is the top-level `database_name -> catalog` directory (§4.9) with
// a single current_database pointer governing unqualified name resolution.
// It owns save_state/load_state, the persisted-state snapshot format named
// in §6 and supplemented onto the catalog package per §10.3.
type Manager struct {
	dataRoot string

	mu      sync.RWMutex
	dbs     map[string]*databaseHandle
	current string

	snapshotCompression bool
}

// NewManager opens (or creates) the database directory rooted at dataRoot.
func NewManager(dataRoot string, snapshotCompression bool) *Manager {
	return &Manager{
		dataRoot:            dataRoot,
		dbs:                 make(map[string]*databaseHandle),
		snapshotCompression: snapshotCompression,
	}
}

// CreateDatabase opens a fresh heap/log/buffer-pool trio under
// dataRoot/name and registers an empty catalog for it.
func (m *Manager) CreateDatabase(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.dbs[name]; exists {
		return errkind.New(errkind.AlreadyExists, "catalog", "database "+name+" already exists")
	}

	dm, err := storage.NewDiskManager(m.dataRoot+"/"+name, true)
	if err != nil {
		return err
	}
	lm := storage.NewLogManager(dm, defaultFlushPeriod)
	lm.RunFlushThread()
	bp := storage.NewBufferPool(defaultPoolSize, dm, lm, defaultReplacerVariant, defaultLRUK)

	m.dbs[name] = &databaseHandle{
		catalog:    New(bp, lm),
		diskMgr:    dm,
		logMgr:     lm,
		bufferPool: bp,
	}
	if m.current == "" {
		m.current = name
	}
	return nil
}

// UseDatabase switches current_database to name.
func (m *Manager) UseDatabase(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.dbs[name]; !exists {
		return errkind.New(errkind.NotFound, "catalog", "database "+name+" not found")
	}
	m.current = name
	return nil
}

// ListDatabases returns every registered database name.
func (m *Manager) ListDatabases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.dbs))
	for name := range m.dbs {
		names = append(names, name)
	}
	return names
}

// Current returns the catalog for current_database.
func (m *Manager) Current() (*Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.dbs[m.current]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "catalog", "no current database selected")
	}
	return h.catalog, nil
}

const stateFileName = "hmssql_state.db"

// SaveState writes the binary directory snapshot described in §6: database
// names, their table names/oids/schemas, and the current database name.
// When snapshotCompression is set the payload (everything past the magic
// byte) is zstd-compressed via the shared compression.Compressor.
func (m *Manager) SaveState() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(m.dbs)))
	for name, h := range m.dbs {
		writeString(&buf, name)
		tables := h.catalog.TableNames()
		writeUint32(&buf, uint32(len(tables)))
		for _, tname := range tables {
			info, _ := h.catalog.GetTable(tname)
			writeString(&buf, tname)
			writeUint32(&buf, info.OID)
			writeUint32(&buf, uint32(len(info.Schema.Columns)))
			for _, col := range info.Schema.Columns {
				writeString(&buf, col.Name)
				buf.WriteByte(byte(col.Type))
			}
		}
	}
	writeString(&buf, m.current)

	payload := buf.Bytes()
	if m.snapshotCompression {
		comp, err := compression.NewCompressor(compression.DefaultConfig())
		if err != nil {
			return err
		}
		compressed, err := comp.Compress(payload)
		if err != nil {
			return err
		}
		return os.WriteFile(m.dataRoot+"/"+stateFileName, append([]byte{1}, compressed...), 0o644)
	}
	return os.WriteFile(m.dataRoot+"/"+stateFileName, append([]byte{0}, payload...), 0o644)
}

// LoadState reads back the snapshot written by SaveState and returns the
// database names and current_database it records. Table entries are parsed
// and skipped. It registers no database with the Manager and opens no heap,
// log or index file.
func (m *Manager) LoadState() (names []string, current string, err error) {
	raw, err := os.ReadFile(m.dataRoot + "/" + stateFileName)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.IO, "catalog", "read state file", err)
	}
	if len(raw) == 0 {
		return nil, "", errkind.New(errkind.Corruption, "catalog", "empty state file")
	}
	compressed, payload := raw[0] == 1, raw[1:]
	if compressed {
		comp, cerr := compression.NewCompressor(compression.DefaultConfig())
		if cerr != nil {
			return nil, "", cerr
		}
		payload, err = comp.Decompress(payload)
		if err != nil {
			return nil, "", err
		}
	}

	r := bytes.NewReader(payload)
	numDBs, err := readUint32(r)
	if err != nil {
		return nil, "", err
	}
	names = make([]string, 0, numDBs)
	for i := uint32(0); i < numDBs; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, "", err
		}
		names = append(names, name)
		numTables, err := readUint32(r)
		if err != nil {
			return nil, "", err
		}
		for j := uint32(0); j < numTables; j++ {
			if _, err := readString(r); err != nil { // table name
				return nil, "", err
			}
			if _, err := readUint32(r); err != nil { // oid
				return nil, "", err
			}
			colCount, err := readUint32(r)
			if err != nil {
				return nil, "", err
			}
			for k := uint32(0); k < colCount; k++ {
				if _, err := readString(r); err != nil {
					return nil, "", err
				}
				typeByte := make([]byte, 1)
				if _, err := r.Read(typeByte); err != nil {
					return nil, "", err
				}
			}
		}
	}
	current, err = readString(r)
	if err != nil {
		return nil, "", err
	}
	return names, current, nil
}

// Close shuts down every open database's background workers and files.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, h := range m.dbs {
		h.logMgr.StopFlushThread()
		if err := h.diskMgr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, errkind.Wrap(errkind.Corruption, "catalog", "truncated state file", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", errkind.Wrap(errkind.Corruption, "catalog", "truncated state file", err)
	}
	return string(b), nil
}
