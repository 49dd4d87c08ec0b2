package storage

import (
	"log"
	"os"

	"github.com/mnohosten/laura-db/pkg/replacer"
)

// Config gathers the storage tunables in one value, with defaults from
// DefaultConfig, in place of the process-wide Config singleton the original
// source used. No constructor takes a Config and no storage component reads
// one: NewDiskManager, NewLogManager and NewBufferPool receive their
// settings as individual arguments.
type Config struct {
	// DataDir holds the heap file, log file, and persisted snapshot.
	DataDir string

	// BufferPoolSize is the number of frames the buffer pool holds.
	BufferPoolSize int

	// Replacer selects the eviction policy; defaults to LRU.
	Replacer replacer.Variant
	// LRUKValue is consulted only when Replacer == VariantLRUK.
	LRUKValue int

	// FlushIntervalMillis is the period, in milliseconds, of the log
	// manager's background flush thread (NewLogManager's flushPeriod).
	FlushIntervalMillis int

	// EnableChecksums selects BLAKE2b-256 page checksums, stamped on page
	// write and verified on read (NewDiskManager's enableChecksums). Log
	// records carry no checksum.
	EnableChecksums bool

	// LogCompression records whether INSERT/UPDATE log record tuple bodies
	// are to be compressed; the log manager appends every record
	// uncompressed regardless of it.
	LogCompression bool

	// SnapshotCompression selects the zstd envelope for the catalog
	// snapshot written by SaveState (catalog.NewManager's
	// snapshotCompression).
	SnapshotCompression bool

	// Logger is a diagnostic logger; no storage component writes to it.
	// logger() falls back to a prefixed stderr logger when it is nil.
	Logger *log.Logger
}

// DefaultConfig mirrors the corpus's existing storage.DefaultConfig
// pattern: sane defaults a caller can start from and override selectively.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:             dataDir,
		BufferPoolSize:      1000,
		Replacer:            replacer.VariantLRU,
		LRUKValue:           10,
		FlushIntervalMillis: 100,
		EnableChecksums:     true,
		Logger:              log.New(os.Stderr, "[storage] ", log.LstdFlags),
	}
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(os.Stderr, "[storage] ", log.LstdFlags)
}
