package storage

import (
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
	"github.com/mnohosten/laura-db/pkg/replacer"
)

// logForcer is the minimal surface the buffer pool needs from the log
// manager to honor write-ahead logging: a dirty page's LSN must be durable
// before its bytes may reach disk (§4.3, invariant 1 of §8).
type logForcer interface {
	ForceUpTo(lsn uint64) error
}

// BufferPool is the frame table described in §4.3: a fixed-capacity cache
// of pages backed by a pluggable replacement policy, with a free list of
// never-used frame slots consulted before any eviction is attempted.
type BufferPool struct {
	capacity int
	diskMgr  *DiskManager
	logMgr   logForcer
	replacer replacer.Replacer

	mu        sync.Mutex
	pages     map[PageID]*Page
	freeSlots int // never-used capacity remaining before eviction is required

	hits      int64
	misses    int64
	evictions int64
}

// NewBufferPool constructs a buffer pool of the given capacity. logMgr may
// be nil during bring-up (e.g. constructing the log manager's own
// checkpoint page), in which case dirty victims are flushed unconditionally.
func NewBufferPool(capacity int, diskMgr *DiskManager, logMgr logForcer, variant replacer.Variant, lruK int) *BufferPool {
	return &BufferPool{
		capacity:  capacity,
		diskMgr:   diskMgr,
		logMgr:    logMgr,
		replacer:  replacer.New(variant, capacity, lruK),
		pages:     make(map[PageID]*Page, capacity),
		freeSlots: capacity,
	}
}

// SetLogManager wires the log manager in after construction, breaking the
// constructor cycle between BufferPool and LogManager (the log manager
// itself does not need a buffer pool, but higher-level engine wiring
// constructs both before either is fully usable).
func (bp *BufferPool) SetLogManager(logMgr logForcer) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.logMgr = logMgr
}

// Fetch returns the page for pid, pinned once. If the page is not already
// resident it is read from disk, evicting a victim frame first if the pool
// is at capacity.
func (bp *BufferPool) Fetch(pid PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[pid]; ok {
		page.Pin()
		bp.replacer.Pin(replacer.FrameID(pid))
		if ra, ok := bp.replacer.(interface{ RecordAccess(replacer.FrameID) }); ok {
			ra.RecordAccess(replacer.FrameID(pid))
		}
		bp.hits++
		return page, nil
	}

	bp.misses++
	if err := bp.ensureRoomLocked(); err != nil {
		return nil, err
	}

	page, err := bp.diskMgr.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	page.Pin()
	bp.pages[pid] = page
	bp.replacer.Pin(replacer.FrameID(pid))
	if ra, ok := bp.replacer.(interface{ RecordAccess(replacer.FrameID) }); ok {
		ra.RecordAccess(replacer.FrameID(pid))
	}
	return page, nil
}

// NewPage allocates a fresh page id from the disk manager and installs a
// zeroed, pinned, dirty page for it in the pool.
func (bp *BufferPool) NewPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if err := bp.ensureRoomLocked(); err != nil {
		return nil, err
	}

	pid, err := bp.diskMgr.AllocatePage()
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "buffer_pool", "allocate page", err)
	}

	page := NewPage(pid, PageTypeData)
	page.MarkDirty()
	page.Pin()
	bp.pages[pid] = page
	bp.replacer.Pin(replacer.FrameID(pid))
	return page, nil
}

// Unpin decrements the pin count; isDirty (if true) is OR'd into the
// page's dirty flag. Once the pin count reaches zero the frame becomes an
// eviction candidate.
func (bp *BufferPool) Unpin(pid PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	page, ok := bp.pages[pid]
	if !ok {
		return errkind.New(errkind.InvalidState, "buffer_pool", "unpin of non-resident page")
	}
	if !page.IsPinned() {
		return errkind.New(errkind.InvalidState, "buffer_pool", "unpin of frame at pin count 0")
	}
	if isDirty {
		page.MarkDirty()
	}
	page.Unpin()
	if !page.IsPinned() {
		bp.replacer.Unpin(replacer.FrameID(pid))
	}
	return nil
}

// Flush writes pid to disk if resident, forcing the log up to the page's
// LSN first (write-ahead logging). The page remains resident.
func (bp *BufferPool) Flush(pid PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	page, ok := bp.pages[pid]
	if !ok {
		return errkind.New(errkind.NotFound, "buffer_pool", "flush of non-resident page")
	}
	return bp.flushLocked(page)
}

func (bp *BufferPool) flushLocked(page *Page) error {
	if !page.IsDirty {
		return nil
	}
	if bp.logMgr != nil {
		if err := bp.logMgr.ForceUpTo(page.LSN); err != nil {
			return errkind.Wrap(errkind.IO, "buffer_pool", "force log before flush", err)
		}
	}
	if err := bp.diskMgr.WritePage(page); err != nil {
		return err
	}
	page.IsDirty = false
	return nil
}

// FlushAll writes every dirty resident page to disk.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, page := range bp.pages {
		if err := bp.flushLocked(page); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes pid from the pool and returns it to the disk manager's
// free list. Fails if the page is still pinned.
func (bp *BufferPool) Delete(pid PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[pid]; ok {
		if page.IsPinned() {
			return errkind.New(errkind.InvalidState, "buffer_pool", "delete of pinned page")
		}
		bp.replacer.Pin(replacer.FrameID(pid)) // remove from eviction candidates
		delete(bp.pages, pid)
		bp.freeSlots++
	}
	return bp.diskMgr.DeallocatePage(pid)
}

// ensureRoomLocked guarantees a free slot exists, evicting an unpinned
// victim if the pool is at capacity. Must be called with bp.mu held.
func (bp *BufferPool) ensureRoomLocked() error {
	if bp.freeSlots > 0 {
		bp.freeSlots--
		return nil
	}

	victim, ok := bp.replacer.Victim()
	if !ok {
		return errkind.New(errkind.OutOfMemory, "buffer_pool", "no unpinned frame available for eviction")
	}
	victimPid := PageID(victim)
	page, ok := bp.pages[victimPid]
	if !ok {
		return errkind.New(errkind.InvalidState, "buffer_pool", "replacer returned unknown frame")
	}
	if err := bp.flushLocked(page); err != nil {
		return err
	}
	delete(bp.pages, victimPid)
	bp.evictions++
	return nil
}

// Stats reports hit/miss/eviction counters for diagnostics.
func (bp *BufferPool) Stats() map[string]int64 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	total := bp.hits + bp.misses
	hitRate := int64(0)
	if total > 0 {
		hitRate = bp.hits * 100 / total
	}
	return map[string]int64{
		"capacity":  int64(bp.capacity),
		"size":      int64(len(bp.pages)),
		"hits":      bp.hits,
		"misses":    bp.misses,
		"evictions": bp.evictions,
		"hit_rate":  hitRate,
	}
}
