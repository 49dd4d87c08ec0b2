package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
)

// DiskManager owns the heap file and the log file and performs all
// synchronous disk I/O (§4.1, C1). Failures surface as errkind-tagged
// errors; the caller is expected to abort the operation.
type DiskManager struct {
	dataFile     *os.File
	logFile      *os.File
	nextPageID   PageID
	freePageList *FreePageList
	checksums    bool

	mu          sync.Mutex
	totalReads  int64
	totalWrites int64
}

// NewDiskManager opens (creating if necessary) the heap file at
// dataDir/heap.db and the log file at dataDir/wal.log.
func NewDiskManager(dataDir string, enableChecksums bool) (*DiskManager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "create data directory", err)
	}

	dataFile, err := os.OpenFile(dataDir+"/heap.db", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "open heap file", err)
	}

	logFile, err := os.OpenFile(dataDir+"/wal.log", os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		dataFile.Close()
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "open log file", err)
	}

	info, err := dataFile.Stat()
	if err != nil {
		dataFile.Close()
		logFile.Close()
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "stat heap file", err)
	}

	dm := &DiskManager{
		dataFile:     dataFile,
		logFile:      logFile,
		nextPageID:   PageID(info.Size() / PageSize),
		freePageList: NewFreePageList(),
		checksums:    enableChecksums,
	}

	// Page id 0 is reserved for the index-root header page (§3); a brand
	// new heap file must reserve it before any table or index page is
	// allocated.
	if info.Size() == 0 {
		header := NewPage(HeaderPageID, PageTypeHeader)
		if err := dm.writePageInternal(header); err != nil {
			dataFile.Close()
			logFile.Close()
			return nil, err
		}
		dm.nextPageID = 1
	}
	return dm, nil
}

// ReadPage reads one page; fails if id is past the allocated range.
func (dm *DiskManager) ReadPage(pageID PageID) (*Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.readPageInternal(pageID)
}

func (dm *DiskManager) readPageInternal(pageID PageID) (*Page, error) {
	if pageID == InvalidPageID {
		return nil, errkind.New(errkind.NotFound, "disk_manager", "invalid page id")
	}

	offset := int64(pageID) * PageSize
	buf := make([]byte, PageSize)

	n, err := dm.dataFile.ReadAt(buf, offset)
	if err != nil && n < PageSize {
		// Short/absent read: a page within the allocated range that was
		// never written (e.g. a freshly allocated page) reads as zero.
		if pageID < dm.nextPageID {
			return NewPage(pageID, PageTypeData), nil
		}
		return nil, errkind.Wrap(errkind.NotFound, "disk_manager", fmt.Sprintf("page %d not found", pageID), err)
	}

	page := NewPage(pageID, PageTypeData)
	if err := page.Deserialize(buf, dm.checksums); err != nil {
		return nil, errkind.Wrap(errkind.Corruption, "disk_manager", fmt.Sprintf("deserialize page %d", pageID), err)
	}

	dm.totalReads++
	return page, nil
}

// WritePage overwrites one page, extending the file as necessary.
func (dm *DiskManager) WritePage(page *Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.writePageInternal(page)
}

func (dm *DiskManager) writePageInternal(page *Page) error {
	offset := int64(page.ID) * PageSize
	buf := page.Serialize(dm.checksums)
	if _, err := dm.dataFile.WriteAt(buf, offset); err != nil {
		return errkind.Wrap(errkind.IO, "disk_manager", fmt.Sprintf("write page %d", page.ID), err)
	}
	dm.totalWrites++
	return nil
}

// AllocatePage returns the next free page id: a reused id from the free
// list if one is available, else the next monotonic id.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.freePageList.PageCount > 0 || dm.freePageList.HeadPageID != InvalidPageID {
		pageID, ok, err := dm.popFreePage()
		if err != nil {
			return 0, errkind.Wrap(errkind.IO, "disk_manager", "pop free page", err)
		}
		if ok {
			return pageID, nil
		}
	}

	pageID := dm.nextPageID
	dm.nextPageID++
	return pageID, nil
}

// DeallocatePage returns pageID to the free list for reuse.
func (dm *DiskManager) DeallocatePage(pageID PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageID >= dm.nextPageID {
		return errkind.New(errkind.InvalidState, "disk_manager", fmt.Sprintf("page %d was never allocated", pageID))
	}
	if err := dm.pushFreePage(pageID); err != nil {
		return errkind.Wrap(errkind.IO, "disk_manager", "push free page", err)
	}
	return nil
}

// WriteLog appends raw bytes to the log file (§4.1's write_log).
func (dm *DiskManager) WriteLog(buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if _, err := dm.logFile.Write(buf); err != nil {
		return errkind.Wrap(errkind.IO, "disk_manager", "write log", err)
	}
	return nil
}

// FlushLog fsyncs the log file.
func (dm *DiskManager) FlushLog() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.logFile.Sync(); err != nil {
		return errkind.Wrap(errkind.IO, "disk_manager", "flush log", err)
	}
	return nil
}

// ReadLogFromStart returns the entire log file contents, for replay/scan.
func (dm *DiskManager) ReadLogFromStart() ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.logFile.Sync(); err != nil {
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "flush log before read", err)
	}
	info, err := dm.logFile.Stat()
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "stat log file", err)
	}
	buf := make([]byte, info.Size())
	if _, err := dm.logFile.ReadAt(buf, 0); err != nil && len(buf) > 0 {
		return nil, errkind.Wrap(errkind.IO, "disk_manager", "read log file", err)
	}
	return buf, nil
}

// Sync flushes the heap file to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.dataFile.Sync(); err != nil {
		return errkind.Wrap(errkind.IO, "disk_manager", "sync heap file", err)
	}
	return nil
}

// Close syncs and closes both files.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.dataFile.Sync()
	dm.logFile.Sync()
	if err := dm.dataFile.Close(); err != nil {
		return err
	}
	return dm.logFile.Close()
}

// NextPageID reports the next id AllocatePage would hand out absent a free
// page, used by ScanForCompaction-style administrative passes.
func (dm *DiskManager) NextPageID() PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.nextPageID
}

// Stats returns disk manager counters for diagnostics.
func (dm *DiskManager) Stats() map[string]int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return map[string]int64{
		"next_page_id": int64(dm.nextPageID),
		"free_pages":   int64(dm.freePageList.PageCount),
		"total_reads":  dm.totalReads,
		"total_writes": dm.totalWrites,
	}
}

// pushFreePage adds pageID to the on-disk free list. Must be called with
// dm.mu held.
func (dm *DiskManager) pushFreePage(pageID PageID) error {
	if dm.freePageList.HeadPageID == InvalidPageID {
		freeListPageID := dm.nextPageID
		dm.nextPageID++

		page := NewPage(freeListPageID, PageTypeFreeList)
		InitializeFreeListPage(page)
		if _, err := AddFreePageToList(page, pageID); err != nil {
			return err
		}
		if err := dm.writePageInternal(page); err != nil {
			return err
		}
		dm.freePageList.HeadPageID = freeListPageID
		dm.freePageList.PageCount = 1
		return nil
	}

	headPage, err := dm.readPageInternal(dm.freePageList.HeadPageID)
	if err != nil {
		return err
	}
	headPage.Type = PageTypeFreeList

	added, err := AddFreePageToList(headPage, pageID)
	if err != nil {
		return err
	}
	if added {
		if err := dm.writePageInternal(headPage); err != nil {
			return err
		}
		dm.freePageList.PageCount++
		return nil
	}

	newHead := NewPage(pageID, PageTypeFreeList)
	InitializeFreeListPage(newHead)
	header := &FreePageHeader{NextFreeListPage: dm.freePageList.HeadPageID, EntryCount: 0}
	SerializeFreePageHeader(newHead, header)
	if err := dm.writePageInternal(newHead); err != nil {
		return err
	}
	dm.freePageList.HeadPageID = pageID
	dm.freePageList.PageCount++
	return nil
}

// popFreePage removes and returns a page from the free list. Must be
// called with dm.mu held.
func (dm *DiskManager) popFreePage() (PageID, bool, error) {
	if dm.freePageList.HeadPageID == InvalidPageID {
		return 0, false, nil
	}

	headPage, err := dm.readPageInternal(dm.freePageList.HeadPageID)
	if err != nil {
		return 0, false, err
	}
	headPage.Type = PageTypeFreeList

	pageID, removed, err := RemoveFreePageFromList(headPage)
	if err != nil {
		return 0, false, err
	}

	if !removed {
		header, err := DeserializeFreePageHeader(headPage)
		if err != nil {
			return 0, false, err
		}
		oldHead := dm.freePageList.HeadPageID
		dm.freePageList.HeadPageID = header.NextFreeListPage
		if dm.freePageList.PageCount > 0 {
			dm.freePageList.PageCount--
		}
		return oldHead, true, nil
	}

	if err := dm.writePageInternal(headPage); err != nil {
		return 0, false, err
	}
	if dm.freePageList.PageCount > 0 {
		dm.freePageList.PageCount--
	}
	return pageID, true, nil
}
