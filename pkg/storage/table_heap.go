package storage

import (
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
)

// TableHeap is a doubly-linked list of slotted pages storing the tuples of
// one table (§4.5, C5). Insert walks the list from the first page,
// attempting page.Insert on each; on failure it allocates a new page,
// links it at the tail, and retries there.
type TableHeap struct {
	bufferPool *BufferPool
	logMgr     *LogManager

	mu          sync.Mutex
	firstPageID PageID
}

// NewTableHeap allocates the first page of a brand-new table.
func NewTableHeap(bp *BufferPool, logMgr *LogManager) (*TableHeap, error) {
	page, err := bp.NewPage()
	if err != nil {
		return nil, err
	}
	NewTablePage(page, InvalidPageID, InvalidPageID)
	firstID := page.ID
	if err := bp.Unpin(page.ID, true); err != nil {
		return nil, err
	}
	return &TableHeap{bufferPool: bp, logMgr: logMgr, firstPageID: firstID}, nil
}

// OpenTableHeap reattaches to an existing heap whose first page is known
// (as recorded by the catalog).
func OpenTableHeap(bp *BufferPool, logMgr *LogManager, firstPageID PageID) *TableHeap {
	return &TableHeap{bufferPool: bp, logMgr: logMgr, firstPageID: firstPageID}
}

func (h *TableHeap) FirstPageID() PageID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firstPageID
}

// InsertTuple walks the page chain looking for room, allocating and
// linking a new tail page if every existing page is full. Emits an INSERT
// log record before returning.
func (h *TableHeap) InsertTuple(txnID uint64, tuple []byte) (RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pid := h.firstPageID
	var lastPage *Page
	for pid != InvalidPageID {
		page, err := h.bufferPool.Fetch(pid)
		if err != nil {
			return RID{}, err
		}
		page.WLatch()
		tp := LoadTablePage(page)
		rid, err := tp.Insert(tuple)
		if err == nil {
			page.WUnlatch()
			lsn, logErr := h.logMgr.Append(NewInsertRecord(txnID, rid, tuple))
			if logErr != nil {
				h.bufferPool.Unpin(pid, true)
				return RID{}, logErr
			}
			page.LSN = lsn
			h.bufferPool.Unpin(pid, true)
			return rid, nil
		}
		page.WUnlatch()

		next := tp.NextPageID()
		if next == InvalidPageID {
			lastPage = page
			break
		}
		h.bufferPool.Unpin(pid, false)
		pid = next
	}

	// No page had room: allocate a new tail page and retry there.
	newPage, err := h.bufferPool.NewPage()
	if err != nil {
		if lastPage != nil {
			h.bufferPool.Unpin(lastPage.ID, false)
		}
		return RID{}, err
	}
	NewTablePage(newPage, lastPage.ID, InvalidPageID)

	lastPage.WLatch()
	LoadTablePage(lastPage).SetNextPageID(newPage.ID)
	lastPage.WUnlatch()
	h.bufferPool.Unpin(lastPage.ID, true)

	newPage.WLatch()
	rid, err := LoadTablePage(newPage).Insert(tuple)
	newPage.WUnlatch()
	if err != nil {
		h.bufferPool.Unpin(newPage.ID, true)
		return RID{}, errkind.Wrap(errkind.OutOfSpace, "table_heap", "tuple does not fit even on a fresh page", err)
	}

	lsn, logErr := h.logMgr.Append(NewInsertRecord(txnID, rid, tuple))
	if logErr != nil {
		h.bufferPool.Unpin(newPage.ID, true)
		return RID{}, logErr
	}
	newPage.LSN = lsn
	h.bufferPool.Unpin(newPage.ID, true)
	return rid, nil
}

// MarkDelete tombstones rid's tuple and emits MARKDELETE.
func (h *TableHeap) MarkDelete(txnID uint64, rid RID) error {
	page, err := h.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return err
	}
	defer h.bufferPool.Unpin(rid.PageID, true)

	page.WLatch()
	defer page.WUnlatch()
	tp := LoadTablePage(page)
	tuple, ok := tp.GetTuple(rid)
	if !ok {
		return errkind.New(errkind.NotFound, "table_heap", "rid not live")
	}
	if err := tp.MarkDelete(rid); err != nil {
		return err
	}
	lsn, err := h.logMgr.Append(NewDeleteRecord(LogMarkDelete, txnID, rid, tuple))
	if err != nil {
		return err
	}
	page.LSN = lsn
	return nil
}

// ApplyDelete physically compacts away rid's tombstoned tuple, called at
// commit (for deletes) or at abort (to undo an insert).
func (h *TableHeap) ApplyDelete(txnID uint64, rid RID) error {
	page, err := h.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return err
	}
	defer h.bufferPool.Unpin(rid.PageID, true)

	page.WLatch()
	defer page.WUnlatch()
	tp := LoadTablePage(page)
	removed, err := tp.ApplyDelete(rid)
	if err != nil {
		return err
	}
	lsn, err := h.logMgr.Append(NewDeleteRecord(LogApplyDelete, txnID, rid, removed))
	if err != nil {
		return err
	}
	page.LSN = lsn
	return nil
}

// RollbackDelete undoes a MarkDelete, used on abort.
func (h *TableHeap) RollbackDelete(txnID uint64, rid RID) error {
	page, err := h.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return err
	}
	defer h.bufferPool.Unpin(rid.PageID, true)

	page.WLatch()
	defer page.WUnlatch()
	tp := LoadTablePage(page)
	if err := tp.RollbackDelete(rid); err != nil {
		return err
	}
	tuple, _ := tp.GetTuple(rid)
	lsn, err := h.logMgr.Append(NewDeleteRecord(LogRollbackDelete, txnID, rid, tuple))
	if err != nil {
		return err
	}
	page.LSN = lsn
	return nil
}

// UpdateTuple overwrites rid's tuple in place when the new tuple is the
// same length; otherwise the caller must delete-and-reinsert per §4.4.
func (h *TableHeap) UpdateTuple(txnID uint64, rid RID, newTuple []byte) error {
	page, err := h.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return err
	}
	defer h.bufferPool.Unpin(rid.PageID, true)

	page.WLatch()
	defer page.WUnlatch()
	tp := LoadTablePage(page)
	oldTuple, err := tp.Update(rid, newTuple)
	if err != nil {
		return err
	}
	lsn, err := h.logMgr.Append(NewUpdateRecord(txnID, rid, oldTuple, newTuple))
	if err != nil {
		return err
	}
	page.LSN = lsn
	return nil
}

// GetTuple fetches rid's tuple, read-latching the page for the duration of
// the copy.
func (h *TableHeap) GetTuple(rid RID) ([]byte, error) {
	page, err := h.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return nil, err
	}
	defer h.bufferPool.Unpin(rid.PageID, false)

	page.RLatch()
	defer page.RUnlatch()
	tuple, ok := LoadTablePage(page).GetTuple(rid)
	if !ok {
		return nil, errkind.New(errkind.NotFound, "table_heap", "rid not live")
	}
	return tuple, nil
}

// Iterator returns a fresh sequential scan positioned before the first
// tuple.
func (h *TableHeap) Iterator() *TableIterator {
	return newTableIterator(h)
}

// Compact walks every page and reclaims trailing empty slot-directory
// entries; tuple data itself never fragments because ApplyDelete keeps it
// contiguous. Additive housekeeping only (§10.3); RIDs of live tuples are
// never affected.
func (h *TableHeap) Compact() (reclaimedSlots int, err error) {
	pid := h.FirstPageID()
	for pid != InvalidPageID {
		page, ferr := h.bufferPool.Fetch(pid)
		if ferr != nil {
			return reclaimedSlots, ferr
		}
		page.WLatch()
		tp := LoadTablePage(page)
		reclaimedSlots += tp.ReclaimTrailingSlots()
		next := tp.NextPageID()
		page.WUnlatch()
		h.bufferPool.Unpin(pid, true)
		pid = next
	}
	return reclaimedSlots, nil
}
