package storage

import (
	"github.com/mnohosten/laura-db/pkg/errkind"
)

// TablePage implements the slotted heap-page layout of §4.4 (C4) on top of
// a raw *Page. Within Page.Data:
//
//	[0:4)   prev_page_id
//	[4:8)   next_page_id
//	[8:12)  free_space_pointer (offset, within Data, where the tuple area starts)
//	[12:16) tuple_count (including tombstoned/reclaimed slots)
//	[16:...) slot directory, growing forward: (offset uint32, size uint32) per slot
//	...tuple data, growing backward from the end of Data...
//
// A slot's size field's top bit is the tombstone bit (§3's "top bit of
// size is the tombstone bit"), matching the original source's DELETE_MASK
// scheme rather than a separate flags byte.
const (
	tablePageSubHeaderSize = 16
	slotEntrySize          = 8
	deleteMask             = uint32(1) << 31
)

type TablePage struct {
	page *Page
}

// NewTablePage initializes a freshly allocated page as an empty table
// page linked between prev and next.
func NewTablePage(page *Page, prev, next PageID) *TablePage {
	tp := &TablePage{page: page}
	putUint32(page.Data[0:4], uint32(prev))
	putUint32(page.Data[4:8], uint32(next))
	putUint32(page.Data[8:12], uint32(len(page.Data)))
	putUint32(page.Data[12:16], 0)
	page.Type = PageTypeData
	page.MarkDirty()
	return tp
}

// LoadTablePage wraps an already-initialized page without touching it.
func LoadTablePage(page *Page) *TablePage {
	return &TablePage{page: page}
}

func (tp *TablePage) Page() *Page { return tp.page }

func (tp *TablePage) PrevPageID() PageID { return PageID(getUint32(tp.page.Data[0:4])) }
func (tp *TablePage) NextPageID() PageID { return PageID(getUint32(tp.page.Data[4:8])) }

func (tp *TablePage) SetPrevPageID(id PageID) {
	putUint32(tp.page.Data[0:4], uint32(id))
	tp.page.MarkDirty()
}

func (tp *TablePage) SetNextPageID(id PageID) {
	putUint32(tp.page.Data[4:8], uint32(id))
	tp.page.MarkDirty()
}

func (tp *TablePage) freeSpacePointer() uint32   { return getUint32(tp.page.Data[8:12]) }
func (tp *TablePage) setFreeSpacePointer(v uint32) { putUint32(tp.page.Data[8:12], v) }

func (tp *TablePage) TupleCount() uint32     { return getUint32(tp.page.Data[12:16]) }
func (tp *TablePage) setTupleCount(v uint32) { putUint32(tp.page.Data[12:16], v) }

func (tp *TablePage) slotOffset(i uint32) int { return tablePageSubHeaderSize + int(i)*slotEntrySize }

func (tp *TablePage) getSlot(i uint32) (offset, size uint32) {
	off := tp.slotOffset(i)
	return getUint32(tp.page.Data[off : off+4]), getUint32(tp.page.Data[off+4 : off+8])
}

func (tp *TablePage) setSlot(i uint32, offset, size uint32) {
	off := tp.slotOffset(i)
	putUint32(tp.page.Data[off:off+4], offset)
	putUint32(tp.page.Data[off+4:off+8], size)
}

func isDeleted(size uint32) bool {
	return size&deleteMask != 0 || size == 0
}

func rawSize(size uint32) uint32 {
	return size &^ deleteMask
}

// FreeSpaceRemaining reports bytes available for a new tuple plus its slot
// entry.
func (tp *TablePage) FreeSpaceRemaining() int {
	used := tablePageSubHeaderSize + int(tp.TupleCount())*slotEntrySize
	return int(tp.freeSpacePointer()) - used
}

// Insert reuses the first reclaimed slot (size == 0) if one exists, else
// appends a new slot. Fails with OutOfSpace if the tuple plus a slot entry
// does not fit.
func (tp *TablePage) Insert(tuple []byte) (RID, error) {
	if len(tuple)+slotEntrySize > tp.FreeSpaceRemaining() {
		return RID{}, errkind.New(errkind.OutOfSpace, "table_page", "tuple does not fit")
	}

	var slotNum uint32
	reused := false
	count := tp.TupleCount()
	for i := uint32(0); i < count; i++ {
		_, size := tp.getSlot(i)
		if size == 0 {
			slotNum = i
			reused = true
			break
		}
	}
	if !reused {
		slotNum = count
	}

	newFSP := tp.freeSpacePointer() - uint32(len(tuple))
	copy(tp.page.Data[newFSP:newFSP+uint32(len(tuple))], tuple)
	tp.setSlot(slotNum, newFSP, uint32(len(tuple)))
	tp.setFreeSpacePointer(newFSP)
	if !reused {
		tp.setTupleCount(count + 1)
	}
	tp.page.MarkDirty()
	return RID{PageID: tp.page.ID, Slot: slotNum}, nil
}

// MarkDelete sets the tombstone bit on rid's slot. Fails if the slot is
// missing or already tombstoned.
func (tp *TablePage) MarkDelete(rid RID) error {
	if rid.Slot >= tp.TupleCount() {
		return errkind.New(errkind.NotFound, "table_page", "slot out of range")
	}
	offset, size := tp.getSlot(rid.Slot)
	if isDeleted(size) {
		return errkind.New(errkind.InvalidState, "table_page", "slot already tombstoned or empty")
	}
	tp.setSlot(rid.Slot, offset, size|deleteMask)
	tp.page.MarkDirty()
	return nil
}

// RollbackDelete clears a tombstone previously set by MarkDelete (used to
// undo an abort of the delete's enclosing operation).
func (tp *TablePage) RollbackDelete(rid RID) error {
	if rid.Slot >= tp.TupleCount() {
		return errkind.New(errkind.NotFound, "table_page", "slot out of range")
	}
	offset, size := tp.getSlot(rid.Slot)
	if size&deleteMask == 0 {
		return errkind.New(errkind.InvalidState, "table_page", "slot was not tombstoned")
	}
	tp.setSlot(rid.Slot, offset, size&^deleteMask)
	tp.page.MarkDirty()
	return nil
}

// ApplyDelete physically removes rid's tuple: memmoves the payload out,
// shifts earlier payloads (those closer to the free-space pointer) up to
// close the gap, zeroes the slot, and fixes the offsets of every
// still-live slot whose offset was less than the removed tuple's offset
// (i.e. allocated after it, since the tuple area grows backward).
// Returns the removed tuple's bytes for undo/logging purposes.
func (tp *TablePage) ApplyDelete(rid RID) ([]byte, error) {
	if rid.Slot >= tp.TupleCount() {
		return nil, errkind.New(errkind.NotFound, "table_page", "slot out of range")
	}
	offset, rawSz := tp.getSlot(rid.Slot)
	size := rawSize(rawSz)
	if size == 0 {
		return nil, errkind.New(errkind.NotFound, "table_page", "slot already empty")
	}

	removed := make([]byte, size)
	copy(removed, tp.page.Data[offset:offset+size])

	fsp := tp.freeSpacePointer()
	// Shift [fsp, offset) forward by size bytes to close the gap.
	copy(tp.page.Data[fsp+size:offset+size], tp.page.Data[fsp:offset])
	tp.setFreeSpacePointer(fsp + size)

	tp.setSlot(rid.Slot, 0, 0)

	count := tp.TupleCount()
	for i := uint32(0); i < count; i++ {
		off, sz := tp.getSlot(i)
		if sz == 0 {
			continue
		}
		if off < offset {
			tombstoned := sz&deleteMask != 0
			newOff := off + size
			newSz := rawSize(sz)
			if tombstoned {
				newSz |= deleteMask
			}
			tp.setSlot(i, newOff, newSz)
		}
	}

	tp.page.MarkDirty()
	return removed, nil
}

// Update overwrites rid's tuple in place when newTuple is exactly the same
// length as the existing one; otherwise the caller must delete-and-reinsert
// (§4.4). Returns the old tuple bytes.
func (tp *TablePage) Update(rid RID, newTuple []byte) (oldTuple []byte, err error) {
	if rid.Slot >= tp.TupleCount() {
		return nil, errkind.New(errkind.NotFound, "table_page", "slot out of range")
	}
	offset, rawSz := tp.getSlot(rid.Slot)
	if isDeleted(rawSz) {
		return nil, errkind.New(errkind.NotFound, "table_page", "cannot update tombstoned slot")
	}
	size := rawSize(rawSz)
	if uint32(len(newTuple)) != size {
		return nil, errkind.New(errkind.InvalidState, "table_page", "update requires equal-length tuple; caller must delete-and-reinsert")
	}

	old := make([]byte, size)
	copy(old, tp.page.Data[offset:offset+size])
	copy(tp.page.Data[offset:offset+size], newTuple)
	tp.page.MarkDirty()
	return old, nil
}

// GetTuple copies out the tuple at rid. Tombstoned and unknown slots
// return (nil, false).
func (tp *TablePage) GetTuple(rid RID) ([]byte, bool) {
	if rid.Slot >= tp.TupleCount() {
		return nil, false
	}
	offset, rawSz := tp.getSlot(rid.Slot)
	if isDeleted(rawSz) {
		return nil, false
	}
	size := rawSize(rawSz)
	out := make([]byte, size)
	copy(out, tp.page.Data[offset:offset+size])
	return out, true
}

// FirstRID returns the first live slot's RID, or (InvalidRID, false) if
// the page has no live tuples.
func (tp *TablePage) FirstRID() (RID, bool) {
	return tp.nextLiveFrom(0)
}

// NextRID returns the next live slot after rid's, or (InvalidRID, false)
// at end of page.
func (tp *TablePage) NextRID(rid RID) (RID, bool) {
	return tp.nextLiveFrom(rid.Slot + 1)
}

// ReclaimTrailingSlots shrinks the slot directory by dropping any run of
// reclaimed (size == 0, never tombstoned) slots at the tail, recovering
// their 8-byte directory entries. Tuple data is already kept contiguous by
// ApplyDelete, so this is the only fragmentation a table page can carry.
func (tp *TablePage) ReclaimTrailingSlots() int {
	count := tp.TupleCount()
	reclaimed := 0
	for count > 0 {
		_, sz := tp.getSlot(count - 1)
		if sz != 0 {
			break
		}
		count--
		reclaimed++
	}
	if reclaimed > 0 {
		tp.setTupleCount(count)
		tp.page.MarkDirty()
	}
	return reclaimed
}

func (tp *TablePage) nextLiveFrom(start uint32) (RID, bool) {
	count := tp.TupleCount()
	for i := start; i < count; i++ {
		_, sz := tp.getSlot(i)
		if !isDeleted(sz) {
			return RID{PageID: tp.page.ID, Slot: i}, true
		}
	}
	return InvalidRID, false
}
