package storage

import "github.com/mnohosten/laura-db/pkg/errkind"

// The header page (page id 0, §3/§6) maps index_name -> root_page_id:
// record_count(4) followed by fixed 36-byte entries (name[32], root_page_id[4]).
const (
	indexHeaderNameSize  = 32
	indexHeaderEntrySize = indexHeaderNameSize + 4
)

func indexHeaderCount(page *Page) uint32 { return getUint32(page.Data[0:4]) }

func indexHeaderEntryOffset(i uint32) int { return 4 + int(i)*indexHeaderEntrySize }

// GetIndexRoot looks up name's root page id. Returns (InvalidPageID, false)
// if no such index is registered.
func GetIndexRoot(page *Page, name string) (PageID, bool) {
	count := indexHeaderCount(page)
	for i := uint32(0); i < count; i++ {
		off := indexHeaderEntryOffset(i)
		entryName := trimName(page.Data[off : off+indexHeaderNameSize])
		if entryName == name {
			return PageID(getUint32(page.Data[off+indexHeaderNameSize : off+indexHeaderEntrySize])), true
		}
	}
	return InvalidPageID, false
}

// SetIndexRoot creates or updates name's root page id entry.
func SetIndexRoot(page *Page, name string, rootPageID PageID) error {
	count := indexHeaderCount(page)
	for i := uint32(0); i < count; i++ {
		off := indexHeaderEntryOffset(i)
		entryName := trimName(page.Data[off : off+indexHeaderNameSize])
		if entryName == name {
			putUint32(page.Data[off+indexHeaderNameSize:off+indexHeaderEntrySize], uint32(rootPageID))
			page.MarkDirty()
			return nil
		}
	}

	off := indexHeaderEntryOffset(count)
	if off+indexHeaderEntrySize > len(page.Data) {
		return errkind.New(errkind.OutOfSpace, "index_header", "header page full")
	}
	if len(name) > indexHeaderNameSize {
		return errkind.New(errkind.InvalidState, "index_header", "index name exceeds 32 bytes")
	}
	clear := make([]byte, indexHeaderNameSize)
	copy(clear, name)
	copy(page.Data[off:off+indexHeaderNameSize], clear)
	putUint32(page.Data[off+indexHeaderNameSize:off+indexHeaderEntrySize], uint32(rootPageID))
	putUint32(page.Data[0:4], count+1)
	page.MarkDirty()
	return nil
}

// DeleteIndexRoot removes name's entry, swapping the last entry into its
// slot to keep the array dense.
func DeleteIndexRoot(page *Page, name string) bool {
	count := indexHeaderCount(page)
	for i := uint32(0); i < count; i++ {
		off := indexHeaderEntryOffset(i)
		entryName := trimName(page.Data[off : off+indexHeaderNameSize])
		if entryName != name {
			continue
		}
		lastOff := indexHeaderEntryOffset(count - 1)
		if i != count-1 {
			copy(page.Data[off:off+indexHeaderEntrySize], page.Data[lastOff:lastOff+indexHeaderEntrySize])
		}
		putUint32(page.Data[0:4], count-1)
		page.MarkDirty()
		return true
	}
	return false
}

func trimName(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
