package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// Page header layout: id, type, flags, LSN, then (when checksums are
// enabled) a BLAKE2b-256 checksum of the body, a supplement over the
// original source's bare table_page header (see SPEC_FULL.md §10.3).
const (
	pageIDOffset       = 0
	pageTypeOffset     = 4
	pageFlagsOffset    = 5
	pageLSNOffset      = 6
	pageChecksumOffset = 14
	checksumSize       = 32 // blake2b-256
	PageHeaderSize     = pageChecksumOffset + checksumSize

	// PageSize is the fixed size of every page on disk (BUSTUB_PAGE_SIZE
	// in the original source).
	PageSize = 4096
)

// PageType distinguishes the page layouts the core understands.
type PageType uint8

const (
	PageTypeData PageType = iota
	PageTypeIndexLeaf
	PageTypeIndexInternal
	PageTypeHeader
	PageTypeFreeList
)

func (t PageType) String() string {
	switch t {
	case PageTypeData:
		return "data"
	case PageTypeIndexLeaf:
		return "index_leaf"
	case PageTypeIndexInternal:
		return "index_internal"
	case PageTypeHeader:
		return "header"
	case PageTypeFreeList:
		return "free_list"
	default:
		return "unknown"
	}
}

// PageID is a unique identifier for a page.
type PageID uint32

// InvalidPageID is the sentinel for "no page" (INVALID_PAGE_ID = -1 in the
// original source, represented as the max uint32 here).
const InvalidPageID PageID = 1<<32 - 1

// HeaderPageID is the well-known page holding the index-name -> root
// mapping.
const HeaderPageID PageID = 0

// Page is a fixed-size block of bytes plus the bookkeeping the buffer pool
// needs: dirty flag, pin count, and a content latch. Per the design notes,
// the pin count is tracked separately from the latch: the latch serializes
// page content, the pin count coordinates with the replacer.
type Page struct {
	ID      PageID
	Type    PageType
	Flags   uint8
	LSN     uint64 // log sequence number of the last write to this page
	Data    []byte // PageSize - PageHeaderSize bytes, the usable body
	IsDirty bool

	pinCount int32
	latch    sync.RWMutex
}

// NewPage allocates a zeroed page of the given id and type.
func NewPage(id PageID, pageType PageType) *Page {
	return &Page{
		ID:   id,
		Type: pageType,
		Data: make([]byte, PageSize-PageHeaderSize),
	}
}

// Serialize renders the page, including its checksum when withChecksum is
// true, to a PageSize-byte buffer ready for DiskManager.WritePage.
func (p *Page) Serialize(withChecksum bool) []byte {
	buf := make([]byte, PageSize)
	putUint32(buf[pageIDOffset:], uint32(p.ID))
	buf[pageTypeOffset] = byte(p.Type)
	buf[pageFlagsOffset] = p.Flags
	putUint64(buf[pageLSNOffset:], p.LSN)
	copy(buf[PageHeaderSize:], p.Data)

	if withChecksum {
		sum := blake2b.Sum256(buf[PageHeaderSize:])
		copy(buf[pageChecksumOffset:pageChecksumOffset+checksumSize], sum[:])
	}
	return buf
}

// Deserialize loads a page from a PageSize-byte buffer. When verifyChecksum
// is true and a nonzero checksum is stored, a mismatch returns an error;
// the caller is expected to surface it as errkind.Corruption.
func (p *Page) Deserialize(buf []byte, verifyChecksum bool) error {
	if len(buf) != PageSize {
		return fmt.Errorf("storage: invalid page size: expected %d, got %d", PageSize, len(buf))
	}

	p.ID = PageID(getUint32(buf[pageIDOffset:]))
	p.Type = PageType(buf[pageTypeOffset])
	p.Flags = buf[pageFlagsOffset]
	p.LSN = getUint64(buf[pageLSNOffset:])

	stored := buf[pageChecksumOffset : pageChecksumOffset+checksumSize]
	if verifyChecksum && !allZero(stored) {
		want := blake2b.Sum256(buf[PageHeaderSize:])
		if !bytesEqual(stored, want[:]) {
			return fmt.Errorf("storage: checksum mismatch on page %d", p.ID)
		}
	}

	p.Data = make([]byte, PageSize-PageHeaderSize)
	copy(p.Data, buf[PageHeaderSize:])
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Pin increments the pin count; a pinned page is ineligible for eviction.
func (p *Page) Pin() {
	atomic.AddInt32(&p.pinCount, 1)
}

// Unpin decrements the pin count. Unpinning a page already at zero is a
// contract violation (see design notes: reserve panics for true contract
// violations, not ordinary outcomes).
func (p *Page) Unpin() {
	if atomic.AddInt32(&p.pinCount, -1) < 0 {
		atomic.AddInt32(&p.pinCount, 1)
		panic(fmt.Sprintf("storage: unpin of page %d below zero", p.ID))
	}
}

func (p *Page) PinCount() int {
	return int(atomic.LoadInt32(&p.pinCount))
}

func (p *Page) IsPinned() bool {
	return p.PinCount() > 0
}

func (p *Page) MarkDirty() {
	p.IsDirty = true
}

// RLatch/RUnlatch/WLatch/WUnlatch are the explicit page-content latch the
// buffer pool itself never takes (§4.3): callers acquire it to synchronize
// with other callers sharing the same page.
func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch()   { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }
