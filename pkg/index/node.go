package index

import (
	"encoding/binary"

	"github.com/mnohosten/laura-db/pkg/storage"
)

// Node header common to both leaf and internal pages: isLeaf(1) +
// size(2) + maxSize(2) + parentPageID(4) = 9 bytes, followed by
// nextPageID(4) on leaf pages only (§3's B+-tree page header).
const (
	nodeHeaderSize     = 9
	leafHeaderSize     = nodeHeaderSize + 4
	internalHeaderSize = nodeHeaderSize
)

// node wraps a raw storage.Page with the B+-tree node layout, decoding into
// plain Go slices on load and re-encoding on every mutation (node capacity
// is small enough — bounded by keySize and a handful of hundred bytes per
// page — that whole-node re-encoding is cheap).
type node struct {
	page *storage.Page

	isLeaf   bool
	size     int
	maxSize  int
	parentID storage.PageID
	nextID   storage.PageID // leaf only

	keys     [][]byte        // len == size (leaf) or size-1 (internal)
	rids     []storage.RID   // leaf only, len == size
	children []storage.PageID // internal only, len == size
}

func keySize(b []byte) int { return len(b) }

// newLeafNode initializes page as an empty leaf node.
func newLeafNode(page *storage.Page, keySize, maxSize int, parentID storage.PageID) *node {
	n := &node{
		page:     page,
		isLeaf:   true,
		maxSize:  maxSize,
		parentID: parentID,
		nextID:   storage.InvalidPageID,
	}
	page.Type = storage.PageTypeIndexLeaf
	n.encode(keySize)
	return n
}

// newInternalNode initializes page as an empty internal node.
func newInternalNode(page *storage.Page, keySize, maxSize int, parentID storage.PageID) *node {
	n := &node{
		page:     page,
		isLeaf:   false,
		maxSize:  maxSize,
		parentID: parentID,
	}
	page.Type = storage.PageTypeIndexInternal
	n.encode(keySize)
	return n
}

// loadNode decodes an already-initialized page.
func loadNode(page *storage.Page, keySize int) *node {
	n := &node{page: page}
	n.decode(keySize)
	return n
}

func (n *node) decode(ks int) {
	d := n.page.Data
	n.isLeaf = d[0] == 1
	n.size = int(binary.LittleEndian.Uint16(d[1:3]))
	n.maxSize = int(binary.LittleEndian.Uint16(d[3:5]))
	n.parentID = storage.PageID(binary.LittleEndian.Uint32(d[5:9]))

	if n.isLeaf {
		n.nextID = storage.PageID(binary.LittleEndian.Uint32(d[9:13]))
		off := leafHeaderSize
		n.keys = make([][]byte, n.size)
		n.rids = make([]storage.RID, n.size)
		for i := 0; i < n.size; i++ {
			key := make([]byte, ks)
			copy(key, d[off:off+ks])
			off += ks
			n.keys[i] = key
			n.rids[i] = storage.DecodeRID(d[off : off+8])
			off += 8
		}
		return
	}

	off := internalHeaderSize
	n.children = make([]storage.PageID, n.size)
	for i := 0; i < n.size; i++ {
		n.children[i] = storage.PageID(binary.LittleEndian.Uint32(d[off : off+4]))
		off += 4
	}
	n.keys = make([][]byte, 0)
	if n.size > 0 {
		n.keys = make([][]byte, n.size-1)
		for i := 0; i < n.size-1; i++ {
			key := make([]byte, ks)
			copy(key, d[off:off+ks])
			off += ks
			n.keys[i] = key
		}
	}
}

// encode serializes the in-memory node back onto its page and marks it
// dirty. Must be called after every mutation before the page is unlatched.
func (n *node) encode(ks int) {
	d := n.page.Data
	if n.isLeaf {
		d[0] = 1
	} else {
		d[0] = 0
	}
	binary.LittleEndian.PutUint16(d[1:3], uint16(n.size))
	binary.LittleEndian.PutUint16(d[3:5], uint16(n.maxSize))
	binary.LittleEndian.PutUint32(d[5:9], uint32(n.parentID))

	if n.isLeaf {
		binary.LittleEndian.PutUint32(d[9:13], uint32(n.nextID))
		off := leafHeaderSize
		for i := 0; i < n.size; i++ {
			copy(d[off:off+ks], n.keys[i])
			off += ks
			ridBuf := n.rids[i].Encode()
			copy(d[off:off+8], ridBuf[:])
			off += 8
		}
		n.page.MarkDirty()
		return
	}

	off := internalHeaderSize
	for i := 0; i < n.size; i++ {
		binary.LittleEndian.PutUint32(d[off:off+4], uint32(n.children[i]))
		off += 4
	}
	for i := 0; i < n.size-1; i++ {
		copy(d[off:off+ks], n.keys[i])
		off += ks
	}
	n.page.MarkDirty()
}

func (n *node) isRoot() bool { return n.parentID == storage.InvalidPageID }

func (n *node) isFull() bool {
	if n.isLeaf {
		return n.size >= n.maxSize
	}
	return n.size >= n.maxSize
}

// isSafeForInsert reports whether this node has room for one more entry
// without needing to split — the "safe" predicate latch crabbing releases
// ancestor latches on (§4.6).
func (n *node) isSafeForInsert() bool {
	if n.isLeaf {
		return n.size < n.maxSize
	}
	return n.size < n.maxSize
}

// isSafeForDelete reports whether removing one entry still leaves this node
// at or above its minimum occupancy.
func (n *node) isSafeForDelete(minSize int) bool {
	return n.size > minSize
}

// leafMaxSizeForPage computes how many (key,rid) entries fit in one page's
// usable body given a fixed key size.
func leafMaxSizeForPage(ks int) int {
	body := storage.PageSize - storage.PageHeaderSize - leafHeaderSize
	return body / (ks + 8)
}

// internalMaxSizeForPage computes how many children (and max_size-1
// separator keys) fit in one page's usable body given a fixed key size.
func internalMaxSizeForPage(ks int) int {
	body := storage.PageSize - storage.PageHeaderSize - internalHeaderSize
	// size children (4 bytes each) + (size-1) keys; solve size*(4+ks) - ks <= body
	return (body + ks) / (4 + ks)
}
