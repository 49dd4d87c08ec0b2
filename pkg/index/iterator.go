package index

import "github.com/mnohosten/laura-db/pkg/storage"

// Iterator walks leaf entries in key order via the leaf chain's nextID
// pointers (§4.6's Iteration). It holds a read latch on at most one leaf
// page at a time.
type Iterator struct {
	tree *BPlusTree
	page *storage.Page
	node *node
	pos  int
	done bool
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	root, err := t.getRootPageID()
	if err != nil {
		return nil, err
	}
	if root == storage.InvalidPageID {
		return &Iterator{tree: t, done: true}, nil
	}
	return t.seekLeaf(root, nil)
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	root, err := t.getRootPageID()
	if err != nil {
		return nil, err
	}
	if root == storage.InvalidPageID {
		return &Iterator{tree: t, done: true}, nil
	}
	return t.seekLeaf(root, key)
}

// seekLeaf descends to the leaf that would hold key (or the leftmost leaf
// if key is nil), latch-coupling down from root.
func (t *BPlusTree) seekLeaf(root storage.PageID, key []byte) (*Iterator, error) {
	page, err := t.pool.Fetch(root)
	if err != nil {
		return nil, err
	}
	page.RLatch()

	for {
		n := loadNode(page, t.ks)
		if n.isLeaf {
			pos := 0
			if key != nil {
				pos, _ = t.findInLeaf(n, key)
			}
			it := &Iterator{tree: t, page: page, node: n, pos: pos}
			if pos >= n.size {
				// Target key sorts past every entry in this leaf; roll
				// over to the next leaf (or end of tree) immediately.
				it.pos = n.size - 1
				it.Next()
			}
			return it, nil
		}

		var childID storage.PageID
		if key == nil {
			childID = n.children[0]
		} else {
			childID = t.findChild(n, key)
		}
		child, err := t.pool.Fetch(childID)
		if err != nil {
			page.RUnlatch()
			t.pool.Unpin(page.ID, false)
			return nil, err
		}
		child.RLatch()
		page.RUnlatch()
		t.pool.Unpin(page.ID, false)
		page = child
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return !it.done && it.node != nil && it.pos < it.node.size
}

// Key returns the current entry's key. Only valid when Valid() is true.
func (it *Iterator) Key() []byte { return it.node.keys[it.pos] }

// RID returns the current entry's RID. Only valid when Valid() is true.
func (it *Iterator) RID() storage.RID { return it.node.rids[it.pos] }

// Next advances to the following entry, crossing into the sibling leaf via
// nextID when the current leaf is exhausted. Returns false once iteration
// is complete.
func (it *Iterator) Next() bool {
	if it.done || it.node == nil {
		return false
	}
	it.pos++
	if it.pos < it.node.size {
		return true
	}

	nextID := it.node.nextID
	it.page.RUnlatch()
	it.tree.pool.Unpin(it.page.ID, false)
	it.page, it.node = nil, nil

	if nextID == storage.InvalidPageID {
		it.done = true
		return false
	}
	page, err := it.tree.pool.Fetch(nextID)
	if err != nil {
		it.done = true
		return false
	}
	page.RLatch()
	n := loadNode(page, it.tree.ks)
	it.page, it.node, it.pos = page, n, 0
	if n.size == 0 {
		return it.Next()
	}
	return true
}

// Close releases the iterator's held latch/pin, if any. Safe to call
// multiple times or after exhaustion.
func (it *Iterator) Close() {
	if it.page != nil {
		it.page.RUnlatch()
		it.tree.pool.Unpin(it.page.ID, false)
		it.page, it.node = nil, nil
	}
	it.done = true
}
