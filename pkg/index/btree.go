package index

import (
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
	"github.com/mnohosten/laura-db/pkg/storage"
)

// ErrKeyNotFound is returned by GetValue/Remove when the key is absent.
var ErrKeyNotFound = errkind.New(errkind.NotFound, "index", "key not found")

// ErrDuplicateKey is returned by Insert when the key already exists (unique
// keys only, §4.6).
var ErrDuplicateKey = errkind.New(errkind.AlreadyExists, "index", "duplicate key")

// BPlusTree is a disk-backed, latch-coupled B+-tree keyed on fixed-size byte
// slices, pages on loan from the shared buffer pool (§4.6, C6). Structural
// mutations (Insert/Remove) are serialized by treeMu, a deliberate
// simplification of full ancestor-latch crabbing: reads (GetValue, iteration)
// still latch-couple page by page so they never block behind an unrelated
// write once they've moved past the root.
type BPlusTree struct {
	name string
	pool bufferPool
	cmp  Comparator
	ks   int

	leafMaxSize     int
	internalMaxSize int
	leafMinSize     int
	internalMinSize int

	treeMu sync.Mutex
}

// bufferPool is the subset of *storage.BufferPool the tree needs, named
// locally so tests can substitute a fake.
type bufferPool interface {
	Fetch(pid storage.PageID) (*storage.Page, error)
	NewPage() (*storage.Page, error)
	Unpin(pid storage.PageID, isDirty bool) error
	Delete(pid storage.PageID) error
}

// NewBPlusTree returns a handle on the tree registered as name in the header
// page, using keySize-byte keys ordered by cmp. It allocates no page: a tree
// with no registered root stays empty until the first Insert allocates its
// root leaf and registers it in the header page.
func NewBPlusTree(name string, pool *storage.BufferPool, keySize int, cmp Comparator) (*BPlusTree, error) {
	t := &BPlusTree{
		name:            name,
		pool:            pool,
		cmp:             cmp,
		ks:              keySize,
		leafMaxSize:     leafMaxSizeForPage(keySize),
		internalMaxSize: internalMaxSizeForPage(keySize),
	}
	if t.leafMaxSize < 3 || t.internalMaxSize < 3 {
		return nil, errkind.New(errkind.InvalidState, "index", "key size too large for page size")
	}
	t.leafMinSize = t.leafMaxSize / 2
	t.internalMinSize = t.internalMaxSize / 2
	return t, nil
}

func (t *BPlusTree) fetchHeader() (*storage.Page, error) {
	return t.pool.Fetch(storage.HeaderPageID)
}

func (t *BPlusTree) getRootPageID() (storage.PageID, error) {
	header, err := t.fetchHeader()
	if err != nil {
		return storage.InvalidPageID, err
	}
	defer t.pool.Unpin(header.ID, false)
	header.RLatch()
	defer header.RUnlatch()
	root, ok := storage.GetIndexRoot(header, t.name)
	if !ok {
		return storage.InvalidPageID, nil
	}
	return root, nil
}

func (t *BPlusTree) setRootPageID(root storage.PageID) error {
	header, err := t.fetchHeader()
	if err != nil {
		return err
	}
	header.WLatch()
	err = storage.SetIndexRoot(header, t.name, root)
	header.WUnlatch()
	t.pool.Unpin(header.ID, err == nil)
	return err
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() (bool, error) {
	root, err := t.getRootPageID()
	if err != nil {
		return false, err
	}
	return root == storage.InvalidPageID, nil
}

// GetValue looks up key, returning its RID. Descends with latch coupling:
// the parent's read latch is released as soon as the child is latched.
func (t *BPlusTree) GetValue(key []byte) (storage.RID, error) {
	root, err := t.getRootPageID()
	if err != nil {
		return storage.RID{}, err
	}
	if root == storage.InvalidPageID {
		return storage.RID{}, ErrKeyNotFound
	}

	page, err := t.pool.Fetch(root)
	if err != nil {
		return storage.RID{}, err
	}
	page.RLatch()

	for {
		n := loadNode(page, t.ks)
		if n.isLeaf {
			idx, found := t.findInLeaf(n, key)
			page.RUnlatch()
			t.pool.Unpin(page.ID, false)
			if !found {
				return storage.RID{}, ErrKeyNotFound
			}
			return n.rids[idx], nil
		}

		childID := t.findChild(n, key)
		child, err := t.pool.Fetch(childID)
		if err != nil {
			page.RUnlatch()
			t.pool.Unpin(page.ID, false)
			return storage.RID{}, err
		}
		child.RLatch()
		page.RUnlatch()
		t.pool.Unpin(page.ID, false)
		page = child
	}
}

// findInLeaf returns the index of key within n's keys, or (insertion point,
// false) if absent.
func (t *BPlusTree) findInLeaf(n *node, key []byte) (int, bool) {
	lo, hi := 0, n.size
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(n.keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n.size && t.cmp(n.keys[lo], key) == 0 {
		return lo, true
	}
	return lo, false
}

// findChild returns which child pointer to follow for key in an internal
// node: children[i] covers keys in [keys[i-1], keys[i]).
func (t *BPlusTree) findChild(n *node, key []byte) storage.PageID {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(n.keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.children[lo]
}

// Insert adds key -> rid, splitting nodes bottom-up as needed.
func (t *BPlusTree) Insert(key []byte, rid storage.RID) error {
	if len(key) != t.ks {
		return errkind.New(errkind.InvalidState, "index", "key length mismatch")
	}
	t.treeMu.Lock()
	defer t.treeMu.Unlock()

	root, err := t.getRootPageID()
	if err != nil {
		return err
	}
	if root == storage.InvalidPageID {
		return t.startNewTree(key, rid)
	}

	path, leaf, err := t.descendToLeaf(root, key)
	if err != nil {
		return err
	}

	idx, found := t.findInLeaf(leaf, key)
	if found {
		t.unpinNode(leaf, false)
		t.unpinPath(path)
		return ErrDuplicateKey
	}
	leaf.keys = insertAt(leaf.keys, idx, key)
	leaf.rids = insertRIDAt(leaf.rids, idx, rid)
	leaf.size++

	if leaf.size <= leaf.maxSize {
		leaf.encode(t.ks)
		t.unpinNode(leaf, true)
		t.unpinPath(path)
		return nil
	}
	return t.splitLeafAndPropagate(leaf, path)
}

// descendToLeaf walks from root to the leaf that should hold key, returning
// the chain of ancestor nodes (pages remain fetched/write-latched) in
// root-to-leaf order.
func (t *BPlusTree) descendToLeaf(root storage.PageID, key []byte) ([]*node, *node, error) {
	var path []*node
	pid := root
	for {
		page, err := t.pool.Fetch(pid)
		if err != nil {
			t.unpinPath(path)
			return nil, nil, err
		}
		page.WLatch()
		n := loadNode(page, t.ks)
		path = append(path, n)
		if n.isLeaf {
			return path[:len(path)-1], n, nil
		}
		pid = t.findChild(n, key)
	}
}

func (t *BPlusTree) unpinNode(n *node, dirty bool) {
	if dirty {
		n.encode(t.ks)
	}
	n.page.WUnlatch()
	t.pool.Unpin(n.page.ID, dirty)
}

func (t *BPlusTree) unpinPath(path []*node) {
	for _, n := range path {
		t.unpinNode(n, false)
	}
}

// startNewTree allocates a fresh leaf root holding (key, rid).
func (t *BPlusTree) startNewTree(key []byte, rid storage.RID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	n := newLeafNode(page, t.ks, t.leafMaxSize, storage.InvalidPageID)
	n.keys = [][]byte{key}
	n.rids = []storage.RID{rid}
	n.size = 1
	n.encode(t.ks)
	t.pool.Unpin(page.ID, true)
	return t.setRootPageID(page.ID)
}

// splitLeafAndPropagate splits an overfull leaf and inserts the separator
// key into the parent, recursing upward if the parent also overflows.
// path holds leaf's write-latched ancestors, nearest-last.
func (t *BPlusTree) splitLeafAndPropagate(leaf *node, path []*node) error {
	splitAt := (leaf.size + 1) / 2
	newPage, err := t.pool.NewPage()
	if err != nil {
		t.unpinNode(leaf, false)
		t.unpinPath(path)
		return err
	}
	sibling := newLeafNode(newPage, t.ks, t.leafMaxSize, leaf.parentID)
	sibling.keys = append(sibling.keys, leaf.keys[splitAt:]...)
	sibling.rids = append(sibling.rids, leaf.rids[splitAt:]...)
	sibling.size = len(sibling.keys)
	sibling.nextID = leaf.nextID

	leaf.keys = leaf.keys[:splitAt]
	leaf.rids = leaf.rids[:splitAt]
	leaf.size = splitAt
	leaf.nextID = newPage.ID

	sibling.encode(t.ks)
	separator := sibling.keys[0]

	if leaf.isRoot() {
		t.unpinNode(leaf, true)
		t.pool.Unpin(newPage.ID, true)
		return t.createNewRoot(leaf.page.ID, separator, newPage.ID)
	}

	leftID := leaf.page.ID
	parent := path[len(path)-1]
	t.unpinNode(leaf, true)
	t.pool.Unpin(newPage.ID, true)
	return t.insertIntoParent(parent, path[:len(path)-1], leftID, separator, newPage.ID)
}

// insertIntoParent adds (separator, rightChild) to parent immediately after
// leftChild's existing slot, splitting parent in turn if it overflows.
// ancestors holds parent's own ancestors.
func (t *BPlusTree) insertIntoParent(parent *node, ancestors []*node, leftChild storage.PageID, separator []byte, rightChild storage.PageID) error {
	idx := t.indexOfChild(parent, leftChild)
	if idx < 0 {
		idx = len(parent.children) - 1
	}
	idx++
	parent.keys = insertAt(parent.keys, idx-1, separator)
	parent.children = insertPageIDAt(parent.children, idx, rightChild)
	parent.size++

	if err := t.setParent(rightChild, parent.page.ID); err != nil {
		t.unpinNode(parent, false)
		t.unpinPath(ancestors)
		return err
	}

	if parent.size <= parent.maxSize {
		t.unpinNode(parent, true)
		t.unpinPath(ancestors)
		return nil
	}
	return t.splitInternalAndPropagate(parent, ancestors)
}

// splitInternalAndPropagate splits an overfull internal node, pushing its
// middle key up to the parent (or creating a new root).
func (t *BPlusTree) splitInternalAndPropagate(n *node, ancestors []*node) error {
	mid := n.size / 2
	pushUp := n.keys[mid-1]

	newPage, err := t.pool.NewPage()
	if err != nil {
		t.unpinNode(n, false)
		t.unpinPath(ancestors)
		return err
	}
	sibling := newInternalNode(newPage, t.ks, t.internalMaxSize, n.parentID)
	sibling.keys = append(sibling.keys, n.keys[mid:]...)
	sibling.children = append(sibling.children, n.children[mid:]...)
	sibling.size = len(sibling.children)

	n.keys = n.keys[:mid-1]
	n.children = n.children[:mid]
	n.size = mid

	sibling.encode(t.ks)
	for _, child := range sibling.children {
		if err := t.setParent(child, newPage.ID); err != nil {
			t.unpinNode(n, true)
			t.pool.Unpin(newPage.ID, true)
			t.unpinPath(ancestors)
			return err
		}
	}

	if n.isRoot() {
		t.unpinNode(n, true)
		t.pool.Unpin(newPage.ID, true)
		return t.createNewRoot(n.page.ID, pushUp, newPage.ID)
	}

	leftID := n.page.ID
	parent := ancestors[len(ancestors)-1]
	t.unpinNode(n, true)
	t.pool.Unpin(newPage.ID, true)
	return t.insertIntoParent(parent, ancestors[:len(ancestors)-1], leftID, pushUp, newPage.ID)
}

// createNewRoot allocates a new internal root pointing at leftChild and
// rightChild, separated by sep, and registers it in the header page.
func (t *BPlusTree) createNewRoot(leftChild storage.PageID, sep []byte, rightChild storage.PageID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	root := newInternalNode(page, t.ks, t.internalMaxSize, storage.InvalidPageID)
	root.keys = [][]byte{sep}
	root.children = []storage.PageID{leftChild, rightChild}
	root.size = 2
	root.encode(t.ks)
	t.pool.Unpin(page.ID, true)

	if err := t.setParent(leftChild, page.ID); err != nil {
		return err
	}
	if err := t.setParent(rightChild, page.ID); err != nil {
		return err
	}
	return t.setRootPageID(page.ID)
}

// setParent updates child's parentPageID in place.
func (t *BPlusTree) setParent(child storage.PageID, parent storage.PageID) error {
	page, err := t.pool.Fetch(child)
	if err != nil {
		return err
	}
	page.WLatch()
	n := loadNode(page, t.ks)
	n.parentID = parent
	n.encode(t.ks)
	page.WUnlatch()
	return t.pool.Unpin(page.ID, true)
}

// indexOfChild returns the index of child within parent.children, or -1.
func (t *BPlusTree) indexOfChild(parent *node, child storage.PageID) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return -1
}

func insertAt(s [][]byte, i int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertRIDAt(s []storage.RID, i int, v storage.RID) []storage.RID {
	s = append(s, storage.RID{})
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertPageIDAt(s []storage.PageID, i int, v storage.PageID) []storage.PageID {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s [][]byte, i int) [][]byte {
	return append(s[:i], s[i+1:]...)
}

func removeRIDAt(s []storage.RID, i int) []storage.RID {
	return append(s[:i], s[i+1:]...)
}

func removePageIDAt(s []storage.PageID, i int) []storage.PageID {
	return append(s[:i], s[i+1:]...)
}

// Remove deletes key from the tree, coalescing or redistributing underfull
// nodes bottom-up per §4.6's coalesce_or_redistribute protocol.
func (t *BPlusTree) Remove(key []byte) error {
	t.treeMu.Lock()
	defer t.treeMu.Unlock()

	root, err := t.getRootPageID()
	if err != nil {
		return err
	}
	if root == storage.InvalidPageID {
		return ErrKeyNotFound
	}

	path, leaf, err := t.descendToLeaf(root, key)
	if err != nil {
		return err
	}

	idx, found := t.findInLeaf(leaf, key)
	if !found {
		t.unpinNode(leaf, false)
		t.unpinPath(path)
		return ErrKeyNotFound
	}
	leaf.keys = removeAt(leaf.keys, idx)
	leaf.rids = removeRIDAt(leaf.rids, idx)
	leaf.size--

	return t.coalesceOrRedistribute(leaf, path)
}

// coalesceOrRedistribute is called after n has lost one entry. If n still
// meets its minimum occupancy (or is the root), it is simply re-encoded.
// Otherwise it borrows from a sibling or merges with one, propagating the
// deletion of a separator key up to the parent when a merge occurs.
// path holds n's write-latched ancestors, nearest-last; n itself is not in
// path and is always unpinned by this call or one of its callees.
func (t *BPlusTree) coalesceOrRedistribute(n *node, path []*node) error {
	if len(path) == 0 {
		// n is the root: underflow is fine, but an internal root left with
		// a single child must be replaced by that child.
		if !n.isLeaf && n.size == 1 {
			onlyChild := n.children[0]
			t.unpinNode(n, true)
			if err := t.pool.Delete(n.page.ID); err != nil {
				return err
			}
			if err := t.setParent(onlyChild, storage.InvalidPageID); err != nil {
				return err
			}
			return t.setRootPageID(onlyChild)
		}
		if n.isLeaf && n.size == 0 {
			t.unpinNode(n, true)
			if err := t.pool.Delete(n.page.ID); err != nil {
				return err
			}
			return t.setRootPageID(storage.InvalidPageID)
		}
		t.unpinNode(n, true)
		return nil
	}

	min := t.leafMinSize
	if !n.isLeaf {
		min = t.internalMinSize
	}
	if n.size >= min {
		t.unpinNode(n, true)
		t.unpinPath(path)
		return nil
	}

	parent := path[len(path)-1]
	ancestors := path[:len(path)-1]
	myIdx := t.indexOfChild(parent, n.page.ID)

	var siblingID storage.PageID
	siblingIsLeft := false
	if myIdx > 0 {
		siblingID = parent.children[myIdx-1]
		siblingIsLeft = true
	} else {
		siblingID = parent.children[myIdx+1]
	}

	siblingPage, err := t.pool.Fetch(siblingID)
	if err != nil {
		t.unpinNode(n, true)
		t.unpinPath(path)
		return err
	}
	siblingPage.WLatch()
	sibling := loadNode(siblingPage, t.ks)

	siblingMax := t.leafMaxSize
	if !n.isLeaf {
		siblingMax = t.internalMaxSize
	}

	if n.size+sibling.size <= siblingMax {
		// Merge n into its sibling (or vice versa), then drop the
		// separator key that pointed at whichever node is discarded.
		var dropIdx int
		if siblingIsLeft {
			dropIdx = myIdx - 1
			t.mergeInto(sibling, n, parent.keys[dropIdx])
			t.unpinNode(sibling, true)
			t.unpinNode(n, false)
			if err := t.pool.Delete(n.page.ID); err != nil {
				t.unpinPath(path)
				return err
			}
		} else {
			dropIdx = myIdx
			t.mergeInto(n, sibling, parent.keys[dropIdx])
			t.unpinNode(n, true)
			t.unpinNode(sibling, false)
			if err := t.pool.Delete(sibling.page.ID); err != nil {
				t.unpinPath(path)
				return err
			}
		}
		parent.keys = removeAt(parent.keys, dropIdx)
		parent.children = removePageIDAt(parent.children, dropIdx+1)
		parent.size--
		return t.coalesceOrRedistribute(parent, ancestors)
	}

	// Redistribute: borrow one entry from the sibling, updating the
	// separator key in parent to match.
	if siblingIsLeft {
		t.borrowFromLeft(parent, myIdx-1, sibling, n)
	} else {
		t.borrowFromRight(parent, myIdx, sibling, n)
	}
	t.unpinNode(sibling, true)
	t.unpinNode(n, true)
	t.unpinNode(parent, true)
	t.unpinPath(ancestors)
	return nil
}

// mergeInto appends right's entries onto left (both already known to fit in
// one page). sepKey is the parent separator key between left and right,
// needed to reconstruct an internal node's key list (unused for leaves,
// which carry no separator of their own). Caller re-encodes and unpins
// both nodes.
func (t *BPlusTree) mergeInto(left, right *node, sepKey []byte) {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.rids = append(left.rids, right.rids...)
		left.size = len(left.keys)
		left.nextID = right.nextID
		return
	}
	left.keys = append(left.keys, sepKey)
	left.keys = append(left.keys, right.keys...)
	left.children = append(left.children, right.children...)
	left.size = len(left.children)
	for _, c := range right.children {
		t.setParent(c, left.page.ID)
	}
}

// borrowFromLeft moves the left sibling's last entry into n (n's right
// neighbor), updating the separating key at parent.keys[sepIdx].
func (t *BPlusTree) borrowFromLeft(parent *node, sepIdx int, left, n *node) {
	if n.isLeaf {
		lastIdx := left.size - 1
		k, r := left.keys[lastIdx], left.rids[lastIdx]
		left.keys = left.keys[:lastIdx]
		left.rids = left.rids[:lastIdx]
		left.size--
		n.keys = insertAt(n.keys, 0, k)
		n.rids = insertRIDAt(n.rids, 0, r)
		n.size++
		parent.keys[sepIdx] = n.keys[0]
		return
	}
	lastChildIdx := left.size - 1
	child := left.children[lastChildIdx]
	sepKey := parent.keys[sepIdx]
	newSep := left.keys[lastChildIdx-1]
	left.children = left.children[:lastChildIdx]
	left.keys = left.keys[:lastChildIdx-1]
	left.size--
	n.children = insertPageIDAt(n.children, 0, child)
	n.keys = insertAt(n.keys, 0, sepKey)
	n.size++
	parent.keys[sepIdx] = newSep
	t.setParent(child, n.page.ID)
}

// borrowFromRight moves the right sibling's first entry into n, updating
// the separating key at parent.keys[sepIdx].
func (t *BPlusTree) borrowFromRight(parent *node, sepIdx int, right, n *node) {
	if n.isLeaf {
		k, r := right.keys[0], right.rids[0]
		right.keys = removeAt(right.keys, 0)
		right.rids = removeRIDAt(right.rids, 0)
		right.size--
		n.keys = append(n.keys, k)
		n.rids = append(n.rids, r)
		n.size++
		parent.keys[sepIdx] = right.keys[0]
		return
	}
	child := right.children[0]
	sepKey := parent.keys[sepIdx]
	right.children = removePageIDAt(right.children, 0)
	firstKey := right.keys[0]
	right.keys = removeAt(right.keys, 0)
	right.size--
	n.children = append(n.children, child)
	n.keys = append(n.keys, sepKey)
	n.size++
	parent.keys[sepIdx] = firstKey
	t.setParent(child, n.page.ID)
}
