package index

import "github.com/mnohosten/laura-db/pkg/storage"

// DumpNode is a debug snapshot of one page's worth of a tree, produced by
// Dump. It is a plain visitor over the tree, not a tree method, so that
// production code never pays for structure traversal it doesn't ask for.
type DumpNode struct {
	PageID   uint32      `json:"page_id"`
	IsLeaf   bool        `json:"is_leaf"`
	Size     int         `json:"size"`
	Keys     [][]byte    `json:"keys"`
	Children []*DumpNode `json:"children,omitempty"`
}

// Dump walks tree from its root and renders the whole structure, for use in
// test assertions and ad hoc debugging. It takes no locks beyond the normal
// read-latch-coupling GetValue also uses, so it is safe to call alongside
// concurrent readers but may race with a concurrent Insert/Remove.
func Dump(tree *BPlusTree) (*DumpNode, error) {
	root, err := tree.getRootPageID()
	if err != nil {
		return nil, err
	}
	if root == storage.InvalidPageID {
		return nil, nil
	}
	return dumpPage(tree, root)
}

func dumpPage(tree *BPlusTree, pid storage.PageID) (*DumpNode, error) {
	page, err := tree.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	page.RLatch()
	n := loadNode(page, tree.ks)

	out := &DumpNode{PageID: uint32(pid), IsLeaf: n.isLeaf, Size: n.size, Keys: n.keys}
	children := append([]storage.PageID(nil), n.children...)
	page.RUnlatch()
	tree.pool.Unpin(pid, false)

	for _, c := range children {
		child, err := dumpPage(tree, c)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}
