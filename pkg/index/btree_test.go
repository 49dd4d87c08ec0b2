package index

import (
	"sync"
	"testing"
	"time"

	"github.com/mnohosten/laura-db/pkg/replacer"
	"github.com/mnohosten/laura-db/pkg/storage"
)

func newTestTree(t *testing.T, poolSize int) *BPlusTree {
	t.Helper()
	dm, err := storage.NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	lm := storage.NewLogManager(dm, time.Second)
	bp := storage.NewBufferPool(poolSize, dm, lm, replacer.VariantLRU, 2)
	tree, err := NewBPlusTree("idx_test", bp, 8, Int64Comparator)
	if err != nil {
		t.Fatalf("NewBPlusTree: %v", err)
	}
	return tree
}

func ridFor(n int) storage.RID {
	return storage.RID{PageID: storage.PageID(n + 1), Slot: 0}
}

// TestInsertDeleteRoundTrip drives S3: a specific insert order followed by
// a partial set of deletes, checked against GetValue throughout.
func TestInsertDeleteRoundTrip(t *testing.T) {
	tree := newTestTree(t, 32)
	order := []int64{5, 9, 1, 3, 7, 2, 4, 8, 6}

	for _, k := range order {
		if err := tree.Insert(EncodeInt64Key(k), ridFor(int(k))); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	for _, k := range order {
		rid, err := tree.GetValue(EncodeInt64Key(k))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", k, err)
		}
		if rid != ridFor(int(k)) {
			t.Errorf("GetValue(%d) = %v, want %v", k, rid, ridFor(int(k)))
		}
	}

	for _, k := range []int64{3, 5, 7} {
		if err := tree.Remove(EncodeInt64Key(k)); err != nil {
			t.Fatalf("Remove(%d): %v", k, err)
		}
	}
	for _, k := range []int64{3, 5, 7} {
		if _, err := tree.GetValue(EncodeInt64Key(k)); err != ErrKeyNotFound {
			t.Errorf("GetValue(%d) after Remove = %v, want ErrKeyNotFound", k, err)
		}
	}
	remaining := []int64{1, 2, 4, 6, 8, 9}
	for _, k := range remaining {
		rid, err := tree.GetValue(EncodeInt64Key(k))
		if err != nil {
			t.Fatalf("GetValue(%d) after deletes: %v", k, err)
		}
		if rid != ridFor(int(k)) {
			t.Errorf("GetValue(%d) = %v, want %v", k, rid, ridFor(int(k)))
		}
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 16)
	key := EncodeInt64Key(42)
	if err := tree.Insert(key, ridFor(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(key, ridFor(2)); err != ErrDuplicateKey {
		t.Errorf("second Insert = %v, want ErrDuplicateKey", err)
	}
}

func TestRemoveMissingKey(t *testing.T) {
	tree := newTestTree(t, 16)
	if err := tree.Remove(EncodeInt64Key(1)); err != ErrKeyNotFound {
		t.Errorf("Remove on empty tree = %v, want ErrKeyNotFound", err)
	}
	tree.Insert(EncodeInt64Key(1), ridFor(1))
	if err := tree.Remove(EncodeInt64Key(2)); err != ErrKeyNotFound {
		t.Errorf("Remove missing key = %v, want ErrKeyNotFound", err)
	}
}

// TestIteratorOrdering inserts out of order and checks Begin()/Next() walks
// keys in ascending order across leaf boundaries.
func TestIteratorOrdering(t *testing.T) {
	tree := newTestTree(t, 64)
	const n = 1000
	for i := n - 1; i >= 0; i-- {
		if err := tree.Insert(EncodeInt64Key(int64(i)), ridFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it, err := tree.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer it.Close()

	count := 0
	var prev int64 = -1
	for it.Valid() {
		k := DecodeInt64Key(it.Key())
		if k <= prev {
			t.Fatalf("keys out of order: %d after %d", k, prev)
		}
		prev = k
		count++
		if !it.Next() {
			break
		}
	}
	if count != n {
		t.Errorf("iterated %d entries, want %d", count, n)
	}
}

// TestConcurrentInserts drives S5: many goroutines inserting disjoint key
// ranges concurrently, verified afterward via GetValue.
func TestConcurrentInserts(t *testing.T) {
	tree := newTestTree(t, 64)
	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < perGoroutine; i++ {
				key := base*perGoroutine + i
				if err := tree.Insert(EncodeInt64Key(key), ridFor(int(key))); err != nil {
					t.Errorf("Insert(%d): %v", key, err)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	for g := 0; g < goroutines; g++ {
		for i := int64(0); i < perGoroutine; i++ {
			key := int64(g)*perGoroutine + i
			rid, err := tree.GetValue(EncodeInt64Key(key))
			if err != nil {
				t.Fatalf("GetValue(%d): %v", key, err)
			}
			if rid != ridFor(int(key)) {
				t.Errorf("GetValue(%d) = %v, want %v", key, rid, ridFor(int(key)))
			}
		}
	}
}
