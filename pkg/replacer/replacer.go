// Package replacer implements the frame-eviction policies used by the
// buffer pool: LRU, LRU-K, and Clock. Exactly one variant is active at a
// time, selected by the variant passed to storage.NewBufferPool rather than
// compiled in.
package replacer

// FrameID identifies a buffer-pool frame (not a page id: frames are a fixed
// array of slots, pages come and go through them).
type FrameID int

// Replacer chooses an unpinned frame to evict. Implementations must be
// safe for concurrent use.
type Replacer interface {
	// Pin removes frame from the eviction candidate set.
	Pin(frame FrameID)
	// Unpin adds frame to the eviction candidate set if not already
	// present.
	Unpin(frame FrameID)
	// Victim picks a candidate to evict and removes it from the
	// candidate set. Returns false if there are no candidates.
	Victim() (FrameID, bool)
	// Size returns the number of eviction candidates.
	Size() int
}

// Variant names a Replacer implementation, selectable via the variant
// argument of storage.NewBufferPool.
type Variant string

const (
	VariantLRU   Variant = "lru"
	VariantLRUK  Variant = "lru-k"
	VariantClock Variant = "clock"
)

// New constructs the Replacer named by variant. k is only consulted for
// VariantLRUK; an unrecognized variant falls back to LRU.
func New(variant Variant, numFrames int, k int) Replacer {
	switch variant {
	case VariantLRUK:
		return NewLRUKReplacer(k)
	case VariantClock:
		return NewClockReplacer(numFrames)
	default:
		return NewLRUReplacer()
	}
}
