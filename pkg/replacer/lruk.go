package replacer

import (
	"sync"
)

// LRUKReplacer evicts based on the backward k-distance: the time since the
// k-th most recent access. A frame with fewer than k accesses has infinite
// backward distance (treated as -infinity for its k-th timestamp per the
// tie-break rule), so frames that have not been seen k times are preferred
// victims over frames that have; among those, least-recently-used wins.
type LRUKReplacer struct {
	mu      sync.Mutex
	k       int
	clock   uint64
	history map[FrameID][]uint64 // most recent access first
	evictable map[FrameID]bool
}

func NewLRUKReplacer(k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:         k,
		history:   make(map[FrameID][]uint64),
		evictable: make(map[FrameID]bool),
	}
}

// RecordAccess must be called by the buffer pool on every fetch, separate
// from Pin/Unpin, so the k-history reflects actual access order rather than
// only pin transitions.
func (r *LRUKReplacer) RecordAccess(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	hist := append([]uint64{r.clock}, r.history[frame]...)
	if len(hist) > r.k {
		hist = hist[:r.k]
	}
	r.history[frame] = hist
}

func (r *LRUKReplacer) Pin(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.evictable, frame)
}

func (r *LRUKReplacer) Unpin(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.history[frame]; !ok {
		r.clock++
		r.history[frame] = []uint64{r.clock}
	}
	r.evictable[frame] = true
}

// kthTimestamp returns the frame's k-th most recent access timestamp, or
// (0, false) when it has fewer than k recorded accesses (treated as -inf).
func (r *LRUKReplacer) kthTimestamp(frame FrameID) (uint64, bool) {
	hist := r.history[frame]
	if len(hist) < r.k {
		return 0, false
	}
	return hist[r.k-1], true
}

func (r *LRUKReplacer) Victim() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best      FrameID
		found     bool
		bestInf   bool
		bestStamp uint64
		bestLRU   uint64
	)

	for frame := range r.evictable {
		stamp, hasK := r.kthTimestamp(frame)
		isInf := !hasK
		mostRecent := r.history[frame][0]

		switch {
		case !found:
			best, bestInf, bestStamp, bestLRU, found = frame, isInf, stamp, mostRecent, true
		case isInf && !bestInf:
			best, bestInf, bestStamp, bestLRU = frame, isInf, stamp, mostRecent
		case isInf == bestInf && isInf && mostRecent < bestLRU:
			// Both have infinite backward distance: least-recently-used wins.
			best, bestLRU = frame, mostRecent
		case isInf == bestInf && !isInf && stamp < bestStamp:
			// Both have a real k-th distance: oldest k-th access wins.
			best, bestStamp = frame, stamp
		}
	}

	if !found {
		return 0, false
	}
	delete(r.evictable, best)
	delete(r.history, best)
	return best, true
}

func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evictable)
}
