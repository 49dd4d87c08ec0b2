package storage

// TableIterator performs a forward sequential scan over a TableHeap,
// returning tuples in RID order and skipping tombstoned/reclaimed slots
// (§4.5). It holds no latch between calls to Next; each call pins, reads,
// and unpins its page independently, so a concurrent writer may delete a
// tuple already yielded without affecting the scan in progress.
type TableIterator struct {
	heap    *TableHeap
	started bool
	done    bool
	cur     RID
}

func newTableIterator(h *TableHeap) *TableIterator {
	return &TableIterator{heap: h}
}

// Next advances the iterator and returns the next live tuple, or
// (RID{}, nil, false) once the scan is exhausted.
func (it *TableIterator) Next() (RID, []byte, bool) {
	if it.done {
		return RID{}, nil, false
	}

	var rid RID
	var ok bool
	if !it.started {
		it.started = true
		rid, ok = it.firstOverall()
	} else {
		rid, ok = it.nextAfter(it.cur)
	}
	if !ok {
		it.done = true
		return RID{}, nil, false
	}

	tuple, err := it.heap.GetTuple(rid)
	if err != nil {
		// Tuple was deleted between locating the RID and reading it;
		// resume the scan from the same position next time.
		it.cur = rid
		return it.Next()
	}
	it.cur = rid
	return rid, tuple, true
}

func (it *TableIterator) firstOverall() (RID, bool) {
	pid := it.heap.FirstPageID()
	for pid != InvalidPageID {
		page, err := it.heap.bufferPool.Fetch(pid)
		if err != nil {
			return RID{}, false
		}
		page.RLatch()
		tp := LoadTablePage(page)
		rid, ok := tp.FirstRID()
		next := tp.NextPageID()
		page.RUnlatch()
		it.heap.bufferPool.Unpin(pid, false)
		if ok {
			return rid, true
		}
		pid = next
	}
	return RID{}, false
}

func (it *TableIterator) nextAfter(rid RID) (RID, bool) {
	page, err := it.heap.bufferPool.Fetch(rid.PageID)
	if err != nil {
		return RID{}, false
	}
	page.RLatch()
	tp := LoadTablePage(page)
	next, ok := tp.NextRID(rid)
	nextPageID := tp.NextPageID()
	page.RUnlatch()
	it.heap.bufferPool.Unpin(rid.PageID, false)
	if ok {
		return next, true
	}

	pid := nextPageID
	for pid != InvalidPageID {
		p, err := it.heap.bufferPool.Fetch(pid)
		if err != nil {
			return RID{}, false
		}
		p.RLatch()
		tp := LoadTablePage(p)
		r, ok := tp.FirstRID()
		n := tp.NextPageID()
		p.RUnlatch()
		it.heap.bufferPool.Unpin(pid, false)
		if ok {
			return r, true
		}
		pid = n
	}
	return RID{}, false
}
