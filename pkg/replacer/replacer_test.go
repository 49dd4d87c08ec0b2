package replacer

import "testing"

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	// Touch 1 again so it becomes most recently used.
	r.Pin(1)
	r.Unpin(1)

	got, ok := r.Victim()
	if !ok || got != 2 {
		t.Fatalf("expected victim 2, got %d (ok=%v)", got, ok)
	}
	got, ok = r.Victim()
	if !ok || got != 3 {
		t.Fatalf("expected victim 3, got %d (ok=%v)", got, ok)
	}
	got, ok = r.Victim()
	if !ok || got != 1 {
		t.Fatalf("expected victim 1, got %d (ok=%v)", got, ok)
	}
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no candidates left")
	}
}

func TestLRUReplacerSize(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	if r.Size() != 2 {
		t.Fatalf("expected size 2, got %d", r.Size())
	}
	r.Pin(1)
	if r.Size() != 1 {
		t.Fatalf("expected size 1, got %d", r.Size())
	}
}

func TestLRUKReplacerPrefersFewerAccesses(t *testing.T) {
	r := NewLRUKReplacer(2)

	// Frame 1 accessed twice, frame 2 accessed once.
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(1)

	r.Unpin(1)
	r.Unpin(2)

	victim, ok := r.Victim()
	if !ok || victim != 2 {
		t.Fatalf("expected frame 2 (fewer than k accesses) to be victim, got %d", victim)
	}
}

func TestLRUKReplacerOldestKthWins(t *testing.T) {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(2)

	r.Unpin(1)
	r.Unpin(2)

	victim, ok := r.Victim()
	if !ok || victim != 1 {
		t.Fatalf("expected frame 1 (older k-th access) to be victim, got %d", victim)
	}
}

func TestClockReplacerSecondChance(t *testing.T) {
	r := NewClockReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	// Give frame 1 a second chance by touching it again before eviction.
	r.Pin(1)
	r.Unpin(1)

	victim, ok := r.Victim()
	if !ok {
		t.Fatalf("expected a victim")
	}
	if victim != 2 && victim != 3 {
		t.Fatalf("expected victim 2 or 3 before re-referenced frame 1, got %d", victim)
	}
}

func TestClockReplacerSize(t *testing.T) {
	r := NewClockReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	if r.Size() != 2 {
		t.Fatalf("expected size 2, got %d", r.Size())
	}
	r.Pin(1)
	if r.Size() != 1 {
		t.Fatalf("expected size 1, got %d", r.Size())
	}
}
