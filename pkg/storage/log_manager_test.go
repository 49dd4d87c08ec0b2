package storage

import (
	"testing"
	"time"
)

func newTestLogManager(t *testing.T) (*LogManager, *DiskManager) {
	t.Helper()
	dm, err := NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return NewLogManager(dm, time.Second), dm
}

func TestLogManagerAppendAssignsIncreasingLSNs(t *testing.T) {
	lm, _ := newTestLogManager(t)

	lsn1, err := lm.Append(NewBeginRecord(1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := lm.Append(NewCommitRecord(1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Errorf("lsn2 (%d) should be greater than lsn1 (%d)", lsn2, lsn1)
	}
}

func TestLogManagerForceUpToPersists(t *testing.T) {
	lm, dm := newTestLogManager(t)

	rid := RID{PageID: 3, Slot: 1}
	rec := NewInsertRecord(1, rid, []byte("payload"))
	lsn, err := lm.Append(rec)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := lm.ForceUpTo(lsn); err != nil {
		t.Fatalf("ForceUpTo: %v", err)
	}

	raw, err := dm.ReadLogFromStart()
	if err != nil {
		t.Fatalf("ReadLogFromStart: %v", err)
	}
	decoded, n, err := DecodeLogRecord(raw)
	if err != nil {
		t.Fatalf("DecodeLogRecord: %v", err)
	}
	if n != len(raw) {
		t.Errorf("decoded %d bytes, expected to consume all %d", n, len(raw))
	}
	if decoded.Type != LogInsert || string(decoded.Tuple) != "payload" {
		t.Errorf("decoded record = %+v, want an INSERT of %q", decoded, "payload")
	}
	if decoded.RID != rid {
		t.Errorf("decoded rid = %v, want %v", decoded.RID, rid)
	}
}

func TestLogManagerFlushThreadStop(t *testing.T) {
	lm, _ := newTestLogManager(t)
	lm.flushPeriod = 5 * time.Millisecond
	lm.RunFlushThread()

	if _, err := lm.Append(NewBeginRecord(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	lm.StopFlushThread()

	if lm.FlushedLSN() == 0 {
		t.Error("expected background flush to have advanced FlushedLSN")
	}
}
