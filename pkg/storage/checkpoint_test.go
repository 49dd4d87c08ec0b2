package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/mnohosten/laura-db/pkg/replacer"
)

func TestCheckpointProducesRecoverySafePoint(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	defer dm.Close()
	lm := NewLogManager(dm, time.Second)
	lm.RunFlushThread()
	bp := NewBufferPool(4, dm, lm, replacer.VariantLRU, 2)
	ckpt := NewCheckpointCoordinator(lm, bp)

	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	copy(page.Data, []byte("dirty"))
	if err := bp.Unpin(page.ID, true); err != nil {
		t.Fatalf("Unpin: %v", err)
	}

	if err := ckpt.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	raw, err := dm.ReadLogFromStart()
	if err != nil {
		t.Fatalf("ReadLogFromStart: %v", err)
	}
	rec, _, err := DecodeLogRecord(raw[len(raw)-logHeaderSize:])
	if err != nil {
		t.Fatalf("DecodeLogRecord: %v", err)
	}
	if rec.Type != LogCheckpoint {
		t.Errorf("last record type = %v, want CHECKPOINT", rec.Type)
	}

	lsnBeforeNext := lm.NextLSN()
	if _, err := lm.Append(NewBeginRecord(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lm.NextLSN() <= lsnBeforeNext {
		t.Error("expected a new record to be appended strictly after the checkpoint")
	}
}

func TestCheckpointRefusesConcurrentCheckpoints(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	defer dm.Close()
	lm := NewLogManager(dm, time.Second)
	bp := NewBufferPool(4, dm, lm, replacer.VariantLRU, 2)
	ckpt := NewCheckpointCoordinator(lm, bp)

	ckpt.mu.Lock()
	ckpt.inProgress = true
	ckpt.mu.Unlock()

	if err := ckpt.Checkpoint(); err == nil {
		t.Error("expected an error when a checkpoint is already in progress")
	}

	ckpt.mu.Lock()
	ckpt.inProgress = false
	ckpt.mu.Unlock()
}

func TestCheckpointDrainsActiveWriters(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	defer dm.Close()
	lm := NewLogManager(dm, time.Second)
	bp := NewBufferPool(4, dm, lm, replacer.VariantLRU, 2)
	ckpt := NewCheckpointCoordinator(lm, bp)

	ckpt.BeginWrite()
	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		ckpt.Checkpoint()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("checkpoint returned before the active writer finished")
	case <-time.After(20 * time.Millisecond):
	}

	ckpt.EndWrite()
	wg.Wait()
}
