package storage

import (
	"sync"
	"time"
)

// LogManager batches log records in memory and flushes them to the disk
// manager's log file, assigning each record a monotonically increasing LSN
// (§4.7, C7). Append is safe to call concurrently; FlushAll and the
// background flush thread serialize against concurrent appends via mu.
type LogManager struct {
	diskMgr *DiskManager

	mu         sync.Mutex
	nextLSN    uint64
	flushedLSN uint64
	buffer     []byte

	flushCond    *sync.Cond
	stopCh       chan struct{}
	doneCh       chan struct{}
	flushPeriod  time.Duration
}

// NewLogManager constructs a log manager writing through diskMgr. flushPeriod
// governs the background flush thread started by RunFlushThread; it has no
// effect until that thread is started.
func NewLogManager(diskMgr *DiskManager, flushPeriod time.Duration) *LogManager {
	lm := &LogManager{
		diskMgr:     diskMgr,
		flushPeriod: flushPeriod,
	}
	lm.flushCond = sync.NewCond(&lm.mu)
	return lm
}

// Append assigns the record the next LSN and serializes it into the
// in-memory buffer. PrevLSN is written as the caller set it; Append does not
// chain records per transaction. It does not itself guarantee durability;
// callers that need a durability barrier call ForceUpTo or FlushAll.
func (lm *LogManager) Append(r *LogRecord) (uint64, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.nextLSN++
	r.LSN = lm.nextLSN
	lm.buffer = append(lm.buffer, r.Encode()...)
	return r.LSN, nil
}

// FlushAll forces every buffered record to the disk manager's log file and
// fsyncs it. It takes mu itself, so callers must not hold mu.
func (lm *LogManager) FlushAll() error {
	lm.mu.Lock()
	if len(lm.buffer) == 0 {
		lsn := lm.nextLSN
		lm.mu.Unlock()
		lm.setFlushed(lsn)
		return nil
	}
	chunk := lm.buffer
	lm.buffer = nil
	lsn := lm.nextLSN
	lm.mu.Unlock()

	if err := lm.diskMgr.WriteLog(chunk); err != nil {
		return err
	}
	if err := lm.diskMgr.FlushLog(); err != nil {
		return err
	}
	lm.setFlushed(lsn)
	return nil
}

func (lm *LogManager) setFlushed(lsn uint64) {
	lm.mu.Lock()
	if lsn > lm.flushedLSN {
		lm.flushedLSN = lsn
	}
	lm.mu.Unlock()
	lm.flushCond.Broadcast()
}

// ForceUpTo blocks until every record up to and including lsn is durable,
// triggering a flush if necessary. This is the write-ahead-logging barrier
// the buffer pool calls before writing a dirty page to disk.
func (lm *LogManager) ForceUpTo(lsn uint64) error {
	lm.mu.Lock()
	if lsn <= lm.flushedLSN {
		lm.mu.Unlock()
		return nil
	}
	lm.mu.Unlock()
	return lm.FlushAll()
}

// RunFlushThread starts a goroutine that calls FlushAll on flushPeriod,
// until StopFlushThread is called. It may be called again once
// StopFlushThread has returned, but not while the thread is running.
func (lm *LogManager) RunFlushThread() {
	lm.stopCh = make(chan struct{})
	lm.doneCh = make(chan struct{})
	go func() {
		defer close(lm.doneCh)
		ticker := time.NewTicker(lm.flushPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = lm.FlushAll()
			case <-lm.stopCh:
				return
			}
		}
	}()
}

// StopFlushThread stops the background flush goroutine started by
// RunFlushThread and flushes any remaining buffered records.
func (lm *LogManager) StopFlushThread() {
	if lm.stopCh != nil {
		close(lm.stopCh)
		<-lm.doneCh
		lm.stopCh = nil
	}
	_ = lm.FlushAll()
}

// NextLSN reports the LSN that will be assigned to the next appended
// record, for diagnostics and checkpoint bookkeeping.
func (lm *LogManager) NextLSN() uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.nextLSN + 1
}

// FlushedLSN reports the highest LSN known durable.
func (lm *LogManager) FlushedLSN() uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.flushedLSN
}
