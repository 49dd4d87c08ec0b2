package storage

import (
	"sync"

	"github.com/mnohosten/laura-db/pkg/errkind"
)

// CheckpointCoordinator drains writers, flushes the log and buffer pool, and
// stamps a CHECKPOINT log record marking a recovery-safe point (§4.8, C8).
type CheckpointCoordinator struct {
	logMgr     *LogManager
	bufferPool *BufferPool

	mu         sync.Mutex
	cond       *sync.Cond
	inProgress bool
	writers    int
}

func NewCheckpointCoordinator(logMgr *LogManager, bufferPool *BufferPool) *CheckpointCoordinator {
	c := &CheckpointCoordinator{logMgr: logMgr, bufferPool: bufferPool}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// BeginWrite registers an in-flight writer, blocking first while a
// checkpoint is in progress. Checkpoint in turn waits for every registered
// writer to call EndWrite.
func (c *CheckpointCoordinator) BeginWrite() {
	c.mu.Lock()
	for c.inProgress {
		c.cond.Wait()
	}
	c.writers++
	c.mu.Unlock()
}

// EndWrite unregisters a writer started by BeginWrite.
func (c *CheckpointCoordinator) EndWrite() {
	c.mu.Lock()
	c.writers--
	if c.writers == 0 {
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// Checkpoint runs the full protocol: refuse if one is already running, block
// new writers, drain active ones, flush the log and buffer pool, append a
// CHECKPOINT record, flush again, then resume.
func (c *CheckpointCoordinator) Checkpoint() error {
	c.mu.Lock()
	if c.inProgress {
		c.mu.Unlock()
		return errkind.New(errkind.InvalidState, "checkpoint", "checkpoint already in progress")
	}
	c.inProgress = true
	for c.writers > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()

	defer func() {
		c.logMgr.RunFlushThread()
		c.mu.Lock()
		c.inProgress = false
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	c.logMgr.StopFlushThread()
	if err := c.logMgr.FlushAll(); err != nil {
		return err
	}
	if err := c.bufferPool.FlushAll(); err != nil {
		return err
	}
	lsn, err := c.logMgr.Append(NewCheckpointRecord())
	if err != nil {
		return err
	}
	if err := c.logMgr.ForceUpTo(lsn); err != nil {
		return err
	}
	return nil
}
