package bgjobs

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunLocker allows to have in-memory per-run communication.
// Live containers are not safe for concurrent use, so every rule that
// touches a run's engine pair must hold its lock: draw bursts and pool
// mutations advance or change state and take the exclusive lock, audits
// only read and take the shared one.
type RunLocker struct {
	mu sync.Mutex
	m  map[uint]*RunLock
}

func NewRunLocker() *RunLocker {
	return &RunLocker{
		m: make(map[uint]*RunLock),
	}
}

// Get returns a lock for the run.
func (l *RunLocker) Get(runID uint) *RunLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.m[runID]
	if !ok {
		lock = newRunLock()
		l.m[runID] = lock
	}
	return lock
}

// Deletes a run lock from the map. It should be deleted only after updating the database.
func (l *RunLocker) Delete(runID uint) {
	go func() {
		const databaseMaxLag = 30 * time.Second

		// postpone deletion to protect against in-flight requests
		time.Sleep(databaseMaxLag)

		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.m, runID)
	}()
}

type RunLock struct {
	mu sync.RWMutex

	// Deleted is set by trim_runs before the row disappears. Rules that
	// selected the run earlier must check it after taking the lock.
	Deleted atomic.Bool
}

func newRunLock() *RunLock {
	return &RunLock{}
}

func (l *RunLock) ExclusiveLock() func() {
	l.mu.Lock()
	return l.mu.Unlock
}

func (l *RunLock) TryExclusiveLock() func() {
	if !l.mu.TryLock() {
		return nil
	}
	return l.mu.Unlock
}

func (l *RunLock) SharedLock() func() {
	l.mu.RLock()
	return l.mu.RUnlock
}

func (l *RunLock) TrySharedLock() func() {
	if !l.mu.TryRLock() {
		return nil
	}
	return l.mu.RUnlock
}
