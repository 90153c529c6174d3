// Package runcache keeps the live engine pairs for runs this node is
// exercising. Rows live in the database, engine state lives here.
package runcache

import (
	"sync"

	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/internal/models"
)

// Cache maps run IDs to live engine pairs. A pair is built from the run
// snapshot on first use and kept until the run is trimmed. A restart
// loses generator positions, the cumulative counters on the row keep
// statistics going.
//
// The cache only guards its own map. The returned LiveRun is still
// subject to the per-run locks in bgjobs.
type Cache struct {
	mu   sync.Mutex
	runs map[uint]*engine.LiveRun
}

func New() *Cache {
	return &Cache{
		runs: make(map[uint]*engine.LiveRun),
	}
}

// Get returns the live pair for the run, instantiating it from the run
// snapshot on a miss.
func (c *Cache) Get(run *models.Run) (*engine.LiveRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if live, ok := c.runs[run.ID]; ok {
		return live, nil
	}

	live, err := engine.FromRun(run)
	if err != nil {
		return nil, err
	}
	c.runs[run.ID] = live
	return live, nil
}

// Put stores a freshly created pair, replacing any cached one.
func (c *Cache) Put(live *engine.LiveRun) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[live.RunID] = live
}

// Remove drops the pair for a trimmed run.
func (c *Cache) Remove(runID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
}

// Len returns the number of live pairs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}
