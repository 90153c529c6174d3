package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/bgjobs"
	"github.com/petuhovskiy/rollodrome/internal/catalog"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
	"github.com/petuhovskiy/rollodrome/internal/repos"
	"github.com/petuhovskiy/rollodrome/internal/runcache"
)

// Rule to delete random runs when a pool has accumulated too many on
// this node.
type TrimRuns struct {
	// Target number of runs per pool. A run will be deleted if there
	// are more. Pools can override it with trim_after.
	maxRuns   int
	node      string
	catalog   *catalog.Catalog
	runRepo   *repos.RunRepo
	register  *bgjobs.Register
	runLocker *bgjobs.RunLocker
	runs      *runcache.Cache
}

type TrimRunsArgs struct {
	MaxRuns int
}

func NewTrimRuns(a *app.App, j json.RawMessage) (*TrimRuns, error) {
	var args TrimRunsArgs
	if len(j) > 0 {
		if err := json.Unmarshal(j, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if args.MaxRuns == 0 {
		args.MaxRuns = 5
	}

	return &TrimRuns{
		maxRuns:   args.MaxRuns,
		node:      a.Config.Node,
		catalog:   a.Catalog,
		runRepo:   a.Repo.Run,
		register:  a.Register,
		runLocker: a.RunLocker,
		runs:      a.Runs,
	}, nil
}

func (c *TrimRuns) Execute(ctx context.Context) error {
	for _, pool := range c.catalog.Pools {
		pool := pool
		c.register.Go(func() { c.executeForPool(ctx, pool) })
	}
	return nil
}

// Execute rule for a single pool. Will delete a run only if there are
// too many.
func (c *TrimRuns) executeForPool(ctx context.Context, pool catalog.Pool) {
	ctx = log.With(ctx, zap.String("pool", pool.Name))

	limit := c.maxRuns
	if pool.TrimAfter > 0 {
		limit = pool.TrimAfter
	}

	runs, err := c.runRepo.FindAllByPool(pool.Name, c.node)
	if err != nil {
		log.Error(ctx, "failed to load runs", zap.Error(err))
		return
	}

	if len(runs) <= limit {
		return
	}

	// shuffle runs to delete random ones
	rand.Shuffle(len(runs), func(i, j int) {
		runs[i], runs[j] = runs[j], runs[i]
	})

	// take any N runs
	runs = runs[:limit]

	// sort by creation date
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	// take the middle run, because we don't want to take too old and too new runs
	run := runs[len(runs)/2]
	ctx = log.With(ctx, zap.Uint("runID", run.ID))
	log.Info(ctx, "selected run for deletion")

	err = c.trimRun(ctx, &run)
	if err != nil {
		app.TrialFailures.WithLabelValues(string(rdesc.ActTrimRuns)).Inc()
		log.Error(ctx, "failed to delete run", zap.Error(err))
		return
	}
}

// Delete a run. Takes the exclusive lock and marks the lock deleted so
// rules that already selected this run back off after they acquire it.
func (c *TrimRuns) trimRun(ctx context.Context, run *models.Run) error {
	runLock := c.runLocker.Get(run.ID)

	unlock := runLock.ExclusiveLock()
	defer unlock()

	runLock.Deleted.Store(true)

	err := c.runRepo.Delete(run)
	if err != nil {
		runLock.Deleted.Store(false)
		return err
	}

	c.runs.Remove(run.ID)
	app.LiveRuns.Set(float64(c.runs.Len()))
	c.runLocker.Delete(run.ID)

	log.Info(ctx, "run deleted")
	return nil
}
