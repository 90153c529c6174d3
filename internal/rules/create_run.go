package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/bgjobs"
	"github.com/petuhovskiy/rollodrome/internal/catalog"
	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
	"github.com/petuhovskiy/rollodrome/internal/repos"
	"github.com/petuhovskiy/rollodrome/internal/runcache"
)

// Rule to keep every enabled pool instantiated, creating a run per pool
// at least once per `interval`.
type CreateRun struct {
	interval  time.Duration
	node      string
	seed      uint64
	catalog   *catalog.Catalog
	runRepo   *repos.RunRepo
	trialRepo *repos.TrialRepo
	sequence  *repos.Sequence
	register  *bgjobs.Register
	runs      *runcache.Cache
}

type CreateRunArgs struct {
	Interval rdesc.Duration
}

func NewCreateRun(a *app.App, j json.RawMessage) (*CreateRun, error) {
	var args CreateRunArgs
	if len(j) > 0 {
		if err := json.Unmarshal(j, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if args.Interval.Duration == 0 {
		args.Interval.Duration = time.Minute * 10
	}

	return &CreateRun{
		interval:  args.Interval.Duration,
		node:      a.Config.Node,
		seed:      a.Seed,
		catalog:   a.Catalog,
		runRepo:   a.Repo.Run,
		trialRepo: a.Repo.Trial,
		sequence:  a.Repo.SeqNodeRun,
		register:  a.Register,
		runs:      a.Runs,
	}, nil
}

func (c *CreateRun) Execute(ctx context.Context) error {
	for _, pool := range c.catalog.Enabled() {
		pool := pool
		c.register.Go(func() { c.executeForPool(ctx, pool) })
	}
	return nil
}

// Execute rule for a single pool. Will create a run only if the last
// created run is older than the interval.
func (c *CreateRun) executeForPool(ctx context.Context, pool catalog.Pool) {
	ctx = log.With(ctx, zap.String("pool", pool.Name))

	run, err := c.runRepo.FindLastCreated(pool.Name, c.node)
	if err != nil {
		log.Error(ctx, "failed to find last created run", zap.Error(err))
		return
	}

	if run == nil || time.Since(run.CreatedAt) > c.interval {
		log.Info(ctx, "creating run")
		err := c.createRun(ctx, pool)
		if err != nil {
			app.TrialFailures.WithLabelValues(string(rdesc.ActCreateRun)).Inc()
			log.Error(ctx, "failed to create run", zap.Error(err))
			return
		}
	}
}

// Create a run from the given pool.
func (c *CreateRun) createRun(ctx context.Context, pool catalog.Pool) error {
	runSeqID, err := c.sequence.Next()
	if err != nil {
		return err
	}

	items, err := json.Marshal(pool.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal pool items: %w", err)
	}

	// Sequence numbers are never reissued, so this seed is unique to
	// the run even across node restarts.
	run := models.Run{
		Node:        c.node,
		PoolName:    pool.Name,
		Seed:        app.DeriveSeed(c.seed, fmt.Sprintf("run-%d", runSeqID)),
		Token:       uuid.NewString(),
		Items:       items,
		TotalWeight: pool.TotalWeight(),
	}

	err = c.runRepo.Create(&run)
	if err != nil {
		return fmt.Errorf("failed to create run in the database: %w", err)
	}

	ctx = log.With(ctx, zap.Uint("runID", run.ID))

	live, err := engine.FromRun(&run)
	if err != nil {
		return fmt.Errorf("failed to build live run: %w", err)
	}
	c.runs.Put(live)
	app.LiveRuns.Set(float64(c.runs.Len()))

	saver := repos.NewTrialSaver(c.trialRepo, repos.TrialSaverArgs{
		RunID: &run.ID,
		Node:  &c.node,
	})
	trial := startTrial(models.TrialMutate, "", "create", string(items))
	finishTrial(trial, "", nil)
	if err := saveTrial(saver, trial, nil); err != nil {
		log.Error(ctx, "failed to persist create trial", zap.Error(err))
	}

	log.Info(ctx, "run created",
		zap.String("token", run.Token),
		zap.Uint64("totalWeight", run.TotalWeight),
	)
	return nil
}
