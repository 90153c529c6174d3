package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

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
	"github.com/petuhovskiy/rollodrome/wrand"
)

// Rule to apply a random mutation to a random run's pool. Keeps the
// population of runs from settling into a fixed shape, so draw bursts
// keep exercising rebuilds.
type MutatePool struct {
	args       MutatePoolArgs
	runFilters []repos.Filter
	runRepo    *repos.RunRepo
	trialRepo  *repos.TrialRepo
	register   *bgjobs.Register
	node       string
	runLocker  *bgjobs.RunLocker
	runs       *runcache.Cache
	catalog    *catalog.Catalog
	opPick     *wrand.Set[string]
}

type MutatePoolArgs struct {
	// Op is the weighted choice of the mutation to apply.
	Op []wrand.Item[string]
	// MaxWeight bounds weights given to inserted or modified elements.
	// Zero stays a legal outcome, it exercises elements that exist but
	// can never be drawn.
	MaxWeight    uint64
	RawRunFilter string
}

const (
	opInsert      = "insert"
	opErase       = "erase"
	opModify      = "modify"
	opClearRefill = "clear_refill"
)

var defaultOps = []wrand.Item[string]{
	{Elem: opInsert, Weight: 3},
	{Elem: opModify, Weight: 3},
	{Elem: opErase, Weight: 2},
	{Elem: opClearRefill, Weight: 1},
}

func NewMutatePool(a *app.App, j json.RawMessage) (*MutatePool, error) {
	var args MutatePoolArgs
	if len(j) > 0 {
		if err := json.Unmarshal(j, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if args.Op == nil {
		args.Op = defaultOps
	}
	if args.MaxWeight == 0 {
		args.MaxWeight = 100
	}

	opPick, err := newChoice(a, "mutate_pool/op", args.Op)
	if err != nil {
		return nil, fmt.Errorf("op choice: %w", err)
	}

	var runFilters []repos.Filter
	runFilters = append(runFilters, a.RunFilters...)
	if args.RawRunFilter != "" {
		runFilters = append(runFilters, repos.RawFilter(args.RawRunFilter))
	}

	return &MutatePool{
		args:       args,
		runFilters: runFilters,
		runRepo:    a.Repo.Run,
		trialRepo:  a.Repo.Trial,
		register:   a.Register,
		node:       a.Config.Node,
		runLocker:  a.RunLocker,
		runs:       a.Runs,
		catalog:    a.Catalog,
		opPick:     opPick,
	}, nil
}

func (r *MutatePool) Execute(ctx context.Context) error {
	runs, err := r.runRepo.FindRandomRuns(r.runFilters, 1)
	if err != nil {
		return fmt.Errorf("failed to find random runs: %w", err)
	}

	for _, run := range runs {
		op, _ := r.opPick.Draw()
		r.startExecuteRun(ctx, run, op)
	}

	return nil
}

func (r *MutatePool) startExecuteRun(ctx context.Context, run models.Run, op string) {
	ctx = log.With(ctx, zap.Uint("runID", run.ID))
	ctx = log.With(ctx, zap.String("op", op))

	r.register.Go(func() {
		err := r.executeForRun(ctx, run, op)
		if err == ErrRunLocked {
			return
		}
		if err != nil {
			app.TrialFailures.WithLabelValues(string(rdesc.ActMutatePool)).Inc()
			log.Error(ctx, "failed to mutate pool", zap.Error(err))
		}
	})
}

func (r *MutatePool) executeForRun(ctx context.Context, run models.Run, op string) error {
	runLock := r.runLocker.Get(run.ID)

	unlock := runLock.TryExclusiveLock()
	if unlock == nil {
		return ErrRunLocked
	}
	defer unlock()

	if runLock.Deleted.Load() {
		return nil
	}

	live, err := r.runs.Get(&run)
	if err != nil {
		return fmt.Errorf("failed to build live run: %w", err)
	}
	app.LiveRuns.Set(float64(r.runs.Len()))

	saver := repos.NewTrialSaver(r.trialRepo, repos.TrialSaverArgs{
		RunID: &run.ID,
		Node:  &r.node,
	})

	request, response, opErr := r.applyOp(live, op)
	if opErr == nil {
		opErr = live.Verify()
	}

	trial := startTrial(models.TrialMutate, "", op, request)
	finishTrial(trial, response, opErr)
	err = saveTrial(saver, trial, opErr)

	items, merr := json.Marshal(live.Items())
	if merr == nil {
		merr = r.runRepo.UpdateItems(&run, items, live.TotalWeight())
	}
	if merr == nil {
		merr = r.runRepo.AddCounters(&run, 0, 1)
	}
	if merr != nil {
		log.Error(ctx, "failed to persist mutation", zap.Error(merr))
	}

	return err
}

// applyOp mutates the live pool and returns the request and response
// payloads for the trial row. Element names and weights come from the
// process-wide generator, only draws need the seeded streams.
func (r *MutatePool) applyOp(live *engine.LiveRun, op string) (string, string, error) {
	switch op {
	case opInsert:
		// Collisions with an existing joker are rare but legal, they
		// exercise the duplicate-element path.
		elem := fmt.Sprintf("joker-%04d", rand.Intn(10000))
		weight := uint64(rand.Int63n(int64(r.args.MaxWeight) + 1))
		req, _ := json.Marshal(map[string]any{"elem": elem, "weight": weight})

		ok, err := live.Insert(elem, weight)
		if err != nil {
			return string(req), "", err
		}
		resp, _ := json.Marshal(map[string]any{"inserted": ok})
		return string(req), string(resp), nil

	case opErase:
		items := live.Items()
		if len(items) == 0 {
			req, _ := json.Marshal(map[string]any{"skipped": "empty pool"})
			return string(req), "{}", nil
		}
		elem := items[rand.Intn(len(items))].Elem
		req, _ := json.Marshal(map[string]any{"elem": elem})

		weight, ok, err := live.Erase(elem)
		if err != nil {
			return string(req), "", err
		}
		resp, _ := json.Marshal(map[string]any{"erased": ok, "weight": weight})
		return string(req), string(resp), nil

	case opModify:
		items := live.Items()
		if len(items) == 0 {
			req, _ := json.Marshal(map[string]any{"skipped": "empty pool"})
			return string(req), "{}", nil
		}
		elem := items[rand.Intn(len(items))].Elem
		weight := uint64(rand.Int63n(int64(r.args.MaxWeight) + 1))
		req, _ := json.Marshal(map[string]any{"elem": elem, "weight": weight})

		prev, ok, err := live.Modify(elem, weight)
		if err != nil {
			return string(req), "", err
		}
		resp, _ := json.Marshal(map[string]any{"modified": ok, "prevWeight": prev})
		return string(req), string(resp), nil

	case opClearRefill:
		refill := live.Items()
		if pool := r.catalog.PoolByName(live.Pool); pool != nil {
			refill = pool.Items
		}
		req, _ := json.Marshal(map[string]any{"refill": len(refill)})

		live.Clear()
		for _, item := range refill {
			if _, err := live.Insert(item.Elem, item.Weight); err != nil {
				return string(req), "", err
			}
		}
		resp, _ := json.Marshal(map[string]any{"totalWeight": live.TotalWeight()})
		return string(req), string(resp), nil

	default:
		return "{}", "", fmt.Errorf("unknown op: %s", op)
	}
}
