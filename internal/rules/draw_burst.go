package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/bgjobs"
	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
	"github.com/petuhovskiy/rollodrome/internal/repos"
	"github.com/petuhovskiy/rollodrome/internal/runcache"
	"github.com/petuhovskiy/rollodrome/wrand"
)

var ErrConcurrencyLimit = fmt.Errorf("concurrency limit reached")
var ErrRunLocked = fmt.Errorf("run locked")

// Rule to run verified draw bursts against random runs.
type DrawBurst struct {
	args       DrawBurstArgs
	runFilters []repos.Filter
	runRepo    *repos.RunRepo
	trialRepo  *repos.TrialRepo
	register   *bgjobs.Register
	node       string
	runLocker  *bgjobs.RunLocker
	runs       *runcache.Cache
	scenario   burstScenario

	// Weighted choices for this rule, made with the library itself. A
	// Set is not safe for concurrent use, so draws from these happen on
	// the rule goroutine only, before work is handed to the register.
	creditPick *wrand.Set[engine.Name]
	batchPick  *wrand.Set[uint64]

	nowRunning atomic.Int64
}

type DrawBurstArgs struct {
	ConcurrencyLimit int
	Scenario         string
	// Credit is the weighted choice of the engine credited with the
	// burst in trials and metrics. Both engines always run.
	Credit []wrand.Item[engine.Name]
	// Batch is the weighted choice of the burst size.
	Batch         []wrand.Item[uint64]
	MaxRandomRuns uint
	RawRunFilter  string
}

var defaultCredit = []wrand.Item[engine.Name]{
	{Elem: engine.Indexed, Weight: 3},
	{Elem: engine.Mirror, Weight: 1},
}

var defaultBatch = []wrand.Item[uint64]{
	{Elem: 16, Weight: 4},
	{Elem: 64, Weight: 2},
	{Elem: 256, Weight: 1},
}

func NewDrawBurst(a *app.App, j json.RawMessage) (*DrawBurst, error) {
	var args DrawBurstArgs
	if len(j) > 0 {
		if err := json.Unmarshal(j, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if args.Scenario == "" {
		args.Scenario = "steady"
	}
	if args.Credit == nil {
		args.Credit = defaultCredit
	}
	if args.Batch == nil {
		args.Batch = defaultBatch
	}
	if args.MaxRandomRuns < 1 {
		args.MaxRandomRuns = 1
	}

	scenario, err := getScenario(args.Scenario)
	if err != nil {
		return nil, err
	}

	creditPick, err := newChoice(a, "draw_burst/"+args.Scenario+"/credit", args.Credit)
	if err != nil {
		return nil, fmt.Errorf("credit choice: %w", err)
	}
	batchPick, err := newChoice(a, "draw_burst/"+args.Scenario+"/batch", args.Batch)
	if err != nil {
		return nil, fmt.Errorf("batch choice: %w", err)
	}

	var runFilters []repos.Filter
	runFilters = append(runFilters, a.RunFilters...)
	if args.RawRunFilter != "" {
		runFilters = append(runFilters, repos.RawFilter(args.RawRunFilter))
	}

	return &DrawBurst{
		args:       args,
		runFilters: runFilters,
		runRepo:    a.Repo.Run,
		trialRepo:  a.Repo.Trial,
		register:   a.Register,
		node:       a.Config.Node,
		runLocker:  a.RunLocker,
		runs:       a.Runs,
		scenario:   scenario,
		creditPick: creditPick,
		batchPick:  batchPick,
	}, nil
}

// newChoice builds a weighted choice from rule args, seeded from the
// master seed so two nodes with the same seed pick identically.
func newChoice[E comparable](a *app.App, key string, items []wrand.Item[E]) (*wrand.Set[E], error) {
	set, err := wrand.NewFromItems(app.DeriveSeed(a.Seed, key), items)
	if err != nil {
		return nil, err
	}
	if set.TotalWeight() == 0 {
		return nil, fmt.Errorf("no positive weights")
	}
	return set, nil
}

func (r *DrawBurst) Execute(ctx context.Context) error {
	runs, err := r.runRepo.FindRandomRuns(r.runFilters, int(r.args.MaxRandomRuns))
	if err != nil {
		return fmt.Errorf("failed to find random runs: %w", err)
	}

	for _, run := range runs {
		// Total weights were validated at construction, the picks can
		// not come back empty.
		credit, _ := r.creditPick.Draw()
		batch, _ := r.batchPick.Draw()
		r.startExecuteRun(ctx, run, credit, int(batch))
	}

	return nil
}

func (r *DrawBurst) startExecuteRun(ctx context.Context, run models.Run, credit engine.Name, batch int) {
	ctx = log.With(ctx, zap.Uint("runID", run.ID))
	ctx = log.With(ctx, zap.String("scenario", r.args.Scenario))

	r.register.Go(func() {
		err := r.executeForRun(ctx, run, credit, batch)
		if err == ErrConcurrencyLimit || err == ErrRunLocked {
			err = nil
		}
		if err != nil {
			app.TrialFailures.WithLabelValues(string(rdesc.ActDrawBurst)).Inc()
			log.Error(ctx, "failed to execute burst", zap.Error(err))
		}
	})
}

// Execute one burst scenario against a single run.
func (r *DrawBurst) executeForRun(ctx context.Context, run models.Run, credit engine.Name, batch int) error {
	runLock := r.runLocker.Get(run.ID)

	// Draws advance generator state on both engines, so a burst takes
	// the exclusive lock even though it looks like a read.
	unlock := runLock.TryExclusiveLock()
	if unlock == nil {
		return ErrRunLocked
	}
	defer unlock()

	if runLock.Deleted.Load() {
		return nil
	}

	// run lock is taken now

	// checking concurrency level
	atmc := r.nowRunning.Add(1)
	defer r.nowRunning.Add(-1)

	if r.args.ConcurrencyLimit > 0 && atmc > int64(r.args.ConcurrencyLimit) {
		return ErrConcurrencyLimit
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

	request, _ := json.Marshal(burstRequest{
		Scenario: r.args.Scenario,
		Batch:    batch,
		Credit:   credit,
	})
	trial := startTrial(models.TrialDraw, string(credit), r.args.Scenario, string(request))

	outcome, err := r.scenario.execute(ctx, burstParams{live: live, batch: batch})
	if err == nil {
		err = live.Verify()
	}

	summary := summarize(ctx, r.args.Scenario, outcome, credit)

	var response []byte
	if summary != nil {
		response, _ = json.Marshal(summary)
		if len(summary.Rounds) > 0 {
			trial.Warm = summary.Rounds[0].Warm
		}
	}
	finishTrial(trial, string(response), err)
	err = saveTrial(saver, trial, err)

	if outcome != nil {
		r.persistOutcome(ctx, &run, live, saver, outcome, credit)
	}

	return err
}

// Record counters, metrics and any scenario-made mutations after the
// trial row itself was written. Persistence failures here are logged,
// not escalated: the burst already happened.
func (r *DrawBurst) persistOutcome(
	ctx context.Context,
	run *models.Run,
	live *engine.LiveRun,
	saver *repos.TrialSaver,
	outcome *burstOutcome,
	credit engine.Name,
) {
	var draws uint64
	var took time.Duration
	for _, phase := range outcome.phases {
		draws += uint64(len(phase.res.Elements))
		took += phase.res.Took[credit]
	}

	app.DrawsTotal.WithLabelValues(run.PoolName).Add(float64(draws))
	app.DrawBatchSeconds.WithLabelValues(run.PoolName, string(credit)).Observe(took.Seconds())

	for _, elem := range outcome.erased {
		request, _ := json.Marshal(map[string]string{"elem": elem})
		mt := startTrial(models.TrialMutate, string(credit), "drain-erase", string(request))
		finishTrial(mt, "", nil)
		if err := saveTrial(saver, mt, nil); err != nil {
			log.Error(ctx, "failed to persist drain mutation", zap.Error(err))
		}
	}

	if len(outcome.erased) > 0 {
		items, err := json.Marshal(live.Items())
		if err == nil {
			err = r.runRepo.UpdateItems(run, items, live.TotalWeight())
		}
		if err != nil {
			log.Error(ctx, "failed to persist items snapshot", zap.Error(err))
		}
	}

	if err := r.runRepo.AddCounters(run, draws, uint64(len(outcome.erased))); err != nil {
		log.Error(ctx, "failed to update run counters", zap.Error(err))
	}
}

type burstRequest struct {
	Scenario string      `json:"scenario"`
	Batch    int         `json:"batch"`
	Credit   engine.Name `json:"credit"`
}

// burstSummary is the trial response for draw trials. Audits re-read it
// from the database, so the format is part of the node's contract with
// itself.
type burstSummary struct {
	Scenario string         `json:"scenario"`
	Draws    uint64         `json:"draws"`
	Rounds   []roundSummary `json:"rounds"`
	Erased   []string       `json:"erased,omitempty"`
}

type roundSummary struct {
	Count     int               `json:"count"`
	Histogram map[string]uint64 `json:"histogram"`
	Warm      bool              `json:"warm"`
	// ChiSquare against the weights in effect during the round. A draw
	// the weights make impossible is recorded as -1, JSON has no Inf.
	ChiSquare float64 `json:"chi_square"`
	Df        int     `json:"df"`
	Suspect   bool    `json:"suspect"`
	// Burst wall time per engine, in milliseconds.
	TookMs map[string]float64 `json:"took_ms"`
}

func summarize(ctx context.Context, scenario string, outcome *burstOutcome, credit engine.Name) *burstSummary {
	if outcome == nil {
		return nil
	}

	s := &burstSummary{
		Scenario: scenario,
		Erased:   outcome.erased,
	}
	for i, phase := range outcome.phases {
		stat, df := chiSquare(phase.res.Histogram, phase.items)

		rs := roundSummary{
			Count:     len(phase.res.Elements),
			Histogram: phase.res.Histogram,
			Warm:      phase.res.Warm,
			ChiSquare: stat,
			Df:        df,
			Suspect:   chiSquareSuspect(stat, df),
			TookMs:    make(map[string]float64, len(phase.res.Took)),
		}
		if math.IsInf(stat, 1) {
			rs.ChiSquare = -1
		}
		for name, d := range phase.res.Took {
			rs.TookMs[string(name)] = float64(d.Microseconds()) / 1000.0
		}

		if rs.Suspect {
			log.Warn(ctx, "suspicious draw histogram",
				zap.Int("round", i),
				zap.Float64("chiSquare", rs.ChiSquare),
				zap.Int("df", df),
				zap.String("credit", string(credit)),
			)
		}

		s.Draws += uint64(rs.Count)
		s.Rounds = append(s.Rounds, rs)
	}
	return s
}
