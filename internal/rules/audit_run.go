package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/bgjobs"
	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/internal/labapi"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
	"github.com/petuhovskiy/rollodrome/internal/repos"
	"github.com/petuhovskiy/rollodrome/internal/runcache"
)

// Drift above this gets a warning. The audit compares frequencies
// aggregated across trials against the current weights only, mutations
// between those trials shift the target. It is a drift radar, the
// per-burst chi-square in draw trials is the precise check.
const auditDriftWarn = 0.25

// Rule to aggregate a run's recent draw trials into a frequency digest
// and optionally report it to the lab.
type AuditRun struct {
	args       AuditRunArgs
	runFilters []repos.Filter
	runRepo    *repos.RunRepo
	trialRepo  *repos.TrialRepo
	register   *bgjobs.Register
	node       string
	runLocker  *bgjobs.RunLocker
	runs       *runcache.Cache
	lab        *labapi.Client
}

type AuditRunArgs struct {
	// Trials is how many recent trials to read back, draw trials among
	// them get aggregated.
	Trials       int
	RawRunFilter string
}

func NewAuditRun(a *app.App, j json.RawMessage) (*AuditRun, error) {
	var args AuditRunArgs
	if len(j) > 0 {
		if err := json.Unmarshal(j, &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if args.Trials == 0 {
		args.Trials = 50
	}

	var runFilters []repos.Filter
	runFilters = append(runFilters, a.RunFilters...)
	if args.RawRunFilter != "" {
		runFilters = append(runFilters, repos.RawFilter(args.RawRunFilter))
	}

	return &AuditRun{
		args:       args,
		runFilters: runFilters,
		runRepo:    a.Repo.Run,
		trialRepo:  a.Repo.Trial,
		register:   a.Register,
		node:       a.Config.Node,
		runLocker:  a.RunLocker,
		runs:       a.Runs,
		lab:        a.Lab,
	}, nil
}

func (r *AuditRun) Execute(ctx context.Context) error {
	runs, err := r.runRepo.FindRandomRuns(r.runFilters, 1)
	if err != nil {
		return fmt.Errorf("failed to find random runs: %w", err)
	}

	for _, run := range runs {
		r.startExecuteRun(ctx, run)
	}

	return nil
}

func (r *AuditRun) startExecuteRun(ctx context.Context, run models.Run) {
	ctx = log.With(ctx, zap.Uint("runID", run.ID))

	r.register.Go(func() {
		err := r.executeForRun(ctx, run)
		if err == ErrRunLocked {
			return
		}
		if err != nil {
			app.TrialFailures.WithLabelValues(string(rdesc.ActAuditRun)).Inc()
			log.Error(ctx, "failed to audit run", zap.Error(err))
		}
	})
}

func (r *AuditRun) executeForRun(ctx context.Context, run models.Run) error {
	runLock := r.runLocker.Get(run.ID)

	// The audit only reads, the shared lock keeps mutations and trims
	// out without blocking other audits.
	unlock := runLock.TrySharedLock()
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

	trials, err := r.trialRepo.FetchLastTrials(run.ID, r.args.Trials)
	if err != nil {
		return fmt.Errorf("failed to fetch trials: %w", err)
	}

	report := r.digest(ctx, &run, live, trials)
	if report.Draws == 0 {
		log.Debug(ctx, "nothing to audit")
		return nil
	}

	log.Info(ctx, "audited run",
		zap.String("pool", run.PoolName),
		zap.Int("trials", report.Trials),
		zap.Uint64("draws", report.Draws),
		zap.Float64("maxDrift", report.MaxDrift),
	)
	if report.MaxDrift > auditDriftWarn {
		log.Warn(ctx, "draw frequencies drifted", zap.Float64("maxDrift", report.MaxDrift))
	}

	if r.lab == nil {
		return nil
	}

	prep, err := r.lab.ReportAudit(report)
	if err != nil {
		return fmt.Errorf("failed to prepare audit report: %w", err)
	}

	saver := repos.NewTrialSaver(r.trialRepo, repos.TrialSaverArgs{
		RunID: &run.ID,
		Node:  &r.node,
	})

	resp, err := reportAPI(ctx, prep, saver)
	if err != nil {
		return fmt.Errorf("failed to report audit: %w", err)
	}

	log.Info(ctx, "audit accepted by lab",
		zap.String("auditID", resp.Audit.ID),
		zap.Bool("accepted", resp.Audit.Accepted),
	)
	return nil
}

// digest folds the run's recent draw trials into one frequency report
// against the current weights.
func (r *AuditRun) digest(ctx context.Context, run *models.Run, live *engine.LiveRun, trials []models.Trial) *labapi.AuditReport {
	counts := make(map[string]uint64)
	report := &labapi.AuditReport{
		Node:     r.node,
		RunID:    run.ID,
		RunToken: run.Token,
		Pool:     run.PoolName,
		Seed:     run.Seed,
		Expected: make(map[string]float64),
		Observed: make(map[string]float64),
	}

	for _, trial := range trials {
		if trial.Kind != models.TrialDraw || !trial.IsFinished || trial.IsFailed {
			continue
		}

		var summary burstSummary
		if err := json.Unmarshal([]byte(trial.Response), &summary); err != nil {
			log.Warn(ctx, "skipping unreadable trial response",
				zap.Uint("trialID", trial.ID), zap.Error(err))
			continue
		}

		report.Trials++
		for _, round := range summary.Rounds {
			for elem, n := range round.Histogram {
				counts[elem] += n
				report.Draws += n
			}
		}
	}

	if report.Draws == 0 {
		return report
	}

	var total uint64
	items := live.Items()
	for _, item := range items {
		total += item.Weight
	}
	for _, item := range items {
		if item.Weight == 0 || total == 0 {
			continue
		}
		report.Expected[item.Elem] = float64(item.Weight) / float64(total)
	}
	for elem, n := range counts {
		report.Observed[elem] = float64(n) / float64(report.Draws)
	}

	for elem, expected := range report.Expected {
		drift := math.Abs(report.Observed[elem] - expected)
		report.MaxDrift = math.Max(report.MaxDrift, drift)
	}
	for elem, observed := range report.Observed {
		if _, ok := report.Expected[elem]; !ok {
			report.MaxDrift = math.Max(report.MaxDrift, observed)
		}
	}

	return report
}
