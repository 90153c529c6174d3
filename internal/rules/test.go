package rules

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/repos"
)

var defaultMatrix = []string{"runs.pool_name"}

type TestRule struct {
	runFilters []repos.Filter
	runRepo    *repos.RunRepo
	matrix     []string
}

func NewTestRule(a *app.App, _ json.RawMessage) (*TestRule, error) {
	return &TestRule{
		runRepo:    a.Repo.Run,
		runFilters: a.RunFilters,
		matrix:     defaultMatrix,
	}, nil
}

func (r *TestRule) Execute(ctx context.Context) error {
	r1, err := r.runRepo.FindRandomRuns(r.runFilters, 1)
	if err != nil {
		return err
	}

	if len(r1) != 1 {
		log.Info(ctx, "no runs found")
		return nil
	}

	run := r1[0]
	log.Info(ctx, "test rule", zap.Any("run", run))

	filters, err := repos.MatrixFilters(&run, r.matrix)
	if err != nil {
		return err
	}
	filters = append(filters, r.runFilters...)

	const randomNumber = 5
	runs, err := r.runRepo.FindRandomRuns(filters, randomNumber)
	if err != nil {
		return err
	}

	log.Info(ctx, "selected random", zap.Any("runs", runs), zap.Any("matrix", r.matrix))
	return nil
}
