package rules

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/labapi"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/repos"
)

func reportAPI[T any](ctx context.Context, prep *labapi.Prepared[T], saver *repos.TrialSaver) (*T, error) {
	dbTrial := prep.Trial()
	err := saver.Save(dbTrial)
	if err != nil {
		return nil, fmt.Errorf("failed to persist trial: %w", err)
	}

	resp, result, err := prep.Do(ctx)
	dbErr := saver.FinishSaveResult(dbTrial, result)

	// 1. save response to the database
	if dbErr != nil {
		log.Error(ctx, "failed to persist trial result", zap.Error(dbErr))
		if err == nil {
			err = dbErr
		} else {
			err = errors.Join(err, dbErr)
		}
	}

	// 2. return
	return resp, err
}
