package rules

import (
	"errors"
	"time"

	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/repos"
)

func startTrial(kind models.TrialKind, engineName string, method string, request string) *models.Trial {
	now := time.Now()
	return &models.Trial{
		Kind:    kind,
		Engine:  engineName,
		Method:  method,
		Request: request,
		TrialResult: models.TrialResult{
			StartedAt: &now,
		},
	}
}

func finishTrial(trial *models.Trial, response string, err error) {
	if trial.Response == "" {
		trial.Response = response
	}

	if err != nil && !trial.IsFailed {
		trial.IsFailed = true
		trial.Error = err.Error()
	}

	trial.IsFinished = true
	if trial.FinishedAt == nil && trial.StartedAt != nil {
		now := time.Now()
		trial.FinishedAt = &now
	}

	if trial.Duration == nil && trial.StartedAt != nil && trial.FinishedAt != nil {
		duration := trial.FinishedAt.Sub(*trial.StartedAt)
		trial.Duration = &duration
	}
}

// Saves a finished trial. Returns the combined error from saver and trialErr.
func saveTrial(saver *repos.TrialSaver, trial *models.Trial, trialErr error) (retErr error) {
	retErr = trialErr
	if err := saver.Save(trial); err != nil {
		if retErr == nil {
			retErr = err
		} else {
			retErr = errors.Join(retErr, err)
		}
	}

	return retErr
}
