package repos

import "github.com/petuhovskiy/rollodrome/internal/models"

type TrialSaverArgs struct {
	RunID *uint
	Node  *string
}

func (a *TrialSaverArgs) Apply(t *models.Trial) {
	if t.RunID == nil {
		t.RunID = a.RunID
	}
	if t.Node == "" && a.Node != nil {
		t.Node = *a.Node
	}
}

// TrialSaver modifies and saves trials.
type TrialSaver struct {
	repo *TrialRepo
	args TrialSaverArgs
}

func NewTrialSaver(repo *TrialRepo, args TrialSaverArgs) *TrialSaver {
	return &TrialSaver{
		repo: repo,
		args: args,
	}
}

func (s *TrialSaver) Save(trial *models.Trial) error {
	s.args.Apply(trial)
	return s.repo.Save(trial)
}

func (s *TrialSaver) FinishSaveResult(trial *models.Trial, upd *models.TrialResult) error {
	return s.repo.FinishSaveResult(trial, upd)
}
