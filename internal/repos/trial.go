package repos

import (
	"gorm.io/gorm"

	"github.com/petuhovskiy/rollodrome/internal/models"
)

type TrialRepo struct {
	db *gorm.DB
}

func NewTrialRepo(db *gorm.DB) *TrialRepo {
	return &TrialRepo{
		db: db,
	}
}

// Save trial to the database.
func (r *TrialRepo) Save(trial *models.Trial) error {
	return r.db.Save(trial).Error
}

// Update result fields after the trial was finished.
func (r *TrialRepo) FinishSaveResult(trial *models.Trial, upd *models.TrialResult) error {
	return r.db.Model(trial).Updates(upd).Error
}

func (r *TrialRepo) FetchLastTrials(runID uint, limit int) ([]models.Trial, error) {
	var trials []models.Trial
	err := r.db.
		Where("run_id = ?", runID).
		Order("id DESC").
		Limit(limit).
		Find(&trials).
		Error

	return trials, err
}
