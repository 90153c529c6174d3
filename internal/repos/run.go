package repos

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/petuhovskiy/rollodrome/internal/models"
)

type RunRepo struct {
	db *gorm.DB
}

func NewRunRepo(db *gorm.DB) *RunRepo {
	return &RunRepo{
		db: db,
	}
}

// FindLastCreated returns the last run created in the pool by the node.
// May return deleted runs.
func (r *RunRepo) FindLastCreated(poolName string, node string) (*models.Run, error) {
	var runs []models.Run
	err := r.db.
		Unscoped().
		Where("pool_name = ?", poolName).
		Where("node = ?", node).
		Order("created_at DESC").
		Limit(1).
		Find(&runs).
		Error
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (r *RunRepo) Create(run *models.Run) error {
	return r.db.Create(run).Error
}

func (r *RunRepo) FindAllByPool(poolName string, node string) ([]models.Run, error) {
	var runs []models.Run

	db := FilterByPool(poolName).Apply(r.db)
	db = FilterByNode(node).Apply(db)

	err := db.Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RunRepo) Delete(run *models.Run) error {
	return r.db.Delete(run).Error
}

func (r *RunRepo) FindRandomRuns(filters []Filter, n int) ([]models.Run, error) {
	// TODO: optimize this, https://stackoverflow.com/questions/8674718/best-way-to-select-random-rows-postgresql

	var runs []models.Run

	db := r.db
	for _, filter := range filters {
		db = filter.Apply(db)
	}

	err := db.
		Order("RANDOM()").
		Limit(n).
		Find(&runs).
		Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// AddCounters increments the cumulative draw/mutation counters.
func (r *RunRepo) AddCounters(run *models.Run, draws uint64, mutations uint64) error {
	return r.db.Model(run).Updates(map[string]any{
		"draws":     gorm.Expr("draws + ?", draws),
		"mutations": gorm.Expr("mutations + ?", mutations),
	}).Error
}

// UpdateItems persists a new pool snapshot after a mutation.
func (r *RunRepo) UpdateItems(run *models.Run, items json.RawMessage, totalWeight uint64) error {
	return r.db.Model(run).Updates(map[string]any{
		"items":        items,
		"total_weight": totalWeight,
	}).Error
}
