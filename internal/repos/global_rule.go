package repos

import (
	"fmt"

	"github.com/petuhovskiy/rollodrome/internal/models"
	"gorm.io/gorm"
)

type GlobalRuleRepo struct {
	db *gorm.DB
}

func NewGlobalRuleRepo(db *gorm.DB) *GlobalRuleRepo {
	return &GlobalRuleRepo{
		db: db,
	}
}

// ForNode returns enabled rules visible to the given node, in priority order.
// An empty node_selector makes a rule fleet-wide.
func (r *GlobalRuleRepo) ForNode(node string) ([]models.GlobalRule, error) {
	var rules []models.GlobalRule
	err := r.db.
		Where("enabled = ?", true).
		Where("node_selector = '' OR node_selector = ?", node).
		Order("priority ASC").
		Find(&rules).
		Error
	if err != nil {
		return nil, fmt.Errorf("find global rules for node %s: %w", node, err)
	}
	return rules, nil
}
