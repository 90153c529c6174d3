package repos

import (
	"fmt"

	"gorm.io/gorm"
)

// SequenceRepo hands out named counters backed by the sequences table.
// Each node keeps its own run counter, keyed by the node name.
type SequenceRepo struct {
	db *gorm.DB
}

func NewSequenceRepo(db *gorm.DB) *SequenceRepo {
	return &SequenceRepo{
		db: db,
	}
}

// Get returns the sequence with the given key, creating the row if needed.
func (r *SequenceRepo) Get(key string) (*Sequence, error) {
	// insert if not exists
	err := r.db.
		Exec("INSERT INTO sequences (key, val) VALUES (?, 0) ON CONFLICT DO NOTHING", key).
		Error
	if err != nil {
		return nil, fmt.Errorf("create sequence %s: %w", key, err)
	}

	return &Sequence{
		db:  r.db,
		key: key,
	}, nil
}

// Sequence hands out fleet-unique numbers for one key. Run seeds are
// derived from these, so a number must never be reissued.
type Sequence struct {
	db  *gorm.DB
	key string
}

// Next increments the counter and returns the new value. The increment
// happens in the database, so it survives node restarts.
func (s *Sequence) Next() (uint, error) {
	var val uint
	err := s.db.
		Raw("UPDATE sequences SET val = val + 1 WHERE key = ? RETURNING val", s.key).
		Scan(&val).
		Error
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", s.key, err)
	}
	return val, nil
}
