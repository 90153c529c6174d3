package models

// Sequence is a named atomic counter. Rows are managed with raw queries
// in repos.SequenceRepo.
type Sequence struct {
	ID  uint   `gorm:"primarykey"`
	Key string `gorm:"uniqueIndex"`
	Val uint
}
