package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Run is a single weighted set instantiated from a catalog pool and kept
// under randomized load.
type Run struct {
	gorm.Model

	// Taken from `NODE` environment variable of the creating node.
	Node string

	// PoolName is the catalog pool the run was instantiated from.
	PoolName string

	// Seed of the run's generators, derived from the node master seed.
	Seed uint64

	// Token is an external correlation id.
	Token string

	// Items is the json snapshot of the pool as mutated, in insertion
	// order. Updated after every persisted mutation.
	Items json.RawMessage `gorm:"type:jsonb"`

	// TotalWeight as of the last persisted snapshot.
	TotalWeight uint64

	// Cumulative counters. In-memory generator position is lost on
	// restart, these keep the statistics going across restarts.
	Draws     uint64
	Mutations uint64
}
