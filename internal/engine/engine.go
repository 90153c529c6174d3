// Package engine holds the two draw engines a live run is certified
// with: the wrand library under certification and an independent
// linear-scan mirror. Both are driven with the same seed, so any
// divergence between them is an invariant violation.
package engine

import (
	"time"

	"github.com/petuhovskiy/rollodrome/wrand"
)

// Engine is one way to hold a weighted set and draw from it.
type Engine interface {
	Name() Name
	Draw() (string, bool)
	Insert(elem string, weight uint64) bool
	Erase(elem string) (uint64, bool)
	Modify(elem string, weight uint64) (uint64, bool)
	Clear()
	TotalWeight() uint64
	Items() []wrand.Item[string]
	// Warm reports whether the next draw pays no index rebuild.
	Warm() bool
}

// BurstResult is the outcome of a verified draw burst.
type BurstResult struct {
	// Elements in draw order, as produced by the engines.
	Elements []string
	// Histogram of drawn elements.
	Histogram map[string]uint64
	// Warm is true if the indexed engine started with a fresh index.
	Warm bool
	// Took is the wall time each engine spent on the burst.
	Took map[Name]time.Duration
}
