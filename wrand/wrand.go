// Package wrand implements a weighted random selection container.
//
// A Set stores unique elements, each with a non-negative integer weight.
// Drawing returns an element with probability weight/totalWeight. Elements
// with zero weight stay in the set but are never drawn.
//
// Every Set owns its generator state, seeded at construction, so two sets
// built with the same seed and mutated the same way produce identical draw
// sequences. A Set is not safe for concurrent use; callers sharing one
// across goroutines must serialize all access externally.
package wrand

import (
	"fmt"
	"sort"

	"golang.org/x/exp/rand"
)

var ErrDuplicateElement = fmt.Errorf("duplicate element")

// Item is an element with its weight. Pools can be declared in JSON or
// YAML configs as lists of items.
type Item[E comparable] struct {
	Elem   E      `json:"elem" yaml:"elem"`
	Weight uint64 `json:"weight" yaml:"weight"`
}

// Set is a weighted random selection container over elements of type E.
//
// Elements partition [1, totalWeight] into consecutive ranges, in insertion
// order, each as wide as its weight. Draw maps a uniform integer from that
// interval to the element owning it. The partition is kept as prefix sums
// and searched in O(log n). Mutations only mark the index stale; it is
// rebuilt as a whole on the next Draw or Refresh, so per-element range
// bounds never drift out of sync with the weights.
type Set[E comparable] struct {
	weights map[E]uint64
	order   []E

	// Cumulative index over elements with non-zero weight.
	elems []E
	cum   []uint64

	total uint64
	stale bool

	rng *rand.Rand
}

// New returns an empty set owning a generator seeded with seed.
func New[E comparable](seed uint64) *Set[E] {
	return &Set[E]{
		weights: make(map[E]uint64),
		stale:   true,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// NewFromItems builds a set from a list of items.
func NewFromItems[E comparable](seed uint64, items []Item[E]) (*Set[E], error) {
	s := New[E](seed)
	for _, item := range items {
		if !s.Insert(item.Elem, item.Weight) {
			return nil, fmt.Errorf("element %v: %w", item.Elem, ErrDuplicateElement)
		}
	}
	return s, nil
}

// Seed replaces the generator state. Elements and weights are untouched.
func (s *Set[E]) Seed(seed uint64) {
	s.rng.Seed(seed)
}

// Insert adds an element with the given weight. Returns false without
// modifying the set if the element is already present. Zero weight is
// legal: the element is stored but can never be drawn.
func (s *Set[E]) Insert(elem E, weight uint64) bool {
	if _, ok := s.weights[elem]; ok {
		return false
	}
	s.weights[elem] = weight
	s.order = append(s.order, elem)
	s.total += weight
	s.stale = true
	return true
}

// Erase removes an element and returns its weight, or ok=false if the
// element is not present.
func (s *Set[E]) Erase(elem E) (uint64, bool) {
	w, ok := s.weights[elem]
	if !ok {
		return 0, false
	}
	delete(s.weights, elem)
	for i, e := range s.order {
		if e == elem {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.total -= w
	s.stale = true
	return w, true
}

// Modify replaces the weight of an existing element and returns the
// previous weight, or ok=false if the element is not present.
func (s *Set[E]) Modify(elem E, weight uint64) (uint64, bool) {
	old, ok := s.weights[elem]
	if !ok {
		return 0, false
	}
	s.weights[elem] = weight
	s.total = s.total - old + weight
	s.stale = true
	return old, true
}

// Clear removes all elements and resets the total weight to zero.
func (s *Set[E]) Clear() {
	s.weights = make(map[E]uint64)
	s.order = nil
	s.elems = nil
	s.cum = nil
	s.total = 0
	s.stale = true
}

// Refresh rebuilds the cumulative index from the current weights. Draw
// calls it automatically after any mutation; it is exported so callers
// can choose when to pay for the rebuild.
func (s *Set[E]) Refresh() {
	s.elems = s.elems[:0]
	s.cum = s.cum[:0]

	var running uint64
	for _, e := range s.order {
		w := s.weights[e]
		if w == 0 {
			continue
		}
		running += w
		s.elems = append(s.elems, e)
		s.cum = append(s.cum, running)
	}
	s.stale = false
}

// Len returns the number of stored elements, including zero-weight ones.
func (s *Set[E]) Len() int {
	return len(s.weights)
}

// Empty reports whether the set has no elements.
func (s *Set[E]) Empty() bool {
	return len(s.weights) == 0
}

// TotalWeight returns the sum of all stored weights.
func (s *Set[E]) TotalWeight() uint64 {
	return s.total
}

// Contains reports whether the element is present.
func (s *Set[E]) Contains(elem E) bool {
	_, ok := s.weights[elem]
	return ok
}

// Weight returns the weight of the element, or ok=false if the element is
// not present.
func (s *Set[E]) Weight(elem E) (uint64, bool) {
	w, ok := s.weights[elem]
	return w, ok
}

// Probability returns weight/totalWeight for the element. Returns ok=false
// if the element is not present or the total weight is zero.
func (s *Set[E]) Probability(elem E) (float64, bool) {
	w, ok := s.weights[elem]
	if !ok || s.total == 0 {
		return 0, false
	}
	return float64(w) / float64(s.total), true
}

// Stale reports whether the cumulative index is out of date with respect
// to the stored weights. The next Draw will rebuild it.
func (s *Set[E]) Stale() bool {
	return s.stale
}

// Draw returns a random element, weighted by the stored weights. Returns
// ok=false only when the set is empty or all weights are zero.
func (s *Set[E]) Draw() (E, bool) {
	if s.stale {
		s.Refresh()
	}

	var zero E
	if s.total == 0 {
		return zero, false
	}

	r := s.rng.Uint64n(s.total) + 1
	i := sort.Search(len(s.cum), func(i int) bool { return s.cum[i] >= r })
	if i == len(s.cum) {
		// The index partitions [1, total] exactly, so a miss means the
		// container state is corrupted.
		panic(fmt.Sprintf("wrand: drew %d outside of cumulative index, total %d", r, s.total))
	}
	return s.elems[i], true
}

// Sample returns n elements drawn independently, with replacement.
// Repeats are expected. Returns nil when the set has no drawable elements
// or n <= 0.
func (s *Set[E]) Sample(n int) []E {
	if n <= 0 {
		return nil
	}

	out := make([]E, 0, n)
	for i := 0; i < n; i++ {
		e, ok := s.Draw()
		if !ok {
			return nil
		}
		out = append(out, e)
	}
	return out
}

// Items returns the stored elements with their weights, in insertion
// order. Zero-weight elements are included.
func (s *Set[E]) Items() []Item[E] {
	items := make([]Item[E], 0, len(s.order))
	for _, e := range s.order {
		items = append(items, Item[E]{Elem: e, Weight: s.weights[e]})
	}
	return items
}

// Clone copies elements, weights and insertion order into a new set with
// a fresh generator seeded with seed. The generator position of the source
// is not carried over.
func (s *Set[E]) Clone(seed uint64) *Set[E] {
	c := New[E](seed)
	c.order = append([]E(nil), s.order...)
	for e, w := range s.weights {
		c.weights[e] = w
	}
	c.total = s.total
	return c
}
