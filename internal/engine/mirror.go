package engine

import (
	"golang.org/x/exp/rand"

	"github.com/petuhovskiy/rollodrome/wrand"
)

var _ Engine = (*MirrorEngine)(nil)

// MirrorEngine keeps shadow state and draws by walking it linearly. It
// shares no code with wrand beyond the Item type, so agreement between
// the two engines certifies the library's index and search.
//
// The mirror consumes exactly one generator value per draw, same as
// wrand, so two engines built with the same seed stay on identical
// streams as long as every operation is applied to both.
type MirrorEngine struct {
	items []wrand.Item[string]
	total uint64
	rng   *rand.Rand
}

func NewMirror(seed uint64, items []wrand.Item[string]) *MirrorEngine {
	m := &MirrorEngine{
		items: append([]wrand.Item[string](nil), items...),
		rng:   rand.New(rand.NewSource(seed)),
	}
	for _, item := range m.items {
		m.total += item.Weight
	}
	return m
}

func (m *MirrorEngine) Name() Name {
	return Mirror
}

func (m *MirrorEngine) Draw() (string, bool) {
	if m.total == 0 {
		return "", false
	}

	r := m.rng.Uint64n(m.total) + 1
	var acc uint64
	for _, item := range m.items {
		acc += item.Weight
		if r <= acc {
			return item.Elem, true
		}
	}
	// Weights sum to total, the loop always terminates above.
	return "", false
}

func (m *MirrorEngine) Insert(elem string, weight uint64) bool {
	if m.find(elem) >= 0 {
		return false
	}
	m.items = append(m.items, wrand.Item[string]{Elem: elem, Weight: weight})
	m.total += weight
	return true
}

func (m *MirrorEngine) Erase(elem string) (uint64, bool) {
	i := m.find(elem)
	if i < 0 {
		return 0, false
	}
	w := m.items[i].Weight
	m.items = append(m.items[:i], m.items[i+1:]...)
	m.total -= w
	return w, true
}

func (m *MirrorEngine) Modify(elem string, weight uint64) (uint64, bool) {
	i := m.find(elem)
	if i < 0 {
		return 0, false
	}
	old := m.items[i].Weight
	m.items[i].Weight = weight
	m.total = m.total - old + weight
	return old, true
}

func (m *MirrorEngine) Clear() {
	m.items = nil
	m.total = 0
}

func (m *MirrorEngine) TotalWeight() uint64 {
	return m.total
}

func (m *MirrorEngine) Items() []wrand.Item[string] {
	return append([]wrand.Item[string](nil), m.items...)
}

func (m *MirrorEngine) Warm() bool {
	// There is no index to rebuild.
	return true
}

func (m *MirrorEngine) find(elem string) int {
	for i, item := range m.items {
		if item.Elem == elem {
			return i
		}
	}
	return -1
}
