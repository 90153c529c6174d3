package engine

import "github.com/petuhovskiy/rollodrome/wrand"

var _ Engine = (*IndexedEngine)(nil)

// IndexedEngine is the wrand library, the engine under certification.
type IndexedEngine struct {
	set *wrand.Set[string]
}

func NewIndexed(seed uint64, items []wrand.Item[string]) (*IndexedEngine, error) {
	set, err := wrand.NewFromItems(seed, items)
	if err != nil {
		return nil, err
	}
	return &IndexedEngine{set: set}, nil
}

func (e *IndexedEngine) Name() Name {
	return Indexed
}

func (e *IndexedEngine) Draw() (string, bool) {
	return e.set.Draw()
}

func (e *IndexedEngine) Insert(elem string, weight uint64) bool {
	return e.set.Insert(elem, weight)
}

func (e *IndexedEngine) Erase(elem string) (uint64, bool) {
	return e.set.Erase(elem)
}

func (e *IndexedEngine) Modify(elem string, weight uint64) (uint64, bool) {
	return e.set.Modify(elem, weight)
}

func (e *IndexedEngine) Clear() {
	e.set.Clear()
}

func (e *IndexedEngine) TotalWeight() uint64 {
	return e.set.TotalWeight()
}

func (e *IndexedEngine) Items() []wrand.Item[string] {
	return e.set.Items()
}

func (e *IndexedEngine) Warm() bool {
	return !e.set.Stale()
}
