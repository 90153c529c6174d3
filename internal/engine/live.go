package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/wrand"
)

// LiveRun is the in-memory incarnation of one Run row: the indexed
// engine and its mirror, built with the run's seed and fed identical
// operations.
//
// The engines must advance their generator streams together. Every
// burst and every mutation is applied to both sides; skipping one side
// would desync the streams and report false divergence on the next
// comparison.
//
// LiveRun has no internal locking. Callers serialize access through the
// per-run locks in bgjobs: draws advance generator state, so bursts are
// writers too, not just mutations.
type LiveRun struct {
	RunID uint
	Pool  string
	Seed  uint64

	indexed *IndexedEngine
	mirror  *MirrorEngine
}

// FromRun rebuilds the engine pair from a persisted run snapshot. The
// generator position is not persisted, both engines restart from the
// run's seed.
func FromRun(run *models.Run) (*LiveRun, error) {
	var items []wrand.Item[string]
	if len(run.Items) > 0 {
		if err := json.Unmarshal(run.Items, &items); err != nil {
			return nil, fmt.Errorf("run %d items: %w", run.ID, err)
		}
	}

	indexed, err := NewIndexed(run.Seed, items)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", run.ID, err)
	}

	return &LiveRun{
		RunID:   run.ID,
		Pool:    run.PoolName,
		Seed:    run.Seed,
		indexed: indexed,
		mirror:  NewMirror(run.Seed, items),
	}, nil
}

// Burst draws n elements from both engines and verifies that they
// produced identical sequences. On an empty domain the burst stops
// early and returns fewer (possibly zero) elements.
func (l *LiveRun) Burst(ctx context.Context, n int) (*BurstResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	warm := l.indexed.Warm()
	took := make(map[Name]time.Duration, 2)

	start := time.Now()
	drawn := burstEngine(l.indexed, n)
	took[Indexed] = time.Since(start)

	start = time.Now()
	mirrored := burstEngine(l.mirror, n)
	took[Mirror] = time.Since(start)

	if err := compareSequences(drawn, mirrored); err != nil {
		return nil, err
	}

	hist := make(map[string]uint64)
	for _, elem := range drawn {
		hist[elem]++
	}

	return &BurstResult{
		Elements:  drawn,
		Histogram: hist,
		Warm:      warm,
		Took:      took,
	}, nil
}

func burstEngine(e Engine, n int) []string {
	elems := make([]string, 0, n)
	for i := 0; i < n; i++ {
		elem, ok := e.Draw()
		if !ok {
			// Empty domain. No generator value was consumed, so the
			// other engine will stop at the same position.
			break
		}
		elems = append(elems, elem)
	}
	return elems
}

func compareSequences(indexed, mirror []string) error {
	if len(indexed) != len(mirror) {
		return fmt.Errorf("engines diverged: indexed drew %d elements, mirror drew %d", len(indexed), len(mirror))
	}
	for i := range indexed {
		if indexed[i] != mirror[i] {
			return fmt.Errorf("engines diverged at draw %d: indexed %q, mirror %q", i, indexed[i], mirror[i])
		}
	}
	return nil
}

// Insert applies the insert to both engines. The returned error means
// the engines disagree, which is an invariant violation.
func (l *LiveRun) Insert(elem string, weight uint64) (bool, error) {
	ok1 := l.indexed.Insert(elem, weight)
	ok2 := l.mirror.Insert(elem, weight)
	if ok1 != ok2 {
		return false, fmt.Errorf("engines disagree on insert %q: indexed %v, mirror %v", elem, ok1, ok2)
	}
	return ok1, nil
}

func (l *LiveRun) Erase(elem string) (uint64, bool, error) {
	w1, ok1 := l.indexed.Erase(elem)
	w2, ok2 := l.mirror.Erase(elem)
	if ok1 != ok2 || w1 != w2 {
		return 0, false, fmt.Errorf("engines disagree on erase %q: indexed (%d, %v), mirror (%d, %v)", elem, w1, ok1, w2, ok2)
	}
	return w1, ok1, nil
}

func (l *LiveRun) Modify(elem string, weight uint64) (uint64, bool, error) {
	w1, ok1 := l.indexed.Modify(elem, weight)
	w2, ok2 := l.mirror.Modify(elem, weight)
	if ok1 != ok2 || w1 != w2 {
		return 0, false, fmt.Errorf("engines disagree on modify %q: indexed (%d, %v), mirror (%d, %v)", elem, w1, ok1, w2, ok2)
	}
	return w1, ok1, nil
}

func (l *LiveRun) Clear() {
	l.indexed.Clear()
	l.mirror.Clear()
}

// Items returns the current pool snapshot, in insertion order.
func (l *LiveRun) Items() []wrand.Item[string] {
	return l.indexed.Items()
}

func (l *LiveRun) TotalWeight() uint64 {
	return l.indexed.TotalWeight()
}

// Verify checks that the engines hold identical state and that the
// total weight equals the sum of the item weights.
func (l *LiveRun) Verify() error {
	a := l.indexed.Items()
	b := l.mirror.Items()
	if len(a) != len(b) {
		return fmt.Errorf("engines disagree on size: indexed %d, mirror %d", len(a), len(b))
	}

	var sum uint64
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("engines disagree on item %d: indexed %+v, mirror %+v", i, a[i], b[i])
		}
		sum += a[i].Weight
	}

	if ta, tb := l.indexed.TotalWeight(), l.mirror.TotalWeight(); ta != tb {
		return fmt.Errorf("engines disagree on total weight: indexed %d, mirror %d", ta, tb)
	}
	if total := l.indexed.TotalWeight(); total != sum {
		return fmt.Errorf("total weight %d does not match sum of item weights %d", total, sum)
	}
	return nil
}
