package wrand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertUnique(t *testing.T) {
	s := New[string](42)

	assert.True(t, s.Insert("a", 1))
	assert.False(t, s.Insert("a", 100))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint64(1), s.TotalWeight())

	w, ok := s.Weight("a")
	require.True(t, ok)
	assert.Equal(t, uint64(1), w)
}

func TestWeightConservation(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 3)
	s.Insert("b", 5)
	s.Insert("c", 0)
	s.Insert("d", 7)

	sum := func() uint64 {
		var total uint64
		for _, item := range s.Items() {
			total += item.Weight
		}
		return total
	}

	assert.Equal(t, sum(), s.TotalWeight())

	s.Erase("b")
	assert.Equal(t, sum(), s.TotalWeight())

	s.Modify("d", 2)
	assert.Equal(t, sum(), s.TotalWeight())

	s.Insert("e", 11)
	assert.Equal(t, sum(), s.TotalWeight())
	assert.Equal(t, uint64(3+0+2+11), s.TotalWeight())
}

func TestProbabilityLaw(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)
	s.Insert("b", 1)
	s.Insert("c", 2)

	pa, ok := s.Probability("a")
	require.True(t, ok)
	assert.InDelta(t, 0.25, pa, 1e-12)

	pc, ok := s.Probability("c")
	require.True(t, ok)
	assert.InDelta(t, 0.5, pc, 1e-12)

	var sum float64
	for _, item := range s.Items() {
		p, ok := s.Probability(item.Elem)
		require.True(t, ok)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	_, ok = s.Probability("missing")
	assert.False(t, ok)
}

func TestProbabilityZeroTotal(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 0)

	_, ok := s.Probability("a")
	assert.False(t, ok)
}

func TestDrawCoverage(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)
	s.Insert("b", 1)
	s.Insert("c", 2)

	const n = 100000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		e, ok := s.Draw()
		require.True(t, ok)
		counts[e]++
	}

	assert.InDelta(t, 0.25, float64(counts["a"])/n, 0.02)
	assert.InDelta(t, 0.25, float64(counts["b"])/n, 0.02)
	assert.InDelta(t, 0.5, float64(counts["c"])/n, 0.02)
}

func TestZeroWeightExclusion(t *testing.T) {
	s := New[string](42)
	s.Insert("never", 0)
	s.Insert("always", 1)

	assert.True(t, s.Contains("never"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(1), s.TotalWeight())

	for i := 0; i < 10000; i++ {
		e, ok := s.Draw()
		require.True(t, ok)
		assert.Equal(t, "always", e)
	}
}

func TestModifyToZero(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 5)
	s.Insert("b", 5)

	old, ok := s.Modify("a", 0)
	require.True(t, ok)
	assert.Equal(t, uint64(5), old)
	assert.Equal(t, uint64(5), s.TotalWeight())

	for i := 0; i < 1000; i++ {
		e, ok := s.Draw()
		require.True(t, ok)
		assert.Equal(t, "b", e)
	}
}

func TestEmptyBehavior(t *testing.T) {
	s := New[string](42)

	assert.True(t, s.Empty())
	_, ok := s.Draw()
	assert.False(t, ok)
	assert.Nil(t, s.Sample(5))

	// All-zero weights behave as an empty domain too.
	s.Insert("a", 0)
	_, ok = s.Draw()
	assert.False(t, ok)
	assert.Nil(t, s.Sample(5))
}

func TestClear(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)
	s.Insert("b", 2)
	require.Equal(t, 2, s.Len())

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(0), s.TotalWeight())
	assert.False(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	_, ok := s.Draw()
	assert.False(t, ok)

	// Clearing again changes nothing.
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(0), s.TotalWeight())
}

func TestInsertEraseRoundTrip(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 3)
	s.Insert("b", 4)

	prevLen := s.Len()
	prevTotal := s.TotalWeight()

	require.True(t, s.Insert("tmp", 17))
	w, ok := s.Erase("tmp")
	require.True(t, ok)
	assert.Equal(t, uint64(17), w)

	assert.Equal(t, prevLen, s.Len())
	assert.Equal(t, prevTotal, s.TotalWeight())

	_, ok = s.Erase("tmp")
	assert.False(t, ok)
}

func TestModify(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 10)
	s.Insert("b", 5)

	old, ok := s.Modify("a", 25)
	require.True(t, ok)
	assert.Equal(t, uint64(10), old)

	w, ok := s.Weight("a")
	require.True(t, ok)
	assert.Equal(t, uint64(25), w)
	assert.Equal(t, uint64(30), s.TotalWeight())

	_, ok = s.Modify("missing", 1)
	assert.False(t, ok)
}

func TestEraseRedistributes(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)
	s.Insert("b", 1)
	s.Insert("c", 2)

	// Warm the index, then erase from the middle of the partition.
	_, ok := s.Draw()
	require.True(t, ok)
	w, ok := s.Erase("c")
	require.True(t, ok)
	assert.Equal(t, uint64(2), w)
	assert.Equal(t, uint64(2), s.TotalWeight())

	const n = 10000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		e, ok := s.Draw()
		require.True(t, ok)
		counts[e]++
	}

	assert.Zero(t, counts["c"])
	assert.InDelta(t, 0.5, float64(counts["a"])/n, 0.05)
	assert.InDelta(t, 0.5, float64(counts["b"])/n, 0.05)
}

func TestDeterminism(t *testing.T) {
	script := func(s *Set[string]) []string {
		s.Insert("a", 1)
		s.Insert("b", 2)
		s.Insert("c", 3)
		var seq []string
		seq = append(seq, s.Sample(10)...)
		s.Erase("b")
		s.Modify("a", 7)
		s.Refresh()
		seq = append(seq, s.Sample(10)...)
		return seq
	}

	seq1 := script(New[string](12345))
	seq2 := script(New[string](12345))
	assert.Equal(t, seq1, seq2)

	seq3 := script(New[string](54321))
	assert.NotEqual(t, seq1, seq3)
}

func TestSeedReset(t *testing.T) {
	s := New[string](1)
	s.Insert("a", 1)
	s.Insert("b", 2)
	s.Insert("c", 3)

	s.Seed(7)
	seq1 := s.Sample(20)
	s.Seed(7)
	seq2 := s.Sample(20)

	assert.Equal(t, seq1, seq2)
}

func TestSampleIndependence(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)
	s.Insert("b", 1)

	sample := s.Sample(1000)
	require.Len(t, sample, 1000)

	// Independent draws must cover both elements; a sampler that repeats
	// a single draw would return only one.
	seen := map[string]bool{}
	for _, e := range sample {
		seen[e] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestSampleNonPositive(t *testing.T) {
	s := New[string](42)
	s.Insert("a", 1)

	assert.Nil(t, s.Sample(0))
	assert.Nil(t, s.Sample(-3))
}

func TestStaleFlag(t *testing.T) {
	s := New[string](42)
	assert.True(t, s.Stale())

	s.Insert("a", 1)
	assert.True(t, s.Stale())

	s.Refresh()
	assert.False(t, s.Stale())

	s.Modify("a", 2)
	assert.True(t, s.Stale())

	_, ok := s.Draw()
	require.True(t, ok)
	assert.False(t, s.Stale())
}

func TestNewFromItems(t *testing.T) {
	items := []Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 2},
	}
	s, err := NewFromItems(42, items)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(3), s.TotalWeight())
	assert.Equal(t, items, s.Items())

	_, err = NewFromItems(42, []Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "a", Weight: 2},
	})
	assert.ErrorIs(t, err, ErrDuplicateElement)
}

func TestClone(t *testing.T) {
	s := New[string](1)
	s.Insert("a", 1)
	s.Insert("b", 2)
	s.Sample(5) // advance the generator

	c := s.Clone(99)
	assert.Equal(t, s.Items(), c.Items())
	assert.Equal(t, s.TotalWeight(), c.TotalWeight())

	// The clone draws as a fresh set with the same contents and seed
	// would: generator position does not carry over.
	fresh, err := NewFromItems(99, s.Items())
	require.NoError(t, err)
	assert.Equal(t, fresh.Sample(20), c.Sample(20))

	// Mutating the clone leaves the source untouched.
	c.Insert("c", 10)
	assert.False(t, s.Contains("c"))
	assert.Equal(t, uint64(3), s.TotalWeight())
}

func TestInsertionOrderIndependentOfMapIteration(t *testing.T) {
	// Two sets fed the same items draw identically even though Go map
	// iteration order is randomized: the index is built from insertion
	// order, never from map traversal.
	items := []Item[int]{}
	for i := 0; i < 100; i++ {
		items = append(items, Item[int]{Elem: i, Weight: uint64(i%7 + 1)})
	}

	s1, err := NewFromItems(7, items)
	require.NoError(t, err)
	s2, err := NewFromItems(7, items)
	require.NoError(t, err)

	assert.Equal(t, s1.Sample(200), s2.Sample(200))
}
