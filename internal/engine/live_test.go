package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/wrand"
)

func testRun(t *testing.T, seed uint64, items []wrand.Item[string]) *models.Run {
	t.Helper()

	raw, err := json.Marshal(items)
	require.NoError(t, err)

	return &models.Run{
		PoolName: "test-pool",
		Seed:     seed,
		Items:    raw,
	}
}

func TestFromRunAgreement(t *testing.T) {
	run := testRun(t, 42, []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
		{Elem: "c", Weight: 2},
	})
	run.ID = 7

	live, err := FromRun(run)
	require.NoError(t, err)
	assert.Equal(t, uint(7), live.RunID)
	assert.Equal(t, "test-pool", live.Pool)
	assert.Equal(t, uint64(4), live.TotalWeight())

	res, err := live.Burst(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, res.Elements, 500)
	assert.False(t, res.Warm)

	var total uint64
	for elem, n := range res.Histogram {
		assert.Contains(t, []string{"a", "b", "c"}, elem)
		total += n
	}
	assert.Equal(t, uint64(500), total)
	require.NoError(t, live.Verify())

	// No mutation in between, the index must still be fresh.
	res, err = live.Burst(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, res.Warm)
}

func TestFromRunDeterminism(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "x", Weight: 3},
		{Elem: "y", Weight: 5},
	}

	a, err := FromRun(testRun(t, 1234, items))
	require.NoError(t, err)
	b, err := FromRun(testRun(t, 1234, items))
	require.NoError(t, err)

	resA, err := a.Burst(context.Background(), 100)
	require.NoError(t, err)
	resB, err := b.Burst(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, resA.Elements, resB.Elements)
}

func TestMutationsKeepEnginesInSync(t *testing.T) {
	live, err := FromRun(testRun(t, 9, []wrand.Item[string]{
		{Elem: "a", Weight: 2},
		{Elem: "b", Weight: 3},
	}))
	require.NoError(t, err)

	_, err = live.Burst(context.Background(), 50)
	require.NoError(t, err)

	ok, err := live.Insert("c", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = live.Insert("c", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	prev, ok, err := live.Modify("a", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), prev)

	w, ok, err := live.Erase("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), w)

	require.NoError(t, live.Verify())
	assert.Equal(t, uint64(10), live.TotalWeight())

	// Only "c" can be drawn now, "a" has zero weight.
	res, err := live.Burst(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, res.Elements, 30)
	assert.Equal(t, uint64(30), res.Histogram["c"])

	live.Clear()
	require.NoError(t, live.Verify())
	assert.Empty(t, live.Items())
}

func TestBurstEmptyDomain(t *testing.T) {
	live, err := FromRun(testRun(t, 5, []wrand.Item[string]{
		{Elem: "ghost", Weight: 0},
	}))
	require.NoError(t, err)

	res, err := live.Burst(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, res.Elements)
	require.NoError(t, live.Verify())
}

func TestBurstCanceledContext(t *testing.T) {
	live, err := FromRun(testRun(t, 5, []wrand.Item[string]{
		{Elem: "a", Weight: 1},
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = live.Burst(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	live, err := FromRun(testRun(t, 3, []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
	}))
	require.NoError(t, err)
	require.NoError(t, live.Verify())

	// Wedge the mirror out of sync behind the pair's back.
	_, ok := live.mirror.Modify("a", 100)
	require.True(t, ok)

	assert.Error(t, live.Verify())
}

func TestBurstDetectsDivergedStreams(t *testing.T) {
	live, err := FromRun(testRun(t, 8, []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
	}))
	require.NoError(t, err)

	// Advance only the mirror's generator, the streams now disagree.
	for i := 0; i < 5; i++ {
		live.mirror.Draw()
	}

	// Shifted streams over two equally likely elements cannot agree on
	// all 64 draws, the sequence comparison must trip.
	_, err = live.Burst(context.Background(), 64)
	assert.Error(t, err)
}

func TestFromRunRejectsBadItems(t *testing.T) {
	run := &models.Run{
		PoolName: "bad",
		Seed:     1,
		Items:    json.RawMessage(`{"not":"a list"}`),
	}
	_, err := FromRun(run)
	assert.Error(t, err)

	run = testRun(t, 1, []wrand.Item[string]{
		{Elem: "dup", Weight: 1},
		{Elem: "dup", Weight: 2},
	})
	_, err = FromRun(run)
	assert.ErrorIs(t, err, wrand.ErrDuplicateElement)
}

func TestFromRunEmptyItems(t *testing.T) {
	run := &models.Run{PoolName: "empty", Seed: 1}
	live, err := FromRun(run)
	require.NoError(t, err)
	assert.Zero(t, live.TotalWeight())
	assert.Empty(t, live.Items())
}
