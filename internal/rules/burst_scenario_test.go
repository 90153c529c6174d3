package rules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/wrand"
)

func newTestLive(t *testing.T, seed uint64, items []wrand.Item[string]) *engine.LiveRun {
	t.Helper()

	raw, err := json.Marshal(items)
	require.NoError(t, err)

	live, err := engine.FromRun(&models.Run{
		PoolName: "scenario-pool",
		Seed:     seed,
		Items:    raw,
	})
	require.NoError(t, err)
	return live
}

func TestGetScenario(t *testing.T) {
	for _, name := range []string{"steady", "storm", "drain"} {
		s, err := getScenario(name)
		require.NoError(t, err, name)
		require.NotNil(t, s, name)
	}

	_, err := getScenario("avalanche")
	assert.Error(t, err)
}

func TestSteadyScenario(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 3},
	}
	live := newTestLive(t, 17, items)

	s, err := getScenario("steady")
	require.NoError(t, err)

	outcome, err := s.execute(context.Background(), burstParams{live: live, batch: 40})
	require.NoError(t, err)
	require.Len(t, outcome.phases, 1)
	assert.Empty(t, outcome.erased)

	phase := outcome.phases[0]
	assert.Len(t, phase.res.Elements, 40)
	assert.Equal(t, items, phase.items)

	var total uint64
	for _, n := range phase.res.Histogram {
		total += n
	}
	assert.Equal(t, uint64(40), total)

	require.NoError(t, live.Verify())
}

func TestStormScenario(t *testing.T) {
	live := newTestLive(t, 23, []wrand.Item[string]{
		{Elem: "x", Weight: 2},
		{Elem: "y", Weight: 2},
	})

	s, err := getScenario("storm")
	require.NoError(t, err)

	outcome, err := s.execute(context.Background(), burstParams{live: live, batch: 25})
	require.NoError(t, err)
	require.Len(t, outcome.phases, stormRounds)

	// The first round pays the rebuild, all later rounds start warm.
	assert.False(t, outcome.phases[0].res.Warm)
	for i := 1; i < len(outcome.phases); i++ {
		assert.True(t, outcome.phases[i].res.Warm, "round %d", i)
		assert.Equal(t, outcome.phases[0].items, outcome.phases[i].items)
	}

	require.NoError(t, live.Verify())
}

func TestDrainScenario(t *testing.T) {
	live := newTestLive(t, 31, []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 8},
		{Elem: "c", Weight: 1},
	})

	s, err := getScenario("drain")
	require.NoError(t, err)

	outcome, err := s.execute(context.Background(), burstParams{live: live, batch: 50})
	require.NoError(t, err)
	require.Len(t, outcome.phases, 2)
	require.Len(t, outcome.erased, 1)

	victim := outcome.erased[0]
	assert.Positive(t, outcome.phases[0].res.Histogram[victim])

	// The victim is gone from the second phase entirely.
	assert.Zero(t, outcome.phases[1].res.Histogram[victim])
	for _, item := range outcome.phases[1].items {
		assert.NotEqual(t, victim, item.Elem)
	}
	assert.Len(t, outcome.phases[1].res.Elements, 50)

	require.NoError(t, live.Verify())
	assert.Equal(t, 2, len(live.Items()))
}

func TestDrainScenarioEmptyDomain(t *testing.T) {
	live := newTestLive(t, 3, []wrand.Item[string]{
		{Elem: "ghost", Weight: 0},
	})

	s, err := getScenario("drain")
	require.NoError(t, err)

	outcome, err := s.execute(context.Background(), burstParams{live: live, batch: 10})
	require.NoError(t, err)
	require.Len(t, outcome.phases, 1)
	assert.Empty(t, outcome.phases[0].res.Elements)
	assert.Empty(t, outcome.erased)
}

func TestMostDrawn(t *testing.T) {
	elem, ok := mostDrawn(map[string]uint64{"a": 3, "b": 5})
	assert.True(t, ok)
	assert.Equal(t, "b", elem)

	// Ties break towards the smaller name.
	elem, ok = mostDrawn(map[string]uint64{"b": 2, "a": 2})
	assert.True(t, ok)
	assert.Equal(t, "a", elem)

	_, ok = mostDrawn(nil)
	assert.False(t, ok)
}
