package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/wrand"
)

func TestSummarize(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
	}
	outcome := &burstOutcome{
		phases: []burstPhase{
			{
				res: &engine.BurstResult{
					Elements:  []string{"a", "b", "a", "b"},
					Histogram: map[string]uint64{"a": 2, "b": 2},
					Warm:      false,
					Took: map[engine.Name]time.Duration{
						engine.Indexed: 1500 * time.Microsecond,
						engine.Mirror:  3 * time.Millisecond,
					},
				},
				items: items,
			},
		},
	}

	s := summarize(context.Background(), "steady", outcome, engine.Indexed)
	require.NotNil(t, s)
	assert.Equal(t, "steady", s.Scenario)
	assert.Equal(t, uint64(4), s.Draws)
	require.Len(t, s.Rounds, 1)

	round := s.Rounds[0]
	assert.Equal(t, 4, round.Count)
	assert.False(t, round.Warm)
	assert.Equal(t, 0.0, round.ChiSquare)
	assert.Equal(t, 1, round.Df)
	assert.False(t, round.Suspect)
	assert.Equal(t, 1.5, round.TookMs["indexed"])
	assert.Equal(t, 3.0, round.TookMs["mirror"])
}

func TestSummarizeImpossibleDraw(t *testing.T) {
	outcome := &burstOutcome{
		phases: []burstPhase{
			{
				res: &engine.BurstResult{
					Elements:  []string{"ghost"},
					Histogram: map[string]uint64{"ghost": 1},
					Took:      map[engine.Name]time.Duration{},
				},
				items: []wrand.Item[string]{{Elem: "a", Weight: 1}},
			},
		},
	}

	s := summarize(context.Background(), "steady", outcome, engine.Indexed)
	require.Len(t, s.Rounds, 1)

	// Inf does not survive JSON, the statistic is clamped and the round
	// stays flagged.
	assert.Equal(t, -1.0, s.Rounds[0].ChiSquare)
	assert.True(t, s.Rounds[0].Suspect)

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var back burstSummary
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, s.Rounds[0].ChiSquare, back.Rounds[0].ChiSquare)
}

func TestSummarizeNilOutcome(t *testing.T) {
	assert.Nil(t, summarize(context.Background(), "steady", nil, engine.Indexed))
}
