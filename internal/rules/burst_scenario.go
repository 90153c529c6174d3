package rules

import (
	"context"
	"fmt"

	"github.com/petuhovskiy/rollodrome/internal/engine"
	"github.com/petuhovskiy/rollodrome/wrand"
)

const stormRounds = 4

type burstParams struct {
	live  *engine.LiveRun
	batch int
}

// burstPhase is one uninterrupted stretch of draws together with the
// weights that were in effect while drawing. Chi-square checks compare
// each phase against its own weights, so scenarios that mutate the pool
// mid-flight stay checkable.
type burstPhase struct {
	res   *engine.BurstResult
	items []wrand.Item[string]
}

type burstOutcome struct {
	phases []burstPhase
	// Elements erased by the scenario itself.
	erased []string
}

type burstScenario interface {
	execute(ctx context.Context, params burstParams) (*burstOutcome, error)
}

func getScenario(name string) (burstScenario, error) {
	switch name {
	case "steady":
		return &steady{}, nil
	case "storm":
		return &storm{rounds: stormRounds}, nil
	case "drain":
		return &drain{}, nil
	}

	return nil, fmt.Errorf("unknown scenario: %v", name)
}

// steady is a single verified burst.
type steady struct{}

func (s *steady) execute(ctx context.Context, params burstParams) (*burstOutcome, error) {
	items := params.live.Items()

	res, err := params.live.Burst(ctx, params.batch)
	if err != nil {
		return nil, err
	}

	return &burstOutcome{
		phases: []burstPhase{{res: res, items: items}},
	}, nil
}

// storm fires several bursts back to back. The first one may pay an
// index rebuild, the rest must start warm.
type storm struct {
	rounds int
}

func (s *storm) execute(ctx context.Context, params burstParams) (*burstOutcome, error) {
	items := params.live.Items()

	var outcome burstOutcome
	for i := 0; i < s.rounds; i++ {
		res, err := params.live.Burst(ctx, params.batch)
		if err != nil {
			return nil, err
		}
		outcome.phases = append(outcome.phases, burstPhase{res: res, items: items})
	}
	return &outcome, nil
}

// drain bursts, erases the most drawn element, then bursts again. The
// second phase certifies that draws re-partition over the remaining
// weights.
type drain struct{}

func (d *drain) execute(ctx context.Context, params burstParams) (*burstOutcome, error) {
	items := params.live.Items()

	res, err := params.live.Burst(ctx, params.batch)
	if err != nil {
		return nil, err
	}

	outcome := &burstOutcome{
		phases: []burstPhase{{res: res, items: items}},
	}

	victim, ok := mostDrawn(res.Histogram)
	if !ok {
		// Empty domain, nothing to drain.
		return outcome, nil
	}

	if _, _, err := params.live.Erase(victim); err != nil {
		return nil, err
	}
	outcome.erased = append(outcome.erased, victim)

	after := params.live.Items()
	res, err = params.live.Burst(ctx, params.batch)
	if err != nil {
		return nil, err
	}
	outcome.phases = append(outcome.phases, burstPhase{res: res, items: after})

	return outcome, nil
}

// mostDrawn returns the histogram's most frequent element, ties broken
// by name so the victim never depends on map iteration order.
func mostDrawn(hist map[string]uint64) (string, bool) {
	var best string
	var bestN uint64
	var found bool
	for elem, n := range hist {
		if !found || n > bestN || (n == bestN && elem < best) {
			best, bestN, found = elem, n, true
		}
	}
	return best, found
}
