package rules

import (
	"math"

	"github.com/petuhovskiy/rollodrome/wrand"
)

// chiSquare returns Pearson's statistic and degrees of freedom for an
// observed draw histogram against the exact probabilities implied by the
// weights. A draw of an element with zero or no weight makes the
// statistic +Inf: the container must never produce one.
func chiSquare(hist map[string]uint64, items []wrand.Item[string]) (float64, int) {
	var total uint64
	weightOf := make(map[string]uint64, len(items))
	for _, item := range items {
		weightOf[item.Elem] = item.Weight
		total += item.Weight
	}

	var draws uint64
	for _, n := range hist {
		draws += n
	}
	if draws == 0 || total == 0 {
		return 0, 0
	}

	for elem, n := range hist {
		if n > 0 && weightOf[elem] == 0 {
			return math.Inf(1), 0
		}
	}

	var stat float64
	df := -1
	for _, item := range items {
		if item.Weight == 0 {
			continue
		}
		df++
		expected := float64(draws) * float64(item.Weight) / float64(total)
		diff := float64(hist[item.Elem]) - expected
		stat += diff * diff / expected
	}
	if df < 0 {
		df = 0
	}
	return stat, df
}

// chiSquareSuspect flags only catastrophic skew. The threshold is the
// Laurent-Massart upper tail bound at e^-14, loose enough that healthy
// runs practically never trip it while broken indexing trips it fast.
func chiSquareSuspect(stat float64, df int) bool {
	if df <= 0 {
		return math.IsInf(stat, 1)
	}

	const t = 14.0
	bound := float64(df) + 2*math.Sqrt(float64(df)*t) + 2*t
	return stat > bound
}
