package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/petuhovskiy/rollodrome/wrand"
)

func TestChiSquareExactFit(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
		{Elem: "c", Weight: 2},
	}
	hist := map[string]uint64{"a": 25, "b": 25, "c": 50}

	stat, df := chiSquare(hist, items)
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 2, df)
	assert.False(t, chiSquareSuspect(stat, df))
}

func TestChiSquareNothingDrawn(t *testing.T) {
	items := []wrand.Item[string]{{Elem: "a", Weight: 1}}

	stat, df := chiSquare(nil, items)
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 0, df)

	stat, df = chiSquare(map[string]uint64{"a": 10}, nil)
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 0, df)
}

func TestChiSquareImpossibleDraw(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "ghost", Weight: 0},
	}

	stat, df := chiSquare(map[string]uint64{"a": 5, "ghost": 1}, items)
	assert.True(t, math.IsInf(stat, 1))
	assert.True(t, chiSquareSuspect(stat, df))

	stat, _ = chiSquare(map[string]uint64{"a": 5, "stranger": 1}, items)
	assert.True(t, math.IsInf(stat, 1))
}

func TestChiSquareZeroWeightExcludedFromDf(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "ghost", Weight: 0},
	}

	stat, df := chiSquare(map[string]uint64{"a": 10}, items)
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 0, df)
	assert.False(t, chiSquareSuspect(stat, df))
}

func TestChiSquareCatastrophicSkew(t *testing.T) {
	items := []wrand.Item[string]{
		{Elem: "a", Weight: 1},
		{Elem: "b", Weight: 1},
	}
	hist := map[string]uint64{"a": 100}

	stat, df := chiSquare(hist, items)
	assert.Equal(t, 100.0, stat)
	assert.Equal(t, 1, df)
	assert.True(t, chiSquareSuspect(stat, df))
}

func TestChiSquareSuspectBound(t *testing.T) {
	// The bound is loose enough that moderate noise never trips it.
	assert.False(t, chiSquareSuspect(10, 1))
	assert.False(t, chiSquareSuspect(30, 5))
	assert.True(t, chiSquareSuspect(1000, 5))

	assert.False(t, chiSquareSuspect(0, 0))
	assert.True(t, chiSquareSuspect(math.Inf(1), 0))
}
