package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := parsePeriod("random(5,10)")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint(5), p.min)
	assert.Equal(t, uint(10), p.max)

	p, err = parsePeriod("random(7,7)")
	require.NoError(t, err)
	assert.Equal(t, uint(7), p.min)
	assert.Equal(t, uint(7), p.max)
}

func TestParsePeriodEmpty(t *testing.T) {
	p, err := parsePeriod("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestParsePeriodInvalid(t *testing.T) {
	_, err := parsePeriod("every 5 seconds")
	assert.Error(t, err)

	_, err = parsePeriod("random(10,5)")
	assert.Error(t, err)
}
