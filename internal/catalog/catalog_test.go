package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petuhovskiy/rollodrome/wrand"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, c.Pools)

	loot := c.PoolByName("loot")
	require.NotNil(t, loot)
	assert.Equal(t, uint64(100), loot.TotalWeight())

	assert.Nil(t, c.PoolByName("no-such-pool"))
	assert.Len(t, c.Enabled(), len(c.Pools))
}

func TestLoadFile(t *testing.T) {
	const doc = `
pools:
  - name: dice
    items:
      - {elem: one, weight: 1}
      - {elem: two, weight: 1}
      - {elem: three, weight: 1}
  - name: retired
    disabled: true
    items:
      - {elem: only, weight: 5}
`
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Pools, 2)

	dice := c.PoolByName("dice")
	require.NotNil(t, dice)
	assert.Equal(t, uint64(3), dice.TotalWeight())

	enabled := c.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "dice", enabled[0].Name)
}

func items(pairs ...any) []wrand.Item[string] {
	var out []wrand.Item[string]
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, wrand.Item[string]{
			Elem:   pairs[i].(string),
			Weight: uint64(pairs[i+1].(int)),
		})
	}
	return out
}

func TestValidate(t *testing.T) {
	bad := []Catalog{
		{},
		{Pools: []Pool{{Name: "", Items: items("x", 1)}}},
		{Pools: []Pool{{Name: "a"}}},
		{Pools: []Pool{
			{Name: "a", Items: items("x", 1)},
			{Name: "a", Items: items("y", 1)},
		}},
		{Pools: []Pool{{Name: "a", Items: items("x", 1, "x", 2)}}},
		{Pools: []Pool{{Name: "a", Items: items("x", 0)}}},
	}

	for i := range bad {
		assert.Error(t, bad[i].Validate(), "case %d", i)
	}

	good := Catalog{Pools: []Pool{{Name: "a", Items: items("x", 0, "y", 3)}}}
	assert.NoError(t, good.Validate())
}
