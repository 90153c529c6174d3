// Package catalog loads the pool catalog: named weighted sets that runs
// are instantiated from.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petuhovskiy/rollodrome/wrand"
)

// Pool is a named weighted set declared in the catalog.
type Pool struct {
	Name  string               `yaml:"name"`
	Items []wrand.Item[string] `yaml:"items"`

	// TrimAfter overrides the node-wide limit on live runs per pool.
	// Zero means use the rule default.
	TrimAfter int `yaml:"trim_after"`

	// Disabled pools are kept for their existing runs but no new runs
	// are created from them.
	Disabled bool `yaml:"disabled"`

	Note string `yaml:"note"`
}

type Catalog struct {
	Pools []Pool `yaml:"pools"`
}

// Load reads a catalog from a YAML file. Empty path means the built-in
// catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		c := Default()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("built-in catalog: %w", err)
		}
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// Default returns the built-in catalog: a uniform pair, a skewed loot
// table, and a wide spread with slowly decaying weights.
func Default() *Catalog {
	zipfish := []wrand.Item[string]{}
	for k := 1; k <= 12; k++ {
		zipfish = append(zipfish, wrand.Item[string]{
			Elem:   fmt.Sprintf("shard-%02d", k),
			Weight: uint64(840 / k),
		})
	}

	return &Catalog{
		Pools: []Pool{
			{
				Name: "coin",
				Items: []wrand.Item[string]{
					{Elem: "heads", Weight: 1},
					{Elem: "tails", Weight: 1},
				},
				Note: "uniform pair, the smallest possible pool",
			},
			{
				Name: "loot",
				Items: []wrand.Item[string]{
					{Elem: "common", Weight: 60},
					{Elem: "uncommon", Weight: 25},
					{Elem: "rare", Weight: 10},
					{Elem: "epic", Weight: 4},
					{Elem: "legendary", Weight: 1},
				},
				Note: "skewed loot table with a rare tail",
			},
			{
				Name:      "shards",
				Items:     zipfish,
				TrimAfter: 3,
				Note:      "wide spread with slowly decaying weights",
			},
		},
	}
}

func (c *Catalog) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("catalog has no pools")
	}

	names := map[string]bool{}
	for _, pool := range c.Pools {
		if pool.Name == "" {
			return fmt.Errorf("pool with empty name")
		}
		if names[pool.Name] {
			return fmt.Errorf("duplicate pool name %q", pool.Name)
		}
		names[pool.Name] = true

		if len(pool.Items) == 0 {
			return fmt.Errorf("pool %q has no items", pool.Name)
		}

		elems := map[string]bool{}
		var positive bool
		for _, item := range pool.Items {
			if item.Elem == "" {
				return fmt.Errorf("pool %q has item with empty element", pool.Name)
			}
			if elems[item.Elem] {
				return fmt.Errorf("pool %q has duplicate element %q", pool.Name, item.Elem)
			}
			elems[item.Elem] = true
			if item.Weight > 0 {
				positive = true
			}
		}
		if !positive {
			return fmt.Errorf("pool %q has no positive weights", pool.Name)
		}
	}
	return nil
}

// PoolByName returns the pool with the given name, or nil.
func (c *Catalog) PoolByName(name string) *Pool {
	for i := range c.Pools {
		if c.Pools[i].Name == name {
			return &c.Pools[i]
		}
	}
	return nil
}

// Enabled returns pools that new runs may be created from.
func (c *Catalog) Enabled() []Pool {
	var pools []Pool
	for _, pool := range c.Pools {
		if !pool.Disabled {
			pools = append(pools, pool)
		}
	}
	return pools
}

// TotalWeight returns the sum of the pool's item weights.
func (p *Pool) TotalWeight() uint64 {
	var total uint64
	for _, item := range p.Items {
		total += item.Weight
	}
	return total
}
