package engine

type Name string

const (
	// Indexed is the wrand library: prefix-sum index, binary search.
	Indexed = Name("indexed")
	// Mirror is the reference implementation: shadow state, linear scan.
	Mirror = Name("mirror")
)
