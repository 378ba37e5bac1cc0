package models

import (
	"fmt"
	"math/rand"
)

// FixtureBuilder generates deterministic record fixtures from an injected
// PRNG. Seed the generator per run to make fixture data reproducible.
type FixtureBuilder struct {
	rng *rand.Rand
}

// NewFixtureBuilder creates a builder backed by the given generator.
func NewFixtureBuilder(rng *rand.Rand) *FixtureBuilder {
	return &FixtureBuilder{rng: rng}
}

// RandomCategory picks a uniformly random category variant.
func (b *FixtureBuilder) RandomCategory() Category {
	all := Categories()
	return all[b.rng.Intn(len(all))]
}

// SkewedCategory assigns a category by position so that the resulting data
// set has the selectivity profile used for index comparison: the last 1% of
// records are TO_DO, the 4% before that FAILED, everything else DONE.
func SkewedCategory(i, total int) Category {
	switch {
	case i > total*99/100:
		return CategoryToDo
	case i > total*95/100:
		return CategoryFailed
	default:
		return CategoryDone
	}
}

// Record builds the i-th record of a fixture set with a skewed category.
func (b *FixtureBuilder) Record(i, total int) Record {
	return Record{
		ID:       int64(i),
		Label:    fmt.Sprintf("Task %d", i),
		Category: SkewedCategory(i, total),
	}
}

// RandomRecord builds a record with a uniformly random category.
func (b *FixtureBuilder) RandomRecord(id int64) Record {
	return Record{
		ID:       id,
		Label:    fmt.Sprintf("Task %d", id),
		Category: b.RandomCategory(),
	}
}
