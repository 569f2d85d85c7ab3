//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates synthetic market data: random-walk bars,
// full per-symbol series and symbol universes.
package datagen

import (
	"hash/fnv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Faker provides random values using gofakeit. A Faker is not safe for
// concurrent use; each unit of work owns its own.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// NewFakerForSymbol derives a per-symbol Faker from a run seed. A zero
// run seed yields a randomly seeded Faker.
func NewFakerForSymbol(runSeed uint64, symbol string) *Faker {
	if runSeed == 0 {
		return NewFaker()
	}
	return NewFakerWithSeed(runSeed ^ SymbolHash(symbol))
}

// SymbolHash returns a stable 64-bit hash of a symbol.
func SymbolHash(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	return h.Sum64()
}

// Company generates a random company name.
func (f *Faker) Company() string {
	return f.faker.Company()
}

// Int generates a random integer between min and max (inclusive).
func (f *Faker) Int(min, max int) int {
	return f.faker.IntRange(min, max)
}

// Float64 generates a random float64 between min and max.
func (f *Faker) Float64(min, max float64) float64 {
	if min == max {
		return min
	}
	return f.faker.Float64Range(min, max)
}

// Letters generates n random upper-case letters.
func (f *Faker) Letters(n int) string {
	return strings.ToUpper(f.faker.LetterN(uint(n)))
}

// Choose returns a random element from the given slice.
func Choose[T any](f *Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.Int(0, len(items)-1)]
}

// ChooseWeighted returns a random element based on weights.
func ChooseWeighted[T any](f *Faker, items []T, weights []int) T {
	if len(items) == 0 || len(weights) == 0 {
		var zero T
		return zero
	}

	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}

	r := f.Int(1, totalWeight)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}
