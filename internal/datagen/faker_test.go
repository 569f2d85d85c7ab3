//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"testing"
)

func TestNewFaker(t *testing.T) {
	f := NewFaker()
	if f == nil {
		t.Fatal("NewFaker returned nil")
	}
	if f.faker == nil {
		t.Fatal("faker field is nil")
	}
}

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		v1 := f1.Float64(0, 1000)
		v2 := f2.Float64(0, 1000)
		if v1 != v2 {
			t.Errorf("Same seed produced different values: %f != %f", v1, v2)
		}
	}
}

func TestNewFakerForSymbol(t *testing.T) {
	a1 := NewFakerForSymbol(42, "AAPL")
	a2 := NewFakerForSymbol(42, "aapl")
	m := NewFakerForSymbol(42, "MSFT")

	v1, v2, v3 := a1.Int(0, 1<<30), a2.Int(0, 1<<30), m.Int(0, 1<<30)
	if v1 != v2 {
		t.Errorf("Expected same sequence for same symbol, got %d and %d", v1, v2)
	}
	if v1 == v3 {
		t.Errorf("Expected different sequences for different symbols, both got %d", v1)
	}
}

func TestFakerInt(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Int(10, 20)
		if v < 10 || v > 20 {
			t.Errorf("Int(10, 20) returned %d, out of range", v)
		}
	}
}

func TestFakerFloat64(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Float64(-0.015, 0.015)
		if v < -0.015 || v > 0.015 {
			t.Errorf("Float64(-0.015, 0.015) returned %f, out of range", v)
		}
	}
	if v := f.Float64(1.5, 1.5); v != 1.5 {
		t.Errorf("Float64(1.5, 1.5) returned %f", v)
	}
}

func TestFakerLetters(t *testing.T) {
	f := NewFaker()
	s := f.Letters(4)
	if len(s) != 4 {
		t.Errorf("Letters(4) returned %q", s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			t.Errorf("Letters returned non upper-case letter %q", r)
		}
	}
}

func TestFakerCompany(t *testing.T) {
	f := NewFaker()
	if f.Company() == "" {
		t.Error("Company returned empty string")
	}
}

func TestChoose(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c"}

	for i := 0; i < 100; i++ {
		v := Choose(f, items)
		found := false
		for _, item := range items {
			if v == item {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Choose returned %s, not in items", v)
		}
	}

	var empty []string
	if v := Choose(f, empty); v != "" {
		t.Errorf("Choose on empty slice returned %q", v)
	}
}

func TestChooseWeighted(t *testing.T) {
	f := NewFaker()
	items := []string{"common", "rare"}
	weights := []int{100, 0}

	for i := 0; i < 50; i++ {
		if v := ChooseWeighted(f, items, weights); v != "common" {
			t.Errorf("ChooseWeighted returned %s with zero weight", v)
		}
	}
}
