package indel

import (
	"math/rand"
	"testing"
)

func TestGeometricDrawIsNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d, err := NewGeometric(0.3)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i := 0; i < 1000; i++ {
		if v := d.Draw(rng); v < 1 {
			t.Fatalf("expected draw >= 1, got %d", v)
		}
	}
}

func TestNegBinDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d, err := NewNegBin(3, 0.4)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i := 0; i < 1000; i++ {
		if v := d.Draw(rng); v < 1 {
			t.Fatalf("expected draw >= 1, got %d", v)
		}
	}
}

func TestLavaletteSumsToValidCDF(t *testing.T) {
	d, err := NewLavalette(1.5, 20)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		v := d.Draw(rng)
		if v < 1 || v > 20 {
			t.Fatalf("draw %d out of range [1,20]", v)
		}
	}
}

func TestUserDistribution(t *testing.T) {
	d, err := NewUser([]float64{0, 1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		if v := d.Draw(rng); v != 2 {
			t.Fatalf("expected deterministic draw of 2, got %d", v)
		}
	}
}

func TestNewUserRejectsAllZero(t *testing.T) {
	if _, err := NewUser([]float64{0, 0}); err == nil {
		t.Errorf("expected error for all-zero probability vector")
	}
}

func TestRatesNonNegative(t *testing.T) {
	insD, _ := NewGeometric(0.3)
	delD, _ := NewGeometric(0.3)
	c := New(insD, delD, 0.05, 0.03, 100)
	rng := rand.New(rand.NewSource(5))
	c.EstimateMeanDeletionSize(50, rng)
	rIns, rDel := c.Rates(100, 5)
	if rIns < 0 || rDel < 0 {
		t.Errorf("expected non-negative rates, got rIns=%f rDel=%f", rIns, rDel)
	}
}

func TestSelectNonGapPositionSkipsGaps(t *testing.T) {
	insD, _ := NewGeometric(0.3)
	delD, _ := NewGeometric(0.3)
	c := New(insD, delD, 0.05, 0.03, 100)
	rng := rand.New(rand.NewSource(6))
	isGap := func(p int) bool { return p == 0 || p == 1 }
	for i := 0; i < 50; i++ {
		p, err := c.SelectNonGapPosition(rng, 3, isGap)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if isGap(p) {
			t.Errorf("selected gap position %d", p)
		}
	}
}

func TestSelectNonGapPositionErrorsWhenAllGaps(t *testing.T) {
	insD, _ := NewGeometric(0.3)
	delD, _ := NewGeometric(0.3)
	c := New(insD, delD, 0.05, 0.03, 10)
	rng := rand.New(rand.NewSource(7))
	isGap := func(int) bool { return true }
	if _, err := c.SelectNonGapPosition(rng, 5, isGap); err == nil {
		t.Errorf("expected error when every position is a gap")
	}
}

func TestSpliceInsertion(t *testing.T) {
	seq := []uint16{1, 2, 3, 4}
	out := SpliceInsertion(seq, 2, []uint16{9, 9})
	want := []uint16{1, 2, 9, 9, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestApplyDeletionStopsAtK(t *testing.T) {
	seq := []uint16{1, 2, 3, 4, 5}
	isGap := func(s uint16) bool { return s == 99 }
	replaced := ApplyDeletion(seq, 0, 3, 99, isGap, nil)
	if replaced != 3 {
		t.Fatalf("expected 3 replaced, got %d", replaced)
	}
	want := []uint16{99, 99, 99, 4, 5}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, seq[i], want[i])
		}
	}
}

func TestApplyDeletionSkipsExistingGaps(t *testing.T) {
	seq := []uint16{99, 1, 2, 3}
	isGap := func(s uint16) bool { return s == 99 }
	replaced := ApplyDeletion(seq, 0, 2, 99, isGap, nil)
	if replaced != 2 {
		t.Fatalf("expected 2 replaced, got %d", replaced)
	}
	want := []uint16{99, 99, 99, 3}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, seq[i], want[i])
		}
	}
}
