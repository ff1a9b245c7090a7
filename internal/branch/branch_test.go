package branch

import (
	"math/rand"
	"testing"

	"github.com/evolbioinfo/alisim/internal/indel"
	"github.com/evolbioinfo/alisim/internal/modeladapter/catalog"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
)

const unknown = uint16(4)

func TestEvolveEdgeZeroLengthIsIdentity(t *testing.T) {
	model, _ := catalog.NewDNA(catalog.JC69, nil, nil)
	s := New(model, nil, nil, unknown)
	parent := []uint16{0, 1, 2, 3, unknown}
	rng := rand.New(rand.NewSource(1))
	child, gaps, err := s.EvolveEdge(parent, 0, 1, rateprofile.Empty(), TransProb, rng)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if gaps != 0 {
		t.Errorf("expected 0 gaps for zero-length branch")
	}
	for i := range parent {
		if child[i] != parent[i] {
			t.Errorf("position %d: got %d, want %d", i, child[i], parent[i])
		}
	}
}

func TestEvolveEdgeTransProbPreservesUnknown(t *testing.T) {
	model, _ := catalog.NewDNA(catalog.JC69, nil, nil)
	s := New(model, nil, nil, unknown)
	parent := make([]uint16, 100)
	parent[5] = unknown
	rng := rand.New(rand.NewSource(2))
	child, _, err := s.EvolveEdge(parent, 0.5, 1, rateprofile.Empty(), TransProb, rng)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if child[5] != unknown {
		t.Errorf("expected UNKNOWN to propagate through TRANS_PROB")
	}
}

func TestEvolveEdgeRateMatrixNoIndelsNeverProducesGaps(t *testing.T) {
	model, _ := catalog.NewDNA(catalog.JC69, nil, nil)
	s := New(model, nil, nil, unknown)
	parent := make([]uint16, 50)
	rng := rand.New(rand.NewSource(3))
	child, gaps, err := s.EvolveEdge(parent, 0.01, 1, rateprofile.Empty(), RateMatrix, rng)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if gaps != 0 {
		t.Errorf("expected 0 gaps with indels disabled")
	}
	if len(child) != len(parent) {
		t.Errorf("expected length to stay %d, got %d", len(parent), len(child))
	}
}

func TestEvolveEdgeRateMatrixWithIndelsCanChangeLength(t *testing.T) {
	model, _ := catalog.NewDNA(catalog.JC69, nil, nil)
	insD, _ := indel.NewGeometric(0.3)
	delD, _ := indel.NewGeometric(0.3)
	ic := indel.New(insD, delD, 0.5, 0.0, 100)
	rng := rand.New(rand.NewSource(4))
	ic.EstimateMeanDeletionSize(20, rng)

	s := New(model, ic, nil, unknown)
	parent := make([]uint16, 50)
	child, _, err := s.EvolveEdge(parent, 2.0, 1, rateprofile.Empty(), RateMatrix, rng)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(child) < len(parent) {
		t.Errorf("expected insertions to grow or preserve length, got %d < %d", len(child), len(parent))
	}
}

func TestSelectMethodHeterotachyForcesTransProb(t *testing.T) {
	m := SelectMethod(0.0001, 1, 10, false, nil, true, false, false)
	if m != TransProb {
		t.Errorf("expected heterotachy to force TRANS_PROB")
	}
}

func TestSelectMethodLongBranchUsesTransProb(t *testing.T) {
	m := SelectMethod(1000, 1, 10, false, nil, false, false, false)
	if m != TransProb {
		t.Errorf("expected a long branch to select TRANS_PROB")
	}
}

func TestSelectMethodShortBranchUsesRateMatrix(t *testing.T) {
	m := SelectMethod(0.0000001, 1, 10, false, nil, false, false, false)
	if m != RateMatrix {
		t.Errorf("expected a short branch to select RATE_MATRIX")
	}
}

func TestTauBreakpoints(t *testing.T) {
	if tau(50, false) != 2.226/50 {
		t.Errorf("unexpected tau for small L")
	}
	if tau(2_000_000, false) != 1.0/2_000_000 {
		t.Errorf("unexpected tau for large L")
	}
}
