package catalog

import (
	"math"
	"testing"
)

func TestNewDNAJC69StationaryAndPMatrixRowsSumToOne(t *testing.T) {
	m, err := NewDNA(JC69, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for _, f := range m.Freqs(0) {
		if math.Abs(f-0.25) > 1e-9 {
			t.Errorf("expected equal frequencies for JC69, got %v", m.Freqs(0))
		}
	}
	p := m.PMatrix(0, 1.0)
	for i, row := range p {
		sum := 0.0
		for _, v := range row {
			if v < 0 {
				t.Errorf("negative transition probability at row %d", i)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("row %d does not sum to 1: got %f", i, sum)
		}
	}
}

func TestNewDNAZeroLengthBranchIsIdentity(t *testing.T) {
	m, err := NewDNA(JC69, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	p := m.PMatrix(0, 0)
	for i, row := range p {
		for j, v := range row {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(v-want) > 1e-9 {
				t.Errorf("P(0)[%d][%d] = %f, want %f", i, j, v, want)
			}
		}
	}
}

func TestNewDNAGTRRequiresSixRates(t *testing.T) {
	if _, err := NewDNA(GTR, []float64{0.25, 0.25, 0.25, 0.25}, []float64{1, 2, 3}); err == nil {
		t.Errorf("expected error for incomplete GTR rate vector")
	}
}

func TestNewDNARejectsBadFrequencies(t *testing.T) {
	if _, err := NewDNA(GTR, []float64{0.5, 0.5, 0.5, 0.5}, []float64{1, 1, 1, 1, 1, 1}); err == nil {
		t.Errorf("expected error for frequencies not summing to 1")
	}
}

func TestNewMixtureRequiresMatchingCounts(t *testing.T) {
	c1, _ := NewDNA(JC69, nil, nil)
	if _, err := NewMixture([]*Catalog{c1}, []float64{0.5, 0.5}, nil); err == nil {
		t.Errorf("expected error for mismatched component/weight counts")
	}
}

func TestNewMixtureMixtureClass(t *testing.T) {
	c1, _ := NewDNA(JC69, nil, nil)
	c2, _ := NewDNA(K80, nil, []float64{2.0})
	mix, err := NewMixture([]*Catalog{c1, c2}, []float64{0.5, 0.5}, func(site int) int { return site % 2 })
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !mix.IsMixture() {
		t.Errorf("expected IsMixture true for a two-component catalog")
	}
	if mix.MixtureClass(0) != 0 || mix.MixtureClass(1) != 1 {
		t.Errorf("unexpected mixture class mapping")
	}
}

func TestWithDNAErrorRequiresMatchingCount(t *testing.T) {
	c1, _ := NewDNA(JC69, nil, nil)
	if _, err := c1.WithDNAError([]float64{0.01, 0.02}); err == nil {
		t.Errorf("expected error for dna error probability count mismatch")
	}
	withErr, err := c1.WithDNAError([]float64{0.01})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !withErr.ContainsDNAError() {
		t.Errorf("expected ContainsDNAError true")
	}
	if withErr.DNAErrProb(0) != 0.01 {
		t.Errorf("expected DNAErrProb 0.01, got %f", withErr.DNAErrProb(0))
	}
}

func TestLogLikelihoodAllConstant(t *testing.T) {
	m, _ := NewDNA(JC69, nil, nil)
	ll := m.LogLikelihoodAllConstant(10)
	if len(ll) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(ll))
	}
	want := 10 * math.Log(0.25)
	for _, v := range ll {
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("got %f, want %f", v, want)
		}
	}
}

func TestSetAscertainmentRoundTrip(t *testing.T) {
	m, _ := NewDNA(JC69, nil, nil)
	if m.HasAscertainment() {
		t.Fatalf("expected ascertainment off by default")
	}
	if err := m.SetAscertainment(true); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !m.HasAscertainment() {
		t.Errorf("expected ascertainment on after SetAscertainment(true)")
	}
}
