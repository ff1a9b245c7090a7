package rateprofile

import (
	"math"
	"math/rand"
	"testing"
)

func TestEmptyProfileDefaults(t *testing.T) {
	p := Empty()
	if p.Len() != 0 {
		t.Errorf("expected zero length for empty profile")
	}
	if p.RateAt(5) != 1 {
		t.Errorf("expected default rate 1, got %f", p.RateAt(5))
	}
	if p.ClassAt(5) != 0 {
		t.Errorf("expected default class 0, got %d", p.ClassAt(5))
	}
}

func TestNewDiscreteGammaLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p, err := NewDiscreteGamma(50, 4, 0.5, rng)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.Len() != 50 {
		t.Errorf("expected length 50, got %d", p.Len())
	}
	for i := 0; i < 50; i++ {
		c := p.ClassAt(i)
		if c < 0 || c >= 4 {
			t.Errorf("class %d out of range at site %d", c, i)
		}
		if p.RateAt(i) <= 0 {
			t.Errorf("expected positive rate at site %d, got %f", i, p.RateAt(i))
		}
	}
}

func TestGammaCategoryMeansAverageToOne(t *testing.T) {
	means := gammaCategoryMeans(4, 0.5)
	if len(means) != 4 {
		t.Fatalf("expected 4 category means, got %d", len(means))
	}
	sum := 0.0
	for _, m := range means {
		sum += m
	}
	avg := sum / 4
	if math.Abs(avg-1) > 0.05 {
		t.Errorf("expected category means to average to ~1, got %f", avg)
	}
}

func TestNewDiscreteGammaRejectsBadParams(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := NewDiscreteGamma(0, 4, 0.5, rng); err == nil {
		t.Errorf("expected error for non-positive length")
	}
	if _, err := NewDiscreteGamma(10, 0, 0.5, rng); err == nil {
		t.Errorf("expected error for zero categories")
	}
	if _, err := NewDiscreteGamma(10, 4, 0, rng); err == nil {
		t.Errorf("expected error for non-positive alpha")
	}
}

func TestNewFusedValidatesClasses(t *testing.T) {
	if _, err := NewFused([]int{0, 1, 2}, []float64{1, 2}); err == nil {
		t.Errorf("expected error for out-of-range class index")
	}
	p, err := NewFused([]int{0, 1, 0}, []float64{0.5, 1.5})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.RateAt(1) != 1.5 {
		t.Errorf("expected rate 1.5 at site 1, got %f", p.RateAt(1))
	}
}
