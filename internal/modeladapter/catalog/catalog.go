// Package catalog is the simulator's built-in, minimal substitution-model
// implementation: just enough JC69/K80/HKY/GTR-family and DNA-error support
// to drive internal/branch, internal/ratio, and internal/filter end to end.
// See DESIGN.md for why no wider catalog (e.g. codon models) is attempted
// here.
package catalog

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// component is one rate-matrix / frequency-vector pair, i.e. one mixture
// class.
type component struct {
	freqs  []float64
	q      *mat.Dense // normalized instantaneous rate matrix, mean rate 1
	weight float64
}

// Catalog is a concrete modeladapter.Model built from one or more
// reversible-model components.
type Catalog struct {
	nstates       int
	components    []component
	heterotachy   bool
	dnaError      bool
	dnaErrorProb  []float64 // per mixture
	ascertainment bool
	classOf       func(site int) int
}

// DNAKind selects among the common nucleotide substitution models.
type DNAKind int

const (
	JC69 DNAKind = iota
	K80
	HKY
	GTR
)

// NewDNA builds a single-component nucleotide substitution model.
//
//   - JC69 ignores freqs and rates (equal frequencies, equal rates).
//   - K80 ignores freqs (equal frequencies), uses rates[0] as
//     transition/transversion kappa.
//   - HKY uses freqs and rates[0] as kappa.
//   - GTR uses freqs and all six rates[0..5] (AC,AG,AT,CG,CT,GT).
func NewDNA(kind DNAKind, freqs []float64, rates []float64) (*Catalog, error) {
	const n = 4
	f := freqs
	if f == nil || kind == JC69 || kind == K80 {
		f = []float64{0.25, 0.25, 0.25, 0.25}
	}
	if len(f) != n {
		return nil, fmt.Errorf("dna model requires 4 frequencies, got %d", len(f))
	}
	if err := validateFreqs(f); err != nil {
		return nil, err
	}

	exch := make([][6]float64, 1)
	switch kind {
	case JC69:
		exch[0] = [6]float64{1, 1, 1, 1, 1, 1}
	case K80, HKY:
		if len(rates) < 1 {
			return nil, fmt.Errorf("kappa rate parameter required")
		}
		kappa := rates[0]
		// order: AC, AG, AT, CG, CT, GT -- transitions (AG, CT) get kappa.
		exch[0] = [6]float64{1, kappa, 1, 1, kappa, 1}
	case GTR:
		if len(rates) < 6 {
			return nil, fmt.Errorf("gtr requires 6 exchangeability rates, got %d", len(rates))
		}
		copy(exch[0][:], rates[:6])
	default:
		return nil, fmt.Errorf("unknown dna model kind %v", kind)
	}

	q := buildGTRQ(f, exch[0])
	return &Catalog{
		nstates:    n,
		components: []component{{freqs: f, q: q, weight: 1}},
		classOf:    func(int) int { return 0 },
	}, nil
}

// NewMixture combines several single-component catalogs into one mixture
// model with the given weights. When classOf is derived from a per-site
// rate profile rather than sampled independently, the mixture classes are
// said to be "fused" with rate heterogeneity.
func NewMixture(components []*Catalog, weights []float64, classOf func(site int) int) (*Catalog, error) {
	if len(components) != len(weights) {
		return nil, fmt.Errorf("component/weight count mismatch: %d vs %d", len(components), len(weights))
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("mixture requires at least one component")
	}
	n := components[0].nstates
	merged := make([]component, 0, len(components))
	for i, c := range components {
		if len(c.components) != 1 {
			return nil, fmt.Errorf("mixture components must themselves be single-component catalogs")
		}
		if c.nstates != n {
			return nil, fmt.Errorf("mixture components must share a state space")
		}
		comp := c.components[0]
		comp.weight = weights[i]
		merged = append(merged, comp)
	}
	if classOf == nil {
		classOf = func(int) int { return 0 }
	}
	return &Catalog{nstates: n, components: merged, classOf: classOf}, nil
}

// WithDNAError returns a copy of c with per-mixture DNA-error probabilities
// attached. These are applied at leaves after sequence evolution, once per
// site, independently of the substitution process.
func (c *Catalog) WithDNAError(probPerMix []float64) (*Catalog, error) {
	if len(probPerMix) != len(c.components) {
		return nil, fmt.Errorf("dna error probability count (%d) must match mixture count (%d)", len(probPerMix), len(c.components))
	}
	cp := *c
	cp.dnaError = true
	cp.dnaErrorProb = probPerMix
	return &cp, nil
}

// WithHeterotachy marks the catalog as branch-specific multi-rate
// (heterotachy: different branches of the tree evolving under different
// rate regimes), forcing BranchSampler's method selection to TRANS_PROB
// regardless of branch length.
func (c *Catalog) WithHeterotachy() *Catalog {
	cp := *c
	cp.heterotachy = true
	return &cp
}

func (c *Catalog) NStates() int     { return c.nstates }
func (c *Catalog) NMixtures() int   { return len(c.components) }
func (c *Catalog) IsMixture() bool  { return len(c.components) > 1 }
func (c *Catalog) IsHeterotachy() bool { return c.heterotachy }
func (c *Catalog) ContainsDNAError() bool { return c.dnaError }

func (c *Catalog) Freqs(mix int) []float64 {
	return append([]float64(nil), c.components[mix].freqs...)
}

func (c *Catalog) SetStateFrequency(mix int, freqs []float64) error {
	if err := validateFreqs(freqs); err != nil {
		return err
	}
	if len(freqs) != c.nstates {
		return fmt.Errorf("expected %d frequencies, got %d", c.nstates, len(freqs))
	}
	c.components[mix].freqs = append([]float64(nil), freqs...)
	return nil
}

func (c *Catalog) QMatrix(mix int) [][]float64 {
	q := c.components[mix].q
	n, _ := q.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = q.At(i, j)
		}
	}
	return out
}

func (c *Catalog) PMatrix(mix int, t float64) [][]float64 {
	return transitionMatrix(c.components[mix].q, t)
}

func (c *Catalog) MixtureClass(site int) int { return c.classOf(site) }

func (c *Catalog) DNAErrProb(mix int) float64 {
	if !c.dnaError || mix >= len(c.dnaErrorProb) {
		return 0
	}
	return c.dnaErrorProb[mix]
}

func (c *Catalog) HasAscertainment() bool { return c.ascertainment }

func (c *Catalog) SetAscertainment(on bool) error {
	c.ascertainment = on
	return nil
}

// LogLikelihoodAllConstant returns, for each state s, the log likelihood
// that nTaxa independent leaves all carry s: nTaxa*log(freq[s]) under a
// star-tree / infinite-length approximation, from mixture class 0's
// frequencies. Branch lengths play no part: internal/ratio sums the
// exponentiated values directly as p_const, with no per-branch
// correction.
func (c *Catalog) LogLikelihoodAllConstant(nTaxa int) []float64 {
	mix := 0
	freqs := c.components[mix].freqs
	out := make([]float64, len(freqs))
	for s, f := range freqs {
		if f <= 0 {
			out[s] = math.Inf(-1)
			continue
		}
		out[s] = float64(nTaxa) * math.Log(f)
	}
	return out
}

func validateFreqs(f []float64) error {
	sum := 0.0
	for _, v := range f {
		if v < 0 {
			return fmt.Errorf("negative frequency %f", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("frequencies must sum to 1, got %f", sum)
	}
	return nil
}

// buildGTRQ constructs a GTR-parameterized rate matrix from stationary
// frequencies and the six exchangeability rates (AC, AG, AT, CG, CT, GT),
// normalized so the expected substitution rate is 1 per unit branch
// length.
func buildGTRQ(freqs []float64, exch [6]float64) *mat.Dense {
	n := len(freqs)
	q := mat.NewDense(n, n, nil)
	idx := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	for k, pair := range idx {
		i, j := pair[0], pair[1]
		rate := exch[k] * freqs[j]
		q.Set(i, j, rate)
		q.Set(j, i, exch[k]*freqs[i])
	}
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				rowSum += q.At(i, j)
			}
		}
		q.Set(i, i, -rowSum)
	}
	meanRate := 0.0
	for i := 0; i < n; i++ {
		meanRate += freqs[i] * -q.At(i, i)
	}
	if meanRate > 0 {
		q.Scale(1/meanRate, q)
	}
	return q
}
