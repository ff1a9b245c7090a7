// Package rateprofile builds the per-site rate and mixture-class vectors
// consumed by BranchSampler. An empty Profile means no among-site rate
// heterogeneity: every site evolves at rate 1 under mixture class 0.
package rateprofile

import (
	"fmt"
	"math"
	"math/rand"
)

// Kind selects the family of among-site rate heterogeneity.
type Kind int

const (
	// None disables rate heterogeneity: Profile.Rates and Profile.Classes
	// are both empty, and every site uses class 0 at rate 1.
	None Kind = iota
	// DiscreteGamma draws a fixed number of discrete rate categories from
	// a gamma distribution with mean 1 and computes per-site weights by
	// the usual discretized-gamma quadrature (category means).
	DiscreteGamma
	// Fused reuses an externally supplied per-site mixture-class vector
	// (e.g. when mixture weights double as rate categories).
	Fused
)

// Profile is the output of building a rate profile: parallel per-site rate
// multipliers and mixture-class indices. Both are nil when Kind is None.
type Profile struct {
	Kind    Kind
	Rates   []float64 // r[i], nil when Kind == None
	Classes []int     // m[i], nil when Kind == None
}

// Len reports the number of sites the profile covers, inferred from
// whichever of Rates/Classes is non-nil, or zero for a None profile.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	if p.Rates != nil {
		return len(p.Rates)
	}
	return len(p.Classes)
}

// RateAt returns the rate multiplier for site i, defaulting to 1 when the
// profile carries no rate vector.
func (p *Profile) RateAt(i int) float64 {
	if p == nil || p.Rates == nil {
		return 1
	}
	return p.Rates[i]
}

// ClassAt returns the mixture-class index for site i, defaulting to 0 when
// the profile carries no class vector.
func (p *Profile) ClassAt(i int) int {
	if p == nil || p.Classes == nil {
		return 0
	}
	return p.Classes[i]
}

// Empty builds the degenerate profile used when rate heterogeneity is
// disabled.
func Empty() *Profile { return &Profile{Kind: None} }

// NewDiscreteGamma builds a Profile of length l by sampling each site's
// rate category uniformly among ncat discretized-gamma categories (shape
// alpha, mean 1), the same free-rate-sampling approach
// fredericlemoine-goalign's per-site iteration idiom uses for "each
// position gets an independently drawn attribute" operators. Only the
// rate vector is filled: the categories are not mixture classes, so
// every site reports mixture class 0.
func NewDiscreteGamma(l int, ncat int, alpha float64, rng *rand.Rand) (*Profile, error) {
	if l <= 0 {
		return nil, fmt.Errorf("rate profile length must be positive, got %d", l)
	}
	if ncat < 1 {
		return nil, fmt.Errorf("gamma category count must be at least 1, got %d", ncat)
	}
	if alpha <= 0 {
		return nil, fmt.Errorf("gamma shape alpha must be positive, got %f", alpha)
	}
	means := gammaCategoryMeans(ncat, alpha)

	rates := make([]float64, l)
	for i := 0; i < l; i++ {
		c := rng.Intn(ncat)
		rates[i] = means[c]
	}
	return &Profile{Kind: DiscreteGamma, Rates: rates}, nil
}

// NewFused builds a Profile from a caller-supplied site->class mapping
// (e.g. mixture weights that double as rate categories), with per-class
// rate multipliers.
func NewFused(classes []int, classRate []float64) (*Profile, error) {
	for i, c := range classes {
		if c < 0 || c >= len(classRate) {
			return nil, fmt.Errorf("site %d has out-of-range class %d (have %d rates)", i, c, len(classRate))
		}
	}
	rates := make([]float64, len(classes))
	for i, c := range classes {
		rates[i] = classRate[c]
	}
	return &Profile{Kind: Fused, Rates: rates, Classes: append([]int(nil), classes...)}, nil
}

// gammaCategoryMeans computes the mean rate of each of ncat equal-probability
// categories of a Gamma(alpha, alpha) distribution (mean 1), using the
// standard discretized-gamma quadrature via the categories' equal-quantile
// boundaries and a numerical integral of the upper incomplete gamma
// function. This uses a series/continued-fraction approximation rather
// than an external special-functions package, matching the project's
// preference for math/rand-and-stdlib-only numerics (internal/indel
// follows the same policy for its length distributions).
func gammaCategoryMeans(ncat int, alpha float64) []float64 {
	if ncat == 1 {
		return []float64{1}
	}
	means := make([]float64, ncat)
	boundaries := make([]float64, ncat+1)
	boundaries[0] = 0
	boundaries[ncat] = math.Inf(1)
	for i := 1; i < ncat; i++ {
		q := float64(i) / float64(ncat)
		boundaries[i] = gammaInvCDF(q, alpha)
	}
	for i := 0; i < ncat; i++ {
		lo, hi := boundaries[i], boundaries[i+1]
		means[i] = float64(ncat) * (gammaUpperIntegral(lo, alpha) - gammaUpperIntegral(hi, alpha))
	}
	return means
}

// gammaUpperIntegral returns the mean-contribution integral
// integral_x^inf t*gammapdf(t, alpha, alpha) dt, expressed via the
// regularized upper incomplete gamma function at shape alpha+1, scaled so
// overall mean is 1.
func gammaUpperIntegral(x float64, alpha float64) float64 {
	if math.IsInf(x, 1) {
		return 0
	}
	return upperIncompleteGammaRegularized(alpha+1, x*alpha)
}

// upperIncompleteGammaRegularized computes Q(s, x) = Gamma(s,x)/Gamma(s)
// via a series expansion for x < s+1 and a continued fraction otherwise
// (the standard Numerical-Recipes split), sufficient precision for
// discretized-gamma rate categories.
func upperIncompleteGammaRegularized(s, x float64) float64 {
	if x <= 0 {
		return 1
	}
	if x < s+1 {
		return 1 - lowerSeries(s, x)
	}
	return continuedFraction(s, x)
}

func lowerSeries(s, x float64) float64 {
	if x == 0 {
		return 0
	}
	ap := s
	sum := 1 / s
	del := sum
	logGammaS := lgamma(s)
	for n := 0; n < 200; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*1e-14 {
			break
		}
	}
	return sum * math.Exp(-x+s*math.Log(x)-logGammaS)
}

func continuedFraction(s, x float64) float64 {
	const fpmin = 1e-300
	logGammaS := lgamma(s)
	b := x + 1 - s
	c := 1 / fpmin
	d := 1 / b
	h := d
	for i := 1; i < 200; i++ {
		an := -float64(i) * (float64(i) - s)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = b + an/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < 1e-14 {
			break
		}
	}
	return math.Exp(-x+s*math.Log(x)-logGammaS) * h
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// gammaInvCDF inverts the Gamma(alpha, alpha) CDF at quantile q via
// bisection over upperIncompleteGammaRegularized, adequate for the
// handful of category boundaries a rate profile needs.
func gammaInvCDF(q float64, alpha float64) float64 {
	lo, hi := 0.0, 1.0
	for upperIncompleteGammaRegularized(alpha, hi*alpha) > 1-q {
		hi *= 2
		if hi > 1e6 {
			break
		}
	}
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if upperIncompleteGammaRegularized(alpha, mid*alpha) > 1-q {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
