package indel

import (
	"fmt"
	"math"
	"math/rand"
)

// DistKind selects the family an indel length is drawn from.
type DistKind int

const (
	NegBin DistKind = iota
	Zipf
	Lavalette
	Geometric
	User
)

func (k DistKind) String() string {
	switch k {
	case NegBin:
		return "NEG_BIN"
	case Zipf:
		return "ZIPF"
	case Lavalette:
		return "LAV"
	case Geometric:
		return "GEO"
	case User:
		return "USER"
	default:
		return fmt.Sprintf("DistKind(%d)", int(k))
	}
}

// Dist is a sampler for indel event lengths. Every kind shifts its draw so
// the result is at least 1; callers still apply the rejection-loop
// protocol themselves so every distribution kind is handled uniformly.
type Dist struct {
	kind DistKind

	// NegBin/Geometric
	p float64
	r int

	// Zipf
	zipf *rand.Zipf

	// Lavalette
	lavCDF []float64 // cumulative, length M
	lavMax int

	// User
	userCDF []float64
}

// NewNegBin builds a negative-binomial length distribution: the number of
// Geometric(p) failures summed over r independent trials, shifted by 1 so
// the minimum drawable length is 1.
func NewNegBin(r int, p float64) (*Dist, error) {
	if r < 1 {
		return nil, fmt.Errorf("NEG_BIN requires r >= 1, got %d", r)
	}
	if p <= 0 || p >= 1 {
		return nil, fmt.Errorf("NEG_BIN requires 0 < p < 1, got %f", p)
	}
	return &Dist{kind: NegBin, r: r, p: p}, nil
}

// NewGeometric builds a geometric length distribution with success
// probability p, shifted so the minimum drawable length is 1.
func NewGeometric(p float64) (*Dist, error) {
	if p <= 0 || p >= 1 {
		return nil, fmt.Errorf("GEO requires 0 < p < 1, got %f", p)
	}
	return &Dist{kind: Geometric, p: p}, nil
}

// NewZipf builds a Zipf-distributed length sampler over [1, imax+1] via
// math/rand's own Zipf generator (math/rand's native [0, imax] support,
// shifted up by one).
func NewZipf(rng *rand.Rand, s, v float64, imax uint64) (*Dist, error) {
	if s <= 1 {
		return nil, fmt.Errorf("ZIPF requires s > 1, got %f", s)
	}
	z := rand.NewZipf(rng, s, v, imax)
	if z == nil {
		return nil, fmt.Errorf("invalid ZIPF parameters (s=%f v=%f imax=%d)", s, v, imax)
	}
	return &Dist{kind: Zipf, zipf: z}, nil
}

// NewLavalette builds the Lavalette indel-length distribution used by
// several alignment simulators: P(i) is proportional to
// (i * max / (max - i + 1))^-a for i in [1, max].
func NewLavalette(a float64, max int) (*Dist, error) {
	if max < 1 {
		return nil, fmt.Errorf("LAV requires max >= 1, got %d", max)
	}
	weights := make([]float64, max)
	total := 0.0
	for i := 1; i <= max; i++ {
		w := math.Pow(float64(i)*float64(max)/float64(max-i+1), -a)
		weights[i-1] = w
		total += w
	}
	cdf := make([]float64, max)
	acc := 0.0
	for i, w := range weights {
		acc += w / total
		cdf[i] = acc
	}
	return &Dist{kind: Lavalette, lavCDF: cdf, lavMax: max}, nil
}

// NewUser builds a distribution over [1, len(probs)] from an explicit,
// caller-normalized probability vector.
func NewUser(probs []float64) (*Dist, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("USER distribution requires at least one probability")
	}
	total := 0.0
	for _, p := range probs {
		if p < 0 {
			return nil, fmt.Errorf("USER distribution probabilities must be non-negative")
		}
		total += p
	}
	if total <= 0 {
		return nil, fmt.Errorf("USER distribution probabilities must sum to a positive value")
	}
	cdf := make([]float64, len(probs))
	acc := 0.0
	for i, p := range probs {
		acc += p / total
		cdf[i] = acc
	}
	return &Dist{kind: User, userCDF: cdf}, nil
}

// Draw returns one sample; every known kind returns a value >= 1.
func (d *Dist) Draw(rng *rand.Rand) int {
	switch d.kind {
	case NegBin:
		total := 0
		for i := 0; i < d.r; i++ {
			total += geometricSample(rng, d.p)
		}
		return total + 1
	case Geometric:
		return geometricSample(rng, d.p) + 1
	case Zipf:
		return int(d.zipf.Uint64()) + 1
	case Lavalette:
		return sampleCDF(rng, d.lavCDF) + 1
	case User:
		return sampleCDF(rng, d.userCDF) + 1
	default:
		return 0
	}
}

func geometricSample(rng *rand.Rand, p float64) int {
	u := rng.Float64()
	if u >= 1 {
		u = 1 - 1e-15
	}
	return int(math.Floor(math.Log(1-u) / math.Log(1-p)))
}

func sampleCDF(rng *rand.Rand, cdf []float64) int {
	u := rng.Float64()
	for i, c := range cdf {
		if u <= c {
			return i
		}
	}
	return len(cdf) - 1
}
