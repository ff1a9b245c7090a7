package simctx

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/evolbioinfo/alisim/internal/indel"
	"github.com/evolbioinfo/alisim/internal/modeladapter/catalog"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
)

// buildModel parses a model_spec string of the form "KIND" or
// "KIND:p1,p2,...", dispatching to catalog.NewDNA with the parameter
// layout catalog documents for each DNAKind. A trailing "+ASC" enables
// ascertainment-bias correction on the built model.
func buildModel(spec string, freqs []float64) (*catalog.Catalog, error) {
	if strings.HasSuffix(strings.ToUpper(spec), "+ASC") {
		m, err := buildModel(spec[:len(spec)-len("+ASC")], freqs)
		if err != nil {
			return nil, err
		}
		return m, m.SetAscertainment(true)
	}
	if spec == "" {
		spec = "JC69"
	}
	name, params, err := splitSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	switch strings.ToUpper(name) {
	case "JC69":
		return catalog.NewDNA(catalog.JC69, freqs, nil)
	case "K80":
		if len(params) != 1 {
			return nil, fmt.Errorf("%w: K80 requires one parameter (kappa)", ErrInvalidConfig)
		}
		return catalog.NewDNA(catalog.K80, freqs, params)
	case "HKY":
		if len(params) != 1 {
			return nil, fmt.Errorf("%w: HKY requires one parameter (kappa)", ErrInvalidConfig)
		}
		return catalog.NewDNA(catalog.HKY, freqs, params)
	case "GTR":
		if len(params) != 6 {
			return nil, fmt.Errorf("%w: GTR requires six exchangeability parameters", ErrInvalidConfig)
		}
		return catalog.NewDNA(catalog.GTR, freqs, params)
	default:
		return nil, fmt.Errorf("%w: unrecognized model_spec %q", ErrInvalidConfig, spec)
	}
}

// buildRateProfile parses a rate_heterogeneity_spec string: "NONE" (the
// default) or "GAMMA:ncat,alpha" for discrete-gamma rate categories.
func buildRateProfile(spec string, l int, rng *rand.Rand) (*rateprofile.Profile, error) {
	if spec == "" || strings.EqualFold(spec, "NONE") {
		return rateprofile.Empty(), nil
	}
	name, params, err := splitSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if !strings.EqualFold(name, "GAMMA") || len(params) != 2 {
		return nil, fmt.Errorf("%w: unrecognized rate_heterogeneity_spec %q", ErrInvalidConfig, spec)
	}
	ncat := int(params[0])
	alpha := params[1]
	return rateprofile.NewDiscreteGamma(l, ncat, alpha, rng)
}

// buildIndelDist parses an indel distribution spec: "KIND" or
// "KIND:p1,p2", dispatching to the indel.New* constructor matching
// indel.DistKind's own naming.
func buildIndelDist(spec string, rng *rand.Rand) (*indel.Dist, error) {
	name, params, err := splitSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	switch strings.ToUpper(name) {
	case "NEG_BIN":
		if len(params) != 2 {
			return nil, fmt.Errorf("%w: NEG_BIN requires two parameters (r, p)", ErrInvalidConfig)
		}
		return indel.NewNegBin(int(params[0]), params[1])
	case "ZIPF":
		if len(params) != 2 {
			return nil, fmt.Errorf("%w: ZIPF requires two parameters (s, v)", ErrInvalidConfig)
		}
		return indel.NewZipf(rng, params[0], params[1], uint64(1<<20))
	case "LAV":
		if len(params) != 2 {
			return nil, fmt.Errorf("%w: LAV requires two parameters (a, max)", ErrInvalidConfig)
		}
		return indel.NewLavalette(params[0], int(params[1]))
	case "GEO":
		if len(params) != 1 {
			return nil, fmt.Errorf("%w: GEO requires one parameter (p)", ErrInvalidConfig)
		}
		return indel.NewGeometric(params[0])
	case "USER":
		return indel.NewUser(params)
	default:
		return nil, fmt.Errorf("%w: unrecognized indel distribution %q", ErrInvalidConfig, spec)
	}
}

// splitSpec splits "NAME" or "NAME:v1,v2,..." into a name and its
// float64 parameters.
func splitSpec(spec string) (string, []float64, error) {
	parts := strings.SplitN(spec, ":", 2)
	name := parts[0]
	if len(parts) == 1 || parts[1] == "" {
		return name, nil, nil
	}
	fields := strings.Split(parts[1], ",")
	params := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("parsing parameter %q in spec %q: %w", f, spec, err)
		}
		params[i] = v
	}
	return name, params, nil
}
