package simctx

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/evolbioinfo/alisim/internal/branch"
	"github.com/evolbioinfo/alisim/internal/filter"
	"github.com/evolbioinfo/alisim/internal/genome"
	"github.com/evolbioinfo/alisim/internal/indel"
	"github.com/evolbioinfo/alisim/internal/modeladapter"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
	"github.com/evolbioinfo/alisim/internal/ratio"
	"github.com/evolbioinfo/alisim/internal/seqalpha"
	"github.com/evolbioinfo/alisim/internal/simtree"
	"github.com/evolbioinfo/alisim/internal/sink"
)

const defaultPositionRetryBound = 1000

// SimulatorCtx threads the three process-wide structures spec.md's
// concurrency model names (the insertion list, the global RNG, and the
// ModelAdapter) through every dataset replicate, plus the alphabet and
// output facilities every replicate shares. No singletons: everything
// downstream is handed an explicit reference into this struct.
type SimulatorCtx struct {
	RNG   *rand.Rand
	List  *genome.List
	Model modeladapter.Model

	Alphabet *seqalpha.Ctx
	Table    seqalpha.CharTable

	cfg Config

	warnMu sync.Mutex
	warned map[string]bool
}

// New validates cfg and builds the model, alphabet, and RNG a run needs.
func New(cfg Config) (*SimulatorCtx, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alpha, err := seqalpha.New(cfg.Alphabet, cfg.MorphStates)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	model, err := buildModel(cfg.ModelSpec, cfg.Freqs)
	if err != nil {
		return nil, err
	}
	s := &SimulatorCtx{
		RNG:      rand.New(rand.NewSource(cfg.Seed)),
		Model:    model,
		Alphabet: alpha,
		Table:    seqalpha.DefaultCharTable(alpha),
		cfg:      cfg,
		warned:   map[string]bool{},
	}
	if cfg.Freqs == nil && cfg.ModelSpec != "" && !equalFoldJC69(cfg.ModelSpec) {
		s.warnOnce("base-freqs", "base frequencies absent for unequal-frequency DNA model, using equal frequencies")
	}
	if err := ValidatePartitions(cfg.Partitions, targetLength(cfg)); err != nil {
		return nil, err
	}
	if len(cfg.Partitions) > 0 {
		s.cfg.Partitions = append([]Partition(nil), cfg.Partitions...)
		weights := make([]float64, len(s.cfg.Partitions))
		for i, p := range s.cfg.Partitions {
			weights[i] = p.Weight
		}
		normalized, changed := NormalizeWeights(weights)
		if changed {
			s.warnOnce("partition-rates", "partition rates renormalized to sum to 1")
			for i := range s.cfg.Partitions {
				s.cfg.Partitions[i].Weight = normalized[i]
			}
		}
	}
	return s, nil
}

func equalFoldJC69(spec string) bool {
	name, _, _ := splitSpec(spec)
	return strings.EqualFold(strings.TrimSuffix(strings.ToUpper(name), "+ASC"), "JC69")
}

func targetLength(cfg Config) int {
	if len(cfg.AncestralSequence) > cfg.SequenceLength {
		return len(cfg.AncestralSequence)
	}
	return cfg.SequenceLength
}

// warnOnce logs a recoverable-warning message the first time it is seen
// for a given key on this ctx, per spec's "emitted once" policy.
func (s *SimulatorCtx) warnOnce(key, format string, args ...any) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	if s.warned[key] {
		return
	}
	s.warned[key] = true
	log.Printf("warning: "+format, args...)
}

// Replicate is the outcome of simulating one dataset: the leaf names (in
// first-write order) and their final sequences, plus the fraction of
// simulated sites ConstantSiteFilter retained (1.0 when it did not run).
type Replicate struct {
	Names            []string
	Sequences        map[string][]uint16
	RetainedFraction float64
}

// Run simulates Config.NumDatasets replicates (treating 0 as 1) against
// the configured tree, returning one Replicate per dataset in order.
func (s *SimulatorCtx) Run(ctx context.Context) ([]Replicate, error) {
	n := s.cfg.NumDatasets
	if n <= 0 {
		n = 1
	}
	reps := make([]Replicate, 0, n)
	for i := 0; i < n; i++ {
		rep, err := s.runOne(ctx)
		if err != nil {
			return nil, fmt.Errorf("simctx: dataset %d: %w", i, err)
		}
		reps = append(reps, rep)
	}
	return reps, nil
}

func (s *SimulatorCtx) runOne(ctx context.Context) (Replicate, error) {
	cfg := s.cfg
	list := genome.NewList()
	s.List = list

	baseLen := targetLength(cfg)

	rho := 1.0
	if s.Model.HasAscertainment() {
		switch {
		case cfg.LengthRatioOverride > 0:
			rho = cfg.LengthRatioOverride
		default:
			var err error
			rho, err = ratio.Estimate(s.Model, len(cfg.Tree.Tips()))
			if err != nil {
				return Replicate{}, err
			}
		}
	}

	if err := simtree.PrepareRoot(cfg.Tree); err != nil {
		return Replicate{}, err
	}

	scale := cfg.BranchScale
	if scale == 0 {
		scale = 1
	}

	indelsEnabled := cfg.indelsEnabled()

	var names []string
	leaves := map[string][]uint16{}
	oversampledTotal := 0

	if len(cfg.Partitions) == 0 {
		oversampled := oversampledLength(baseLen, rho)
		oversampledTotal = oversampled

		profile, err := buildRateProfile(cfg.RateHetSpec, oversampled, s.RNG)
		if err != nil {
			return Replicate{}, err
		}
		var ic *indel.Controller
		if indelsEnabled {
			ic, err = s.buildIndelController(oversampled)
			if err != nil {
				return Replicate{}, err
			}
		}
		sampler := branch.New(s.Model, ic, list, s.Alphabet.Unknown)
		names, leaves, err = s.simulateSegment(ctx, list, sampler, s.Model, profile, segmentOpts{
			length:        oversampled,
			scale:         scale,
			indelsEnabled: indelsEnabled,
			ancestral:     cfg.AncestralSequence,
		})
		if err != nil {
			return Replicate{}, err
		}
	} else {
		// Partitions and indels cannot both be set (enforced by
		// Config.Validate), so every segment here evolves without an
		// IndelController, sharing only the (otherwise unused) insertion
		// list every simtree.Walker expects.
		for _, p := range cfg.Partitions {
			plen := p.End - p.Start
			poversampled := oversampledLength(plen, rho)
			oversampledTotal += poversampled

			pmodel := s.Model
			branchOverride := false
			if p.ModelSpec != "" {
				var err error
				pmodel, err = buildModel(p.ModelSpec, cfg.Freqs)
				if err != nil {
					return Replicate{}, fmt.Errorf("partition [%d,%d): %w", p.Start, p.End, err)
				}
				branchOverride = true
			}
			profile, err := buildRateProfile(cfg.RateHetSpec, poversampled, s.RNG)
			if err != nil {
				return Replicate{}, err
			}
			var ancestral []uint16
			if len(cfg.AncestralSequence) > 0 {
				ancestral = cfg.AncestralSequence[p.Start:p.End]
			}
			sampler := branch.New(pmodel, nil, list, s.Alphabet.Unknown)
			pnames, pleaves, err := s.simulateSegment(ctx, list, sampler, pmodel, profile, segmentOpts{
				length:         poversampled,
				scale:          scale * p.Weight,
				branchOverride: branchOverride,
				ancestral:      ancestral,
			})
			if err != nil {
				return Replicate{}, fmt.Errorf("partition [%d,%d): %w", p.Start, p.End, err)
			}
			if names == nil {
				names = pnames
			}
			for _, n := range pnames {
				leaves[n] = append(leaves[n], pleaves[n]...)
			}
		}
	}

	if rho <= 1 {
		return Replicate{Names: names, Sequences: leaves, RetainedFraction: 1}, nil
	}
	target := filter.TargetLength(oversampledTotal, rho)
	res, err := filter.Apply(names, leaves, s.Alphabet.Unknown, target, indelsEnabled)
	if err != nil {
		return Replicate{}, fmt.Errorf("insufficient variant sites under ascertainment correction: %w", err)
	}
	return Replicate{
		Names:            names,
		Sequences:        res.Sequences,
		RetainedFraction: float64(res.NumKept) / float64(oversampledTotal),
	}, nil
}

// oversampledLength inflates base by rho, per-partition or whole-alignment,
// whenever ascertainment correction calls for oversampling.
func oversampledLength(base int, rho float64) int {
	if rho <= 1 {
		return base
	}
	return int(math.Ceil(float64(base) * rho))
}

// buildIndelController assembles the IndelController for a non-partitioned
// run of the given oversampled length.
func (s *SimulatorCtx) buildIndelController(oversampled int) (*indel.Controller, error) {
	cfg := s.cfg
	insDist, err := buildIndelDist(cfg.InsertionDistSpec, s.RNG)
	if err != nil {
		return nil, err
	}
	delDist, err := buildIndelDist(cfg.DeletionDistSpec, s.RNG)
	if err != nil {
		return nil, err
	}
	bound := cfg.PositionRetryBound
	if bound <= 0 {
		bound = defaultPositionRetryBound
	}
	ic := indel.New(insDist, delDist, cfg.InsertionRatio, cfg.DeletionRatio, bound)
	ic.EstimateMeanDeletionSize(oversampled, s.RNG)
	return ic, nil
}

// segmentOpts parameterizes one simtree.Walker pass: the whole alignment
// when no partitions are configured, or one partition's site range when
// they are.
type segmentOpts struct {
	length         int
	scale          float64
	branchOverride bool
	indelsEnabled  bool
	ancestral      []uint16
}

// simulateSegment runs one full TreeWalker traversal producing a complete
// set of leaf sequences for opts.length sites, via its own Sink so that
// partitioned runs can concatenate segments independently while still
// sharing list (and, in the non-partitioned case, an IndelController tied
// to that same list).
func (s *SimulatorCtx) simulateSegment(ctx context.Context, list *genome.List, sampler *branch.Sampler, model modeladapter.Model, profile *rateprofile.Profile, opts segmentOpts) ([]string, map[string][]uint16, error) {
	cfg := s.cfg
	collector := sink.NewCollector()
	defer collector.Close()

	walkCfg := simtree.Config{
		Scale:             opts.scale,
		ThresholdOverride: cfg.SimulationThresh,
		BranchOverride:    opts.branchOverride,
		Heterotachy:       model.IsHeterotachy(),
		FundiProportion:   cfg.FundiProportion,
		FundiTaxa:         cfg.FundiTaxonSet,
		WriteInternal:     cfg.WriteInternalSequences,
	}

	walker := simtree.New(cfg.Tree, sampler, list, model, profile, s.Alphabet.Unknown, opts.indelsEnabled, walkCfg, collector)
	if err := walker.SetRootSequence(opts.ancestral, opts.length, s.RNG); err != nil {
		return nil, nil, err
	}
	if err := walker.Run(ctx, s.RNG); err != nil {
		return nil, nil, err
	}
	names, leaves := collector.Leaves()
	return names, leaves, nil
}

// WriteOutputs writes each replicate to "<prefix>.<ext>" (single dataset)
// or "<prefix>.<index>.<ext>" (multiple datasets), gzip-compressed when
// configured, plus an aggregate diagnostic plot of retained-site fraction
// across replicates when ascertainment correction is active.
func (s *SimulatorCtx) WriteOutputs(reps []Replicate) error {
	cfg := s.cfg
	ext := "phy"
	if cfg.OutputFormat == sink.FASTA {
		ext = "fasta"
	}
	fractions := make([]float64, 0, len(reps))
	for i, rep := range reps {
		path := fmt.Sprintf("%s.%s", cfg.OutputPrefix, ext)
		if len(reps) > 1 {
			path = fmt.Sprintf("%s.%d.%s", cfg.OutputPrefix, i, ext)
		}
		if cfg.Compression {
			path += ".gz"
		}
		w, err := sink.OpenOutput(path, cfg.Compression)
		if err != nil {
			return fmt.Errorf("simctx: opening %s: %w", path, err)
		}
		if err := sink.WriteAlignment(w, cfg.OutputFormat, s.Table, rep.Names, rep.Sequences); err != nil {
			w.Close()
			return fmt.Errorf("simctx: writing %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("simctx: closing %s: %w", path, err)
		}
		fractions = append(fractions, rep.RetainedFraction)
	}
	if s.Model.HasAscertainment() && len(reps) > 0 {
		if err := sink.WriteDiagnosticPlot(fractions, cfg.OutputPrefix); err != nil {
			return fmt.Errorf("simctx: writing diagnostic plot: %w", err)
		}
	}
	return nil
}
