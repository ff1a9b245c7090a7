// Package simctx wires BranchSampler, GenomeTree, LengthRatioEstimator,
// ConstantSiteFilter and OutputSink into the top-level simulation run: it
// owns the three process-wide structures (the insertion list, the global
// RNG, and the ModelAdapter), validates configuration, and sequences one
// or more replicate datasets.
package simctx

import (
	"fmt"

	"github.com/evolbioinfo/gotree/tree"

	"github.com/evolbioinfo/alisim/internal/seqalpha"
	"github.com/evolbioinfo/alisim/internal/sink"
)

// Config is every user-facing knob the simulator accepts, gathered in one
// place the way camus.Args gathers its own flags before validation.
type Config struct {
	// Tree is the already-parsed input tree (file parsing is an external
	// collaborator's job).
	Tree *tree.Tree

	SequenceLength int // required when AncestralSequence is empty
	NumDatasets    int // 0 or 1 means a single dataset

	Alphabet    seqalpha.Kind
	MorphStates int // consulted only when Alphabet == seqalpha.MORPH

	ModelSpec string // e.g. "JC69", "HKY:2.0", "GTR:1,2,1,1,2,1", "JC69+ASC"
	Freqs     []float64

	BranchScale float64

	RateHetSpec string // e.g. "NONE", "GAMMA:4,0.5"

	LengthRatioOverride float64 // 0 means "estimate it"

	InsertionRatio, DeletionRatio   float64
	InsertionDistSpec, DeletionDistSpec string // e.g. "GEO:0.3", "NEG_BIN:5,0.3"

	FundiProportion float64
	FundiTaxonSet   []string

	OutputFormat sink.Format
	Compression  bool
	OutputPrefix string

	SimulationThresh   *float64 // override for tau
	PositionRetryBound int      // indel gap-aware position-selection retry bound

	Partitions []Partition // from partition_file; empty disables partitioning

	AncestralSequence []uint16 // already read by an external parser

	WriteInternalSequences bool

	Seed int64
}

// ErrInvalidConfig wraps every configuration error Validate reports.
var ErrInvalidConfig = fmt.Errorf("simctx: invalid configuration")

// Validate checks the parts of Config that Run (simctx.go) relies on
// being consistent, returning a single-line, fatal-by-convention error
// per spec's configuration-error policy (no partial output).
func (c *Config) Validate() error {
	if c.Tree == nil {
		return fmt.Errorf("%w: tree is required", ErrInvalidConfig)
	}
	if c.SequenceLength <= 0 && len(c.AncestralSequence) == 0 {
		return fmt.Errorf("%w: sequence_length is required when no ancestral sequence is supplied", ErrInvalidConfig)
	}
	if c.Alphabet == seqalpha.CODON {
		if targetLength(*c)%3 != 0 {
			return fmt.Errorf("%w: codon alphabet requires a length that is a multiple of 3", ErrInvalidConfig)
		}
	}
	if c.NumDatasets < 0 {
		return fmt.Errorf("%w: num_datasets must be >= 0", ErrInvalidConfig)
	}
	if c.FundiProportion < 0 || c.FundiProportion > 1 {
		return fmt.Errorf("%w: fundi_proportion must be within [0, 1]", ErrInvalidConfig)
	}
	if c.FundiProportion > 0 && len(c.FundiTaxonSet) == 0 {
		return fmt.Errorf("%w: fundi_proportion > 0 requires a non-empty fundi_taxon_set", ErrInvalidConfig)
	}
	if c.InsertionRatio < 0 || c.DeletionRatio < 0 {
		return fmt.Errorf("%w: insertion_ratio and deletion_ratio must be >= 0", ErrInvalidConfig)
	}
	if c.BranchScale < 0 {
		return fmt.Errorf("%w: branch_scale must be >= 0", ErrInvalidConfig)
	}
	if c.LengthRatioOverride < 0 {
		return fmt.Errorf("%w: length_ratio override must be >= 0", ErrInvalidConfig)
	}
	if fundiInvalid := c.validateFundiTaxaExist(); fundiInvalid != nil {
		return fundiInvalid
	}
	if len(c.Partitions) > 0 && c.indelsEnabled() {
		return fmt.Errorf("%w: partitions and indels cannot be combined (indel events are whole-alignment, not scoped per partition)", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateFundiTaxaExist() error {
	if len(c.FundiTaxonSet) == 0 {
		return nil
	}
	names := map[string]bool{}
	for _, l := range c.Tree.Tips() {
		names[l.Name()] = true
	}
	for _, n := range c.FundiTaxonSet {
		if !names[n] {
			return fmt.Errorf("%w: fundi_taxon_set references unknown taxon %q", ErrInvalidConfig, n)
		}
	}
	return nil
}

func (c *Config) indelsEnabled() bool {
	return c.InsertionRatio > 0 || c.DeletionRatio > 0
}
