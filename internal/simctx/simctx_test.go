package simctx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"

	"github.com/evolbioinfo/alisim/internal/seqalpha"
	"github.com/evolbioinfo/alisim/internal/sink"
)

func parseTree(t *testing.T, nwk string) *tree.Tree {
	t.Helper()
	tr, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %s", err)
	}
	if err := tr.UpdateTipIndex(); err != nil {
		t.Fatalf("updating tip index: %s", err)
	}
	return tr
}

func TestValidateRequiresSequenceLengthWithoutAncestral(t *testing.T) {
	cfg := Config{Tree: parseTree(t, "(A:1,B:1);"), Alphabet: seqalpha.DNA}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when sequence_length is unset and no ancestral sequence given")
	}
}

func TestValidateRejectsFundiWithoutTaxonSet(t *testing.T) {
	cfg := Config{
		Tree:            parseTree(t, "(A:1,B:1);"),
		Alphabet:        seqalpha.DNA,
		SequenceLength:  10,
		FundiProportion: 0.2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for fundi_proportion > 0 with empty fundi_taxon_set")
	}
}

func TestValidateRejectsUnknownFundiTaxon(t *testing.T) {
	cfg := Config{
		Tree:            parseTree(t, "(A:1,B:1);"),
		Alphabet:        seqalpha.DNA,
		SequenceLength:  10,
		FundiProportion: 0.2,
		FundiTaxonSet:   []string{"Z"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for fundi_taxon_set referencing unknown taxon")
	}
}

func TestRunWithoutIndelsOrAscertainmentWritesPlainAlignment(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Tree:           parseTree(t, "((A:0.1,B:0.1):0.05,(C:0.1,D:0.1):0.1);"),
		Alphabet:       seqalpha.DNA,
		SequenceLength: 40,
		ModelSpec:      "JC69",
		OutputFormat:   sink.PHYLIP,
		OutputPrefix:   filepath.Join(dir, "run"),
		Seed:           7,
	}
	ctx, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	reps, err := ctx.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(reps) != 1 {
		t.Fatalf("expected 1 replicate, got %d", len(reps))
	}
	if len(reps[0].Names) != 4 {
		t.Fatalf("expected 4 leaves, got %d", len(reps[0].Names))
	}
	for _, n := range reps[0].Names {
		if len(reps[0].Sequences[n]) != 40 {
			t.Errorf("%s: expected length 40, got %d", n, len(reps[0].Sequences[n]))
		}
	}
	if err := ctx.WriteOutputs(reps); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := os.Stat(cfg.OutputPrefix + ".phy"); err != nil {
		t.Errorf("expected output file to exist: %s", err)
	}
}

func TestRunWithPartitionsConcatenatesSegments(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Tree:           parseTree(t, "((A:0.1,B:0.1):0.05,(C:0.1,D:0.1):0.1);"),
		Alphabet:       seqalpha.DNA,
		SequenceLength: 40,
		ModelSpec:      "JC69",
		OutputFormat:   sink.PHYLIP,
		OutputPrefix:   filepath.Join(dir, "run"),
		Seed:           7,
		Partitions: []Partition{
			{Start: 0, End: 30, Weight: 2},
			{Start: 30, End: 40, Weight: 1, ModelSpec: "HKY:2.0"},
		},
	}
	ctx, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	reps, err := ctx.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(reps) != 1 {
		t.Fatalf("expected 1 replicate, got %d", len(reps))
	}
	if len(reps[0].Names) != 4 {
		t.Fatalf("expected 4 leaves, got %d", len(reps[0].Names))
	}
	for _, n := range reps[0].Names {
		if len(reps[0].Sequences[n]) != 40 {
			t.Errorf("%s: expected concatenated length 40, got %d", n, len(reps[0].Sequences[n]))
		}
	}
}

func TestRunRejectsPartitionsWithIndels(t *testing.T) {
	cfg := Config{
		Tree:           parseTree(t, "(A:0.1,B:0.1);"),
		Alphabet:       seqalpha.DNA,
		SequenceLength: 20,
		ModelSpec:      "JC69",
		InsertionRatio: 0.1,
		Partitions:     []Partition{{Start: 0, End: 20, Weight: 1}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected partitions+indels to be rejected")
	}
}

func TestNormalizeWeightsRenormalizes(t *testing.T) {
	out, changed := NormalizeWeights([]float64{1, 1, 2})
	if !changed {
		t.Fatalf("expected renormalization to be flagged")
	}
	sum := out[0] + out[1] + out[2]
	if sum < 0.999999 || sum > 1.000001 {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
}

func TestValidatePartitionsDetectsGap(t *testing.T) {
	parts := []Partition{{Start: 0, End: 5, Weight: 1}, {Start: 6, End: 10, Weight: 1}}
	if err := ValidatePartitions(parts, 10); err == nil {
		t.Errorf("expected error for partition gap")
	}
}
