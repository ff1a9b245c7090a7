package simtree

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"

	"github.com/evolbioinfo/alisim/internal/branch"
	"github.com/evolbioinfo/alisim/internal/genome"
	"github.com/evolbioinfo/alisim/internal/indel"
	"github.com/evolbioinfo/alisim/internal/modeladapter/catalog"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
)

const unknown = uint16(4)

type fakeSink struct {
	written map[string][]uint16
	spilled map[string][]uint16
}

func newFakeSink() *fakeSink {
	return &fakeSink{written: map[string][]uint16{}, spilled: map[string][]uint16{}}
}

func (s *fakeSink) WriteLeaf(name string, seq []uint16) error {
	cp := make([]uint16, len(seq))
	copy(cp, seq)
	s.written[name] = cp
	return nil
}

func (s *fakeSink) SpillLeaf(name string, seq []uint16) error {
	cp := make([]uint16, len(seq))
	copy(cp, seq)
	s.spilled[name] = cp
	return nil
}

func (s *fakeSink) ReadSpill(name string) ([]uint16, error) {
	return s.spilled[name], nil
}

func buildWalker(t *testing.T, nwk string, indels bool, sink Sink) (*Walker, *rand.Rand) {
	t.Helper()
	tr, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %s", err)
	}
	if err := tr.UpdateTipIndex(); err != nil {
		t.Fatalf("updating tip index: %s", err)
	}
	if err := PrepareRoot(tr); err != nil {
		t.Fatalf("preparing root: %s", err)
	}

	model, err := catalog.NewDNA(catalog.JC69, nil, nil)
	if err != nil {
		t.Fatalf("building model: %s", err)
	}
	list := genome.NewList()
	sampler := branch.New(model, nil, list, unknown)
	cfg := Config{Scale: 1}
	w := New(tr, sampler, list, model, rateprofile.Empty(), unknown, indels, cfg, sink)
	rng := rand.New(rand.NewSource(1))
	if err := w.SetRootSequence(nil, 50, rng); err != nil {
		t.Fatalf("setting root sequence: %s", err)
	}
	return w, rng
}

func TestRunWithoutIndelsWritesEveryLeaf(t *testing.T) {
	sink := newFakeSink()
	w, rng := buildWalker(t, "((A:0.1,B:0.2):0.05,(C:0.1,D:0.1):0.1);", false, sink)
	if err := w.Run(context.Background(), rng); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for _, name := range []string{"A", "B", "C", "D"} {
		seq, ok := sink.written[name]
		if !ok {
			t.Fatalf("expected %s to be written", name)
		}
		if len(seq) != 50 {
			t.Errorf("%s: expected length 50, got %d", name, len(seq))
		}
	}
	if len(sink.spilled) != 0 {
		t.Errorf("expected no spills without indels")
	}
}

func TestRunWithIndelsGrowsAndReconciles(t *testing.T) {
	sink := newFakeSink()
	tr, err := newick.NewParser(strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);")).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %s", err)
	}
	if err := tr.UpdateTipIndex(); err != nil {
		t.Fatalf("updating tip index: %s", err)
	}
	if err := PrepareRoot(tr); err != nil {
		t.Fatalf("preparing root: %s", err)
	}

	model, err := catalog.NewDNA(catalog.JC69, nil, nil)
	if err != nil {
		t.Fatalf("building model: %s", err)
	}
	list := genome.NewList()
	insD, err := indel.NewGeometric(0.3)
	if err != nil {
		t.Fatalf("building insertion distribution: %s", err)
	}
	delD, err := indel.NewGeometric(0.3)
	if err != nil {
		t.Fatalf("building deletion distribution: %s", err)
	}
	rng := rand.New(rand.NewSource(2))
	ic := indel.New(insD, delD, 0.5, 0.3, 100)
	ic.EstimateMeanDeletionSize(20, rng)

	sampler := branch.New(model, ic, list, unknown)
	cfg := Config{Scale: 1}
	w := New(tr, sampler, list, model, rateprofile.Empty(), unknown, true, cfg, sink)
	if err := w.SetRootSequence(nil, 30, rng); err != nil {
		t.Fatalf("setting root sequence: %s", err)
	}
	if err := w.Run(context.Background(), rng); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for _, name := range []string{"A", "B", "C", "D"} {
		if _, ok := sink.written[name]; !ok {
			t.Errorf("expected %s to be written after reconciliation", name)
		}
	}
}

func TestPrepareRootNoOpOnAlreadyRootedTree(t *testing.T) {
	tr, err := newick.NewParser(strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);")).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %s", err)
	}
	if err := tr.UpdateTipIndex(); err != nil {
		t.Fatalf("updating tip index: %s", err)
	}
	if err := PrepareRoot(tr); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}
