// Package simtree drives the depth-first traversal that composes
// BranchSampler and IndelController over every edge of a phylogeny,
// threading the shared insertion list, applying FunDi permutation and
// DNA-error at leaves, and handing finished sequences to a Sink.
package simtree

import (
	"context"
	"fmt"
	"math/rand"

	radix "github.com/armon/go-radix"
	"github.com/bits-and-blooms/bitset"
	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/sync/errgroup"

	"github.com/evolbioinfo/alisim/internal/branch"
	"github.com/evolbioinfo/alisim/internal/genome"
	"github.com/evolbioinfo/alisim/internal/modeladapter"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
)

// Sink is the capability TreeWalker needs from an output destination. A
// leaf or (in internal-output mode) internal node is written directly
// when no indels are in play; under indels it is spilled in raw form and
// re-read once the whole traversal has completed and every insertion
// event is known, so that gap reconciliation sees the complete history.
type Sink interface {
	WriteLeaf(name string, seq []uint16) error
	SpillLeaf(name string, seq []uint16) error
	ReadSpill(name string) ([]uint16, error)
}

// Config bundles the traversal-wide knobs that do not belong on Model or
// BranchSampler themselves.
type Config struct {
	Scale             float64
	ContinuousGamma   bool
	ThresholdOverride *float64
	Heterotachy       bool
	BranchOverride    bool
	MixtureSampling   bool

	FundiProportion float64
	FundiTaxa       []string // empty disables FunDi

	WriteInternal bool

	// Cancel is polled between branches; returning true aborts the
	// traversal with ErrCancelled.
	Cancel func() bool
}

// nodeState is the per-node bookkeeping the walker threads down the
// tree, keyed by gotree's own node Id() rather than a parallel arena.
type nodeState struct {
	seq     []uint16
	numGaps int

	// owned marks, by Insertion.ID, every indel event already present as
	// real content in this node's own sequence (its own edge's
	// insertions plus everything inherited from ancestors). Any other
	// event recorded in the global list happened on a lineage this node
	// does not carry and must be reflected as a gap column instead.
	owned *bitset.BitSet

	numChildren     int
	numChildrenDone int
}

// Walker runs one TreeWalker DFS over t.
type Walker struct {
	Tree    *tree.Tree
	Sampler *branch.Sampler
	List    *genome.List
	Model   modeladapter.Model
	Profile *rateprofile.Profile
	Unknown uint16
	Indels  bool

	cfg Config

	fundi     *fundiPlan
	fundiTaxa *radix.Tree

	sink Sink

	states map[int]*nodeState

	spilled []spillRecord
}

type spillRecord struct {
	id     int
	name   string
	isLeaf bool
}

// ErrCancelled is returned by Run when Config.Cancel reported true
// between branches. The caller must discard any partial output.
var ErrCancelled = fmt.Errorf("simtree: traversal cancelled")

// New builds a Walker. sink may be nil if the caller only wants the
// traversal's side effects on the insertion list (e.g. dry runs in
// tests).
func New(t *tree.Tree, sampler *branch.Sampler, list *genome.List, model modeladapter.Model, profile *rateprofile.Profile, unknown uint16, indelsEnabled bool, cfg Config, sink Sink) *Walker {
	w := &Walker{
		Tree:    t,
		Sampler: sampler,
		List:    list,
		Model:   model,
		Profile: profile,
		Unknown: unknown,
		Indels:  indelsEnabled,
		cfg:     cfg,
		sink:    sink,
		states:  make(map[int]*nodeState),
	}
	if len(cfg.FundiTaxa) > 0 {
		w.fundiTaxa = radix.New()
		for _, name := range cfg.FundiTaxa {
			w.fundiTaxa.Insert(name, true)
		}
	}
	return w
}

// SetRootSequence assigns the root's starting sequence: the supplied
// ancestral sequence, padded out to targetLen with sites drawn from the
// root mixture's stationary frequencies if it is shorter; or, if
// ancestral is empty, a sequence drawn entirely from those frequencies.
func (w *Walker) SetRootSequence(ancestral []uint16, targetLen int, rng *rand.Rand) error {
	if len(ancestral) > targetLen {
		return fmt.Errorf("simtree: ancestral sequence (%d sites) is longer than the target length (%d)", len(ancestral), targetLen)
	}
	seq := make([]uint16, targetLen)
	copy(seq, ancestral)
	freqs := w.Model.Freqs(0)
	cum := make([]float64, len(freqs))
	acc := 0.0
	for i, f := range freqs {
		acc += f
		cum[i] = acc
	}
	for i := len(ancestral); i < targetLen; i++ {
		seq[i] = uint16(sampleCumulative(cum, rng))
	}
	root := w.Tree.Root()
	st := &nodeState{seq: seq, owned: bitset.New(0)}
	for _, s := range seq {
		if s == w.Unknown {
			st.numGaps++
		}
	}
	w.states[root.Id()] = st
	if L := w.totalSites(); L > 0 {
		w.fundi = newFundiPlan(L, w.cfg.FundiProportion, rng)
	}
	return nil
}

func (w *Walker) totalSites() int {
	root := w.Tree.Root()
	if st, ok := w.states[root.Id()]; ok {
		return len(st.seq)
	}
	return 0
}

func sampleCumulative(cum []float64, rng *rand.Rand) int {
	u := rng.Float64() * cum[len(cum)-1]
	for i, c := range cum {
		if u < c {
			return i
		}
	}
	return len(cum) - 1
}

// PrepareRoot grafts a new root onto an unrooted tree, per the
// pre-traversal step: a fresh tip is grafted onto one of the current
// root's incident edges, its pendant edge is set to length 0, and it is
// promoted to tree root, so the DFS starts from a single-neighbor root.
func PrepareRoot(t *tree.Tree) error {
	if t.Rooted() {
		return nil
	}
	root := t.Root()
	edges := root.Edges()
	if len(edges) == 0 {
		return fmt.Errorf("simtree: root has no incident edges to graft onto")
	}
	newRoot := t.NewNode()
	newRoot.SetName(fmt.Sprintf("__root_%d", len(t.Nodes())))
	pendant, _, _, err := t.GraftTipOnEdge(newRoot, edges[0])
	if err != nil {
		return fmt.Errorf("simtree: grafting new root: %w", err)
	}
	pendant.SetLength(0)
	pendant.SetSupport(tree.NIL_SUPPORT)
	t.SetRoot(newRoot)
	return t.UpdateTipIndex()
}

// Run executes the traversal. ctx is polled alongside Config.Cancel
// before each edge is evolved.
func (w *Walker) Run(ctx context.Context, rng *rand.Rand) error {
	root := w.Tree.Root()
	if _, ok := w.states[root.Id()]; !ok {
		return fmt.Errorf("simtree: root sequence was never assigned (call SetRootSequence first)")
	}
	rootState := w.states[root.Id()]
	rootState.numChildren = numChildrenOf(root)
	if rootState.numChildren == 0 {
		// A root with no outgoing edges is itself the whole tree (the
		// degenerate single-taxon case): treat it as a completed leaf and
		// skip the traversal entirely.
		w.List.FreezeAt(root.Id())
		if err := w.finalize(root.Id(), root.Name(), true, rng); err != nil {
			return err
		}
		return w.reconcile()
	}

	var walkErr error
	w.Tree.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if walkErr != nil {
			return false
		}
		if cur == root {
			return true
		}
		if w.cfg.Cancel != nil && w.cfg.Cancel() {
			walkErr = ErrCancelled
			return false
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return false
		}

		parent := w.states[prev.Id()]
		if parent == nil {
			walkErr = fmt.Errorf("simtree: parent node %d has no sequence state", prev.Id())
			return false
		}

		method := branch.SelectMethod(e.Length(), w.cfg.Scale, len(parent.seq), w.cfg.ContinuousGamma, w.cfg.ThresholdOverride, w.cfg.Heterotachy, w.cfg.BranchOverride, w.cfg.MixtureSampling)

		beforeID := w.List.Tail().ID
		childSeq, _, err := w.Sampler.EvolveEdge(parent.seq, e.Length(), w.cfg.Scale, w.Profile, method, rng)
		if err != nil {
			walkErr = fmt.Errorf("simtree: evolving edge to node %d: %w", cur.Id(), err)
			return false
		}
		afterID := w.List.Tail().ID

		owned := parent.owned.Clone()
		for id := beforeID + 1; id <= afterID; id++ {
			owned.Set(uint(id))
		}

		numGaps := 0
		for _, s := range childSeq {
			if s == w.Unknown {
				numGaps++
			}
		}

		st := &nodeState{seq: childSeq, numGaps: numGaps, owned: owned, numChildren: numChildrenOf(cur)}
		w.states[cur.Id()] = st

		if cur.Tip() {
			if w.Indels {
				w.List.FreezeAt(cur.Id())
			}
			if err := w.finalize(cur.Id(), cur.Name(), true, rng); err != nil {
				walkErr = err
				return false
			}
		}

		parent.numChildrenDone++
		if parent.numChildrenDone >= parent.numChildren && prev != root {
			if err := w.releaseInternal(prev, rng); err != nil {
				walkErr = err
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	if rootState.numChildrenDone >= rootState.numChildren {
		if err := w.releaseInternal(root, rng); err != nil {
			return err
		}
	}

	return w.reconcile()
}

// releaseInternal finalizes (if requested) and releases an internal
// node's sequence once every child edge out of it has finished.
func (w *Walker) releaseInternal(n *tree.Node, rng *rand.Rand) error {
	st := w.states[n.Id()]
	if st == nil || st.seq == nil {
		return nil
	}
	if w.cfg.WriteInternal {
		name := n.Name()
		if name == "" {
			name = fmt.Sprintf("#%d", n.Id())
		}
		if err := w.finalize(n.Id(), name, false, rng); err != nil {
			return err
		}
	}
	st.seq = nil
	return nil
}

func numChildrenOf(n *tree.Node) int {
	total := n.Nneigh()
	if _, err := n.Parent(); err == nil {
		return total - 1
	}
	return total
}

// finalize applies FunDi (when not deferred) and DNA-error, then either
// writes the node straight to the sink or spills it for the post-
// traversal reconciliation pass.
func (w *Walker) finalize(id int, name string, isLeaf bool, rng *rand.Rand) error {
	st := w.states[id]
	if isLeaf {
		w.applyDNAError(st.seq, rng)
	}
	if isLeaf && w.fundiInScope(name) && !w.Indels {
		w.fundi.apply(st.seq)
	}
	if !w.Indels {
		if w.sink == nil {
			return nil
		}
		return w.sink.WriteLeaf(name, st.seq)
	}
	w.spilled = append(w.spilled, spillRecord{id: id, name: name, isLeaf: isLeaf})
	if w.sink == nil {
		return nil
	}
	return w.sink.SpillLeaf(name, st.seq)
}

func (w *Walker) fundiInScope(name string) bool {
	if w.fundi == nil || len(w.fundi.sites) == 0 {
		return false
	}
	if w.fundiTaxa == nil {
		return false
	}
	_, ok := w.fundiTaxa.Get(name)
	return ok
}

// applyDNAError perturbs real (non-gap) states with the model's reported
// per-state substitution probability, when the model carries a DNA-error
// component.
func (w *Walker) applyDNAError(seq []uint16, rng *rand.Rand) {
	if !w.Model.ContainsDNAError() {
		return
	}
	for i, s := range seq {
		if s == w.Unknown {
			continue
		}
		mix := w.Profile.ClassAt(i)
		p := w.Model.DNAErrProb(mix)
		if p <= 0 {
			continue
		}
		if rng.Float64() < p {
			ns := w.Model.NStates()
			seq[i] = uint16(rng.Intn(ns))
		}
	}
}

// reconcile runs once the full traversal has completed: the insertion
// list is now final, so every spilled node's sequence can be correctly
// gap-padded against the complete event history, with FunDi (when it was
// deferred) and final output happening immediately after.
func (w *Walker) reconcile() error {
	if !w.Indels || w.sink == nil {
		return nil
	}
	g, _ := errgroup.WithContext(context.Background())
	for _, rec := range w.spilled {
		rec := rec
		g.Go(func() error {
			raw, err := w.sink.ReadSpill(rec.name)
			if err != nil {
				return fmt.Errorf("simtree: reading spill for %q: %w", rec.name, err)
			}
			st := w.states[rec.id]
			gt := genome.BuildMasked(w.List, st.owned, len(raw))
			padded, err := gt.Export(raw, gt.Length(), w.Unknown)
			if err != nil {
				return fmt.Errorf("simtree: reconciling %q: %w", rec.name, err)
			}
			if rec.isLeaf && w.fundiInScope(rec.name) {
				w.fundi.apply(padded)
			}
			return w.sink.WriteLeaf(rec.name, padded)
		})
	}
	return g.Wait()
}
