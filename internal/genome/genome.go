// Package genome implements the coordinate-translation structure that
// reconciles insertions across a phylogeny: a lineage that stopped
// evolving before some later insertion must still receive gap columns at
// that insertion's position when its sequence is finally materialized.
package genome

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Segment is one contiguous run of the GenomeTree's coordinate mapping:
// either a mapped run of original-coordinate sites, or a gap run with no
// original-coordinate counterpart.
type Segment struct {
	NewLo, NewHi int // current-coordinate range, [NewLo, NewHi)
	IsGap        bool
	OrigLo       int // meaningful only when !IsGap; original index of NewLo
}

func (s Segment) len() int { return s.NewHi - s.NewLo }

// Tree is the ordered collection of Segments partitioning
// [0, current_length) described above.
type Tree struct {
	segments []Segment
	cur      *Insertion // last insertion event folded into segments
	length   int        // current total length (sum of segment lengths)
}

// Build constructs a Tree for a node whose own content has length
// baseLength and which is anchored at from (the insertion event current
// when the node's content was last wholly original, typically the event
// it was frozen at, or the list's sentinel head for content with no
// history yet). It replays every insertion strictly after from, unless
// full is true, in which case it replays the entire list from its real
// head regardless of from (used for internal-sequence reconciliation
// starting at the root).
//
// Build's single anchor point is only correct when every insertion after
// from belongs to this node's own lineage. A DFS walker interleaves
// sibling subtrees into the shared list before either one freezes, so
// TreeWalker reconciles through BuildMasked (which masks by owned event
// IDs instead of list position) and keeps Build and Update as fixtures
// exercising the simpler single-lineage case directly.
func Build(list *List, from *Insertion, baseLength int, full bool) *Tree {
	start := from
	if full {
		start = list.head
	}
	t := &Tree{
		segments: []Segment{{NewLo: 0, NewHi: baseLength, OrigLo: 0}},
		cur:      start,
		length:   baseLength,
	}
	for ev := start.Next; ev != nil; ev = ev.Next {
		t.apply(ev)
	}
	return t
}

// BuildMasked constructs a Tree for a node whose own sequence has length
// baseLength, replaying every insertion event in the (complete) list
// except those in owned. owned marks the events already present as real
// content in this node's own sequence, i.e. the insertions that occurred
// on edges along its own root-to-node path; every other event happened on
// a lineage this node does not carry and must appear as a gap run
// instead. Used for reconciliation: unlike Build's single anchor point,
// it correctly accounts for sibling subtrees that finished (and recorded
// their own insertions) before this node did.
func BuildMasked(list *List, owned *bitset.BitSet, baseLength int) *Tree {
	t := &Tree{
		segments: []Segment{{NewLo: 0, NewHi: baseLength, OrigLo: 0}},
		cur:      list.tail,
		length:   baseLength,
	}
	for ev := list.head.Next; ev != nil; ev = ev.Next {
		if owned != nil && owned.Test(uint(ev.ID)) {
			continue
		}
		t.apply(ev)
	}
	return t
}

// Update incrementally extends t, which must currently reflect events up
// to and including prev, to also include cur (which must be prev.Next).
// Like Build, Update assumes a single advancing lineage and is exercised
// directly by tests rather than by TreeWalker, which rebuilds each node's
// Tree from scratch via BuildMasked+owned bitset at reconciliation time.
func (t *Tree) Update(prev, cur *Insertion) error {
	if t.cur != prev {
		return fmt.Errorf("genome tree is not anchored at the expected prior event")
	}
	if prev.Next != cur {
		return fmt.Errorf("cur is not the event immediately following prev")
	}
	t.apply(cur)
	return nil
}

// Cur returns the last insertion event folded into the tree.
func (t *Tree) Cur() *Insertion { return t.cur }

// Length returns the tree's current total (post-gap) length.
func (t *Tree) Length() int { return t.length }

// apply splices a gap run of ev.Length sites at new-coordinate position
// ev.Position into the segment list, shifting every later segment right
// by ev.Length.
func (t *Tree) apply(ev *Insertion) {
	p, k := ev.Position, ev.Length
	out := make([]Segment, 0, len(t.segments)+1)
	inserted := false
	for _, seg := range t.segments {
		if inserted || p < seg.NewLo || p >= seg.NewHi {
			shift := 0
			if inserted || seg.NewLo >= p {
				shift = k
			}
			seg.NewLo += shift
			seg.NewHi += shift
			out = append(out, seg)
			continue
		}
		// p lands strictly within [seg.NewLo, seg.NewHi): split, unless
		// it coincides with seg.NewLo (no left half needed).
		if p > seg.NewLo {
			left := seg
			left.NewHi = p
			out = append(out, left)
		}
		out = append(out, Segment{NewLo: p, NewHi: p + k, IsGap: true})
		right := Segment{NewLo: p + k, NewHi: seg.NewHi + k, IsGap: seg.IsGap, OrigLo: seg.OrigLo}
		if !seg.IsGap {
			right.OrigLo = seg.OrigLo + (p - seg.NewLo)
		}
		out = append(out, right)
		inserted = true
	}
	if !inserted {
		// p == t.length (appended at the tail).
		out = append(out, Segment{NewLo: p, NewHi: p + k, IsGap: true})
	}
	t.segments = mergeAdjacentGaps(out)
	t.length += k
	t.cur = ev
}

func mergeAdjacentGaps(segs []Segment) []Segment {
	out := segs[:0:0]
	for _, s := range segs {
		if n := len(out); n > 0 && out[n-1].IsGap && s.IsGap && out[n-1].NewHi == s.NewLo {
			out[n-1].NewHi = s.NewHi
			continue
		}
		out = append(out, s)
	}
	return out
}

// GapMask returns a bitset with one bit set per current-coordinate gap
// position, for callers (e.g. export position selection) that need many
// "is this position a gap" membership tests without rescanning segments.
func (t *Tree) GapMask() *bitset.BitSet {
	b := bitset.New(uint(t.length))
	for _, seg := range t.segments {
		if !seg.IsGap {
			continue
		}
		for i := seg.NewLo; i < seg.NewHi; i++ {
			b.Set(uint(i))
		}
	}
	return b
}

// Export walks the tree's segments in order, copying original-coordinate
// spans from oldSeq and writing unknown for gap spans, producing a
// sequence of exactly newLength states.
func (t *Tree) Export(oldSeq []uint16, newLength int, unknown uint16) ([]uint16, error) {
	if t.length != newLength {
		return nil, fmt.Errorf("genome tree length %d does not match requested export length %d", t.length, newLength)
	}
	out := make([]uint16, newLength)
	for _, seg := range t.segments {
		if seg.IsGap {
			for i := seg.NewLo; i < seg.NewHi; i++ {
				out[i] = unknown
			}
			continue
		}
		n := seg.len()
		if seg.OrigLo+n > len(oldSeq) {
			return nil, fmt.Errorf("genome tree segment references original index %d beyond source sequence length %d", seg.OrigLo+n, len(oldSeq))
		}
		copy(out[seg.NewLo:seg.NewHi], oldSeq[seg.OrigLo:seg.OrigLo+n])
	}
	return out, nil
}
