// Package filter implements ConstantSiteFilter: post-hoc removal of
// invariant columns from the fully simulated leaf set, down to the target
// alignment length, so the eventual output matches what an ascertainment
// bias correction expects.
package filter

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Result is the outcome of a filter pass: the compacted sequences, keyed
// the same way the input map was, plus how many columns survived.
type Result struct {
	Sequences map[string][]uint16
	NumKept   int
}

// Apply scans leaves column-wise and keeps only the columns on which some
// leaf carries a state different from the first leaf's (names[0]), with
// neither state UNKNOWN, up to target sites; a column where the first
// leaf is UNKNOWN is never counted as variant. names fixes iteration
// order; every name must be a key of leaves and every sequence must share
// the same length. indelsActive disables the early exit, so every column
// is scanned; the retained columns are the first target variant columns
// either way.
func Apply(names []string, leaves map[string][]uint16, unknown uint16, target int, indelsActive bool) (Result, error) {
	if len(names) == 0 {
		return Result{Sequences: map[string][]uint16{}}, nil
	}
	first := leaves[names[0]]
	l := len(first)
	for _, n := range names {
		if len(leaves[n]) != l {
			return Result{}, fmt.Errorf("filter: leaf %q has length %d, want %d", n, len(leaves[n]), l)
		}
	}

	mask := bitset.New(uint(l))
	numVariant := 0
	for site := 0; site < l; site++ {
		ref := first[site]
		variant := false
		for _, n := range names[1:] {
			s := leaves[n][site]
			if s != ref && s != unknown && ref != unknown {
				variant = true
				break
			}
		}
		if variant {
			mask.Set(uint(site))
			numVariant++
			if !indelsActive && numVariant >= target {
				break
			}
		}
	}

	if numVariant < target {
		return Result{}, fmt.Errorf("filter: only %d variant sites, need %d", numVariant, target)
	}

	out := make(map[string][]uint16, len(names))
	for _, n := range names {
		seq := leaves[n]
		compact := make([]uint16, 0, target)
		for site := 0; site < l && len(compact) < target; site++ {
			if mask.Test(uint(site)) {
				compact = append(compact, seq[site])
			}
		}
		out[n] = compact
	}
	return Result{Sequences: out, NumKept: target}, nil
}

// TargetLength returns ceil(l / rho), the number of variant sites Apply
// must retain. rho <= 1 means no filtering is needed and l is returned
// unchanged.
func TargetLength(l int, rho float64) int {
	if rho <= 1 {
		return l
	}
	return int(math.Ceil(float64(l) / rho))
}
