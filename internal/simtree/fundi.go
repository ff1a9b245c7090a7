package simtree

import "math/rand"

// fundiPlan is the result of picking FunDi sites once, at construction
// time: which sites are copied, and where each one's content is written.
type fundiPlan struct {
	sites   []int
	targets []int
}

// newFundiPlan picks ceil(f*l) distinct sites uniformly in [0, l) and
// pairs them off with a derangement-like permutation (no site maps to
// itself when l allows it).
func newFundiPlan(l int, f float64, rng *rand.Rand) *fundiPlan {
	n := int(f*float64(l) + 0.999999999)
	if n <= 0 || l == 0 {
		return &fundiPlan{}
	}
	if n > l {
		n = l
	}
	sites := rng.Perm(l)[:n]
	targets := make([]int, n)
	copy(targets, sites)
	derange(targets, rng)
	return &fundiPlan{sites: sites, targets: targets}
}

// derange shuffles v in place, retrying while any element lands on its
// own starting index (impossible to avoid entirely when len(v) == 1, in
// which case the single fixed point is left as is).
func derange(v []int, rng *rand.Rand) {
	if len(v) < 2 {
		return
	}
	orig := make([]int, len(v))
	copy(orig, v)
	for attempt := 0; attempt < 50; attempt++ {
		rng.Shuffle(len(v), func(i, j int) { v[i], v[j] = v[j], v[i] })
		fixed := false
		for i := range v {
			if v[i] == orig[i] {
				fixed = true
				break
			}
		}
		if !fixed {
			return
		}
	}
}

// apply copies the selected sites and overwrites the paired target
// positions, in place.
func (p *fundiPlan) apply(seq []uint16) {
	if p == nil || len(p.sites) == 0 {
		return
	}
	saved := make([]uint16, len(p.sites))
	for i, s := range p.sites {
		saved[i] = seq[s]
	}
	for i, target := range p.targets {
		seq[target] = saved[i]
	}
}
