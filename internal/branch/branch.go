// Package branch implements the two per-branch sequence-evolution
// algorithms (transition-probability sampling and Gillespie-style
// rate-matrix simulation) and the length-dependent threshold that selects
// between them.
package branch

import (
	"math/rand"
	"sort"

	"github.com/evolbioinfo/alisim/internal/genome"
	"github.com/evolbioinfo/alisim/internal/indel"
	"github.com/evolbioinfo/alisim/internal/modeladapter"
	"github.com/evolbioinfo/alisim/internal/rateprofile"
)

// Method identifies which per-branch algorithm evolved a given edge.
type Method int

const (
	TransProb Method = iota
	RateMatrix
)

func (m Method) String() string {
	if m == TransProb {
		return "TRANS_PROB"
	}
	return "RATE_MATRIX"
}

// SelectMethod implements the method-selection rule: TRANS_PROB is used
// whenever the scaled edge length exceeds the threshold, the model is
// heterotachy, a branch-local override is present, or mixture sampling at
// the substitution level is enabled; RATE_MATRIX otherwise.
func SelectMethod(edgeLen, scale float64, curLength int, continuousGamma bool, thresholdOverride *float64, heterotachy, branchOverride, mixtureSampling bool) Method {
	if heterotachy || branchOverride || mixtureSampling {
		return TransProb
	}
	t := tau(curLength, continuousGamma)
	if thresholdOverride != nil {
		t = *thresholdOverride
	}
	if edgeLen*scale > t {
		return TransProb
	}
	return RateMatrix
}

// Sampler evolves a parent sequence across one edge.
type Sampler struct {
	Model   modeladapter.Model
	Indel   *indel.Controller // nil disables indels
	List    *genome.List      // required when Indel != nil
	Unknown uint16
	jCache  map[jKey][]float64
}

type jKey struct {
	mix, state int
}

// New builds a Sampler. list and ic may be nil to disable indels.
func New(model modeladapter.Model, ic *indel.Controller, list *genome.List, unknown uint16) *Sampler {
	return &Sampler{
		Model:   model,
		Indel:   ic,
		List:    list,
		Unknown: unknown,
		jCache:  make(map[jKey][]float64),
	}
}

// EvolveEdge evolves parentSeq across an edge of the given length,
// returning the child sequence and the number of newly created gap
// positions (deletions only; insertions never create gaps).
func (s *Sampler) EvolveEdge(parentSeq []uint16, edgeLen, scale float64, profile *rateprofile.Profile, method Method, rng *rand.Rand) ([]uint16, int, error) {
	if edgeLen == 0 {
		child := make([]uint16, len(parentSeq))
		copy(child, parentSeq)
		return child, 0, nil
	}
	if method == TransProb {
		child, _, err := s.evolveTransProb(parentSeq, edgeLen, scale, profile, rng)
		if err != nil || s.Indel == nil {
			return child, 0, err
		}
		// Substitutions already happened via the P-matrix; overlay
		// insertions/deletions as their own Gillespie process along the
		// same branch length.
		return s.runGillespie(child, edgeLen, scale, profile, rng, false)
	}
	return s.runGillespie(parentSeq, edgeLen, scale, profile, rng, true)
}

// evolveTransProb implements the TRANS_PROB method: compute P(beta*l*r)
// per (mixture class, site rate r) pair present on this branch, transform
// into a row-wise cumulative matrix, and sample each site independently
// via binary search over its row, checking the unchanged-state cell first.
func (s *Sampler) evolveTransProb(parentSeq []uint16, edgeLen, scale float64, profile *rateprofile.Profile, rng *rand.Rand) ([]uint16, int, error) {
	child := make([]uint16, len(parentSeq))
	type pKey struct {
		mix  int
		rate float64
	}
	cumCache := make(map[pKey][][]float64)

	for i, cur := range parentSeq {
		if cur == s.Unknown {
			child[i] = s.Unknown
			continue
		}
		mix := profile.ClassAt(i)
		rate := profile.RateAt(i)
		key := pKey{mix, rate}
		cum, ok := cumCache[key]
		if !ok {
			t := edgeLen * scale * rate
			p := s.Model.PMatrix(mix, t)
			cum = cumulativeRows(p)
			cumCache[key] = cum
		}
		child[i] = sampleRow(cum[cur], int(cur), rng)
	}
	return child, 0, nil
}

func cumulativeRows(p [][]float64) [][]float64 {
	out := make([][]float64, len(p))
	for i, row := range p {
		cum := make([]float64, len(row))
		acc := 0.0
		for j, v := range row {
			acc += v
			cum[j] = acc
		}
		out[i] = cum
	}
	return out
}

// sampleRow draws a new state from a cumulative probability row, checking
// the unchanged-state cell (cur) before falling back to a full binary
// search, since self-transition is the modal outcome for most branch
// lengths.
func sampleRow(cum []float64, cur int, rng *rand.Rand) uint16 {
	u := rng.Float64()
	lo := 0.0
	if cur > 0 {
		lo = cum[cur-1]
	}
	if u >= lo && u < cum[cur] {
		return uint16(cur)
	}
	idx := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
	if idx >= len(cum) {
		idx = len(cum) - 1
	}
	return uint16(idx)
}

// runGillespie copies the parent sequence, then runs the Gillespie loop
// mixing insertion and deletion events (and, when withSubstitution is
// true, substitution events too) until the branch's remaining time is
// exhausted. withSubstitution is false when this is an indel-only overlay
// run after a TRANS_PROB substitution pass has already happened.
func (s *Sampler) runGillespie(parentSeq []uint16, edgeLen, scale float64, profile *rateprofile.Profile, rng *rand.Rand, withSubstitution bool) ([]uint16, int, error) {
	seq := make([]uint16, len(parentSeq))
	copy(seq, parentSeq)

	subRates := make([]float64, len(seq))
	total := 0.0
	gapCount := 0
	if withSubstitution {
		for i, st := range seq {
			if st == s.Unknown {
				gapCount++
				continue
			}
			r := s.subRateAt(profile, i, st)
			subRates[i] = r
			total += r
		}
	} else {
		for _, st := range seq {
			if st == s.Unknown {
				gapCount++
			}
		}
	}

	indelsEnabled := s.Indel != nil
	remaining := edgeLen * scale
	gapsAdded := 0

	for remaining > 0 {
		rIns, rDel := 0.0, 0.0
		if indelsEnabled {
			rIns, rDel = s.Indel.Rates(len(seq), gapCount)
		}
		R := total + rIns + rDel
		if R <= 0 {
			break
		}
		dt := rng.ExpFloat64() / R
		if dt > remaining {
			break
		}
		remaining -= dt

		u := rng.Float64() * R
		switch {
		case u < total:
			s.substitute(&seq, subRates, &total, profile, rng)
		case u < total+rIns:
			if err := s.insert(&seq, &subRates, &total, profile, rng); err != nil {
				return nil, 0, err
			}
			if !withSubstitution {
				// Indel-only overlay: inserted sites carry no substitution
				// rate here.
				total = 0
				for i := range subRates {
					subRates[i] = 0
				}
			}
		default:
			n, err := s.deleteRun(&seq, subRates, &total, &gapCount, rng)
			if err != nil {
				return nil, 0, err
			}
			gapsAdded += n
		}
	}
	return seq, gapsAdded, nil
}

func (s *Sampler) subRateAt(profile *rateprofile.Profile, site int, state uint16) float64 {
	mix := profile.ClassAt(site)
	rate := profile.RateAt(site)
	q := s.Model.QMatrix(mix)
	return -q[state][state] * rate
}

func (s *Sampler) jRow(mix, state int) []float64 {
	key := jKey{mix, state}
	if row, ok := s.jCache[key]; ok {
		return row
	}
	q := s.Model.QMatrix(mix)
	diag := -q[state][state]
	row := make([]float64, len(q[state]))
	acc := 0.0
	for j, v := range q[state] {
		if j == state || diag <= 0 {
			row[j] = acc
			continue
		}
		acc += v / diag
		row[j] = acc
	}
	s.jCache[key] = row
	return row
}

func (s *Sampler) substitute(seq *[]uint16, subRates []float64, total *float64, profile *rateprofile.Profile, rng *rand.Rand) {
	pos := weightedPick(subRates, *total, rng)
	if pos < 0 {
		return
	}
	cur := (*seq)[pos]
	mix := profile.ClassAt(pos)
	row := s.jRow(mix, int(cur))
	u := rng.Float64()
	newState := uint16(sort.Search(len(row), func(i int) bool { return row[i] > u }))
	if int(newState) >= len(row) {
		newState = uint16(len(row) - 1)
	}
	(*seq)[pos] = newState
	newRate := s.subRateAt(profile, pos, newState)
	*total += newRate - subRates[pos]
	subRates[pos] = newRate
}

func weightedPick(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return -1
	}
	u := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

func (s *Sampler) insert(seq *[]uint16, subRates *[]float64, total *float64, profile *rateprofile.Profile, rng *rand.Rand) error {
	l := len(*seq)
	k, err := s.Indel.DrawInsertionSize(rng)
	if err != nil {
		return err
	}
	isGap := func(p int) bool { return (*seq)[p] == s.Unknown }
	pos, err := s.Indel.SelectNonGapPosition(rng, l, clampGapCheck(isGap, l))
	if err != nil {
		return err
	}

	freqs := s.Model.Freqs(0)
	cum := cumulativeVec(freqs)
	newSites := make([]uint16, k)
	newRates := make([]float64, k)
	for i := range newSites {
		st := uint16(sampleCDFVec(cum, rng))
		newSites[i] = st
		newRates[i] = s.subRateAt(profile, pos, st)
	}

	*seq = indel.SpliceInsertion(*seq, pos, newSites)
	old := *subRates
	out := make([]float64, 0, len(old)+k)
	out = append(out, old[:pos]...)
	out = append(out, newRates...)
	out = append(out, old[pos:]...)
	*subRates = out
	for _, r := range newRates {
		*total += r
	}

	appended := pos == l
	if s.List != nil {
		s.List.Append(pos, k, appended)
	}
	return nil
}

// clampGapCheck adapts an isGap(pos) function over [0, l-1] to cover the
// position l itself (always non-gap: it denotes "append at the tail").
func clampGapCheck(isGap func(int) bool, l int) func(int) bool {
	return func(p int) bool {
		if p >= l {
			return false
		}
		return isGap(p)
	}
}

func (s *Sampler) deleteRun(seq *[]uint16, subRates []float64, total *float64, gapCount *int, rng *rand.Rand) (int, error) {
	l := len(*seq)
	k, err := s.Indel.DrawDeletionSize(rng)
	if err != nil {
		return 0, err
	}
	upper := l - k
	if upper < 0 {
		upper = 0
	}
	isGap := func(p int) bool { return (*seq)[p] == s.Unknown }
	start, err := s.Indel.SelectNonGapPosition(rng, upper, isGap)
	if err != nil {
		return 0, err
	}
	replaced := indel.ApplyDeletion(*seq, start, k, s.Unknown, func(v uint16) bool { return v == s.Unknown }, func(i int) {
		*total -= subRates[i]
		subRates[i] = 0
		*gapCount++
	})
	return replaced, nil
}

func cumulativeVec(v []float64) []float64 {
	out := make([]float64, len(v))
	acc := 0.0
	for i, x := range v {
		acc += x
		out[i] = acc
	}
	return out
}

func sampleCDFVec(cum []float64, rng *rand.Rand) int {
	u := rng.Float64() * cum[len(cum)-1]
	idx := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
	if idx >= len(cum) {
		idx = len(cum) - 1
	}
	return idx
}
