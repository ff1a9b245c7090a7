// Package indel implements the insertion/deletion subsystem: length
// distributions, per-edge rate bookkeeping, gap-aware position selection,
// and the sequence-level splice/delete primitives the Gillespie loop in
// internal/branch drives.
package indel

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrSizeExhausted is returned when 1000 rejection-sampling attempts fail
// to draw a strictly positive indel length.
var ErrSizeExhausted = errors.New("indel: exhausted attempts drawing a positive length")

// ErrPositionExhausted is returned when no non-gap position can be found
// within the retry bound.
var ErrPositionExhausted = errors.New("indel: exhausted attempts locating a non-gap position")

const maxSizeAttempts = 1000

// Controller owns the insertion and deletion length distributions, the
// per-unit-time rates, and the empirical mean deletion size used in the
// per-edge rate formulas.
type Controller struct {
	insDist, delDist   *Dist
	alphaIns, alphaDel float64
	meanDelSize        float64
	positionRetryBound int
}

// New builds a Controller. alphaIns/alphaDel are the user-configured
// per-unit-time insertion/deletion rates; positionRetryBound bounds the
// gap-aware position selection retry loop.
func New(insDist, delDist *Dist, alphaIns, alphaDel float64, positionRetryBound int) *Controller {
	return &Controller{
		insDist:            insDist,
		delDist:            delDist,
		alphaIns:           alphaIns,
		alphaDel:           alphaDel,
		positionRetryBound: positionRetryBound,
	}
}

// EstimateMeanDeletionSize draws l samples from the deletion distribution
// and records their average as <D>, the empirical mean deletion size used
// in the R_del formula. Called once per simulation run.
func (c *Controller) EstimateMeanDeletionSize(l int, rng *rand.Rand) {
	if l <= 0 {
		c.meanDelSize = 1
		return
	}
	sum := 0
	for i := 0; i < l; i++ {
		sum += c.delDist.Draw(rng)
	}
	c.meanDelSize = float64(sum) / float64(l)
}

// Rates computes R_ins and R_del for a sequence of current length l with
// g gap positions.
func (c *Controller) Rates(l, g int) (rIns, rDel float64) {
	rIns = c.alphaIns * float64(l+1-g)
	rDel = c.alphaDel * (float64(l-1-g) + c.meanDelSize)
	if rIns < 0 {
		rIns = 0
	}
	if rDel < 0 {
		rDel = 0
	}
	return rIns, rDel
}

// DrawInsertionSize rejection-samples a strictly positive insertion
// length, up to 1000 attempts.
func (c *Controller) DrawInsertionSize(rng *rand.Rand) (int, error) {
	return drawPositive(c.insDist, rng)
}

// DrawDeletionSize rejection-samples a strictly positive deletion length,
// up to 1000 attempts.
func (c *Controller) DrawDeletionSize(rng *rand.Rand) (int, error) {
	return drawPositive(c.delDist, rng)
}

func drawPositive(d *Dist, rng *rand.Rand) (int, error) {
	for attempt := 0; attempt < maxSizeAttempts; attempt++ {
		if k := d.Draw(rng); k > 0 {
			return k, nil
		}
	}
	return 0, ErrSizeExhausted
}

// SelectNonGapPosition samples a position uniformly in [0, upper]
// (inclusive) and, if it lands on a gap, scans forward to the next
// non-gap position; if none is found at or before upper, it retries up to
// the controller's retry bound before giving up.
func (c *Controller) SelectNonGapPosition(rng *rand.Rand, upper int, isGap func(int) bool) (int, error) {
	if upper < 0 {
		return 0, fmt.Errorf("indel: cannot select a position in an empty range")
	}
	for attempt := 0; attempt < c.positionRetryBound; attempt++ {
		p := rng.Intn(upper + 1)
		for p <= upper && isGap(p) {
			p++
		}
		if p <= upper {
			return p, nil
		}
	}
	return 0, ErrPositionExhausted
}

// SpliceInsertion returns a new sequence with k new sites inserted at
// pos, leaving the surrounding content untouched.
func SpliceInsertion(seq []uint16, pos int, newSites []uint16) []uint16 {
	out := make([]uint16, 0, len(seq)+len(newSites))
	out = append(out, seq[:pos]...)
	out = append(out, newSites...)
	out = append(out, seq[pos:]...)
	return out
}

// ApplyDeletion walks forward from start, replacing non-gap sites with
// unknown until k non-gap sites have been replaced or the sequence ends; it
// returns the number of sites actually replaced (gaps newly created).
// onReplace, when non-nil, is called with each replaced index immediately
// after the site is overwritten, so a caller tracking per-site state (a
// substitution-rate vector, a gap count) can stay in sync without
// duplicating the scan.
func ApplyDeletion(seq []uint16, start, k int, unknown uint16, isGap func(uint16) bool, onReplace func(i int)) int {
	replaced := 0
	for i := start; i < len(seq) && replaced < k; i++ {
		if isGap(seq[i]) {
			continue
		}
		seq[i] = unknown
		replaced++
		if onReplace != nil {
			onReplace(i)
		}
	}
	return replaced
}
