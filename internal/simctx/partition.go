package simctx

import "fmt"

// Partition describes one contiguous site range, read from partition_file,
// simulated as its own segment and concatenated with the others: its own
// branch_scale multiplier (Weight, after NormalizeWeights) combines with
// the run's global branch_scale (spec's "global branch scale × partition
// rate"), and ModelSpec, when non-empty, is a branch-local model override
// that is both substituted in for this segment's evolution and forces
// BranchSampler's method selection to TRANS_PROB (spec §4.2, "a
// branch-local model override is present"). Building a full partitioned-
// analysis supertree from these segments remains out of scope; what this
// module provides is the per-segment simulation and concatenation spec.md
// §6/§7 name (the `partition_file` option and its "inconsistent partition
// rates" configuration error).
type Partition struct {
	Start, End int
	Weight     float64
	ModelSpec  string
}

// ValidatePartitions checks that partitions tile [0, length) without gaps
// or overlaps and that every weight is positive.
func ValidatePartitions(parts []Partition, length int) error {
	if len(parts) == 0 {
		return nil
	}
	prev := 0
	for _, p := range parts {
		if p.Start != prev || p.End <= p.Start || p.Weight <= 0 {
			return fmt.Errorf("%w: inconsistent partition rates", ErrInvalidConfig)
		}
		prev = p.End
	}
	if prev != length {
		return fmt.Errorf("%w: inconsistent partition rates", ErrInvalidConfig)
	}
	return nil
}

// NormalizeWeights rescales weights to sum to 1 when they do not already,
// returning the rescaled slice and whether rescaling happened. The caller
// warns once when it did, per the "partition rates renormalized"
// recoverable-warning policy.
func NormalizeWeights(weights []float64) ([]float64, bool) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum == 0 || (sum > 0.999999 && sum < 1.000001) {
		return weights, false
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, true
}
