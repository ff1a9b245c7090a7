// Package seqalpha holds immutable alphabet facts consumed by the rest of
// the simulator: the number of states, the number of characters each state
// occupies once materialized, and the sentinel used for gaps and missing
// data.
package seqalpha

import (
	"fmt"
)

// Kind identifies one of the alphabets the simulator can evolve sequences
// over.
type Kind int

const (
	BIN Kind = iota
	DNA
	AA
	NT2AA
	CODON
	MORPH
)

var kindNames = map[string]Kind{
	"bin":   BIN,
	"dna":   DNA,
	"aa":    AA,
	"nt2aa": NT2AA,
	"codon": CODON,
	"morph": MORPH,
}

// Set implements flag.Value so Kind can be used directly as a CLI flag,
// following the Format.Set/.String pattern used throughout the teacher's
// own flag-enum types.
func (k *Kind) Set(s string) error {
	if v, ok := kindNames[s]; ok {
		*k = v
		return nil
	}
	return fmt.Errorf("%q is not a valid alphabet kind", s)
}

func (k Kind) String() string {
	for s, v := range kindNames {
		if v == k {
			return s
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UNKNOWN is the sentinel state code used both for true missing data and
// for deletion-induced gaps. It is always one past the last valid state
// index for the context it was produced by (Unknown == States), so it
// varies across alphabets and comparisons are always against a
// freshly-built Ctx's Unknown field rather than this bare constant.
const sentinelOffset = 1

// Ctx is the immutable set of alphabet facts a simulation run is built on.
type Ctx struct {
	Kind    Kind
	States  int // S: number of real states
	CharLen int // K: characters per state (1 for nt/aa, 3 for codon)
	Unknown uint16
	morphN  int
}

// New builds a Ctx for the given alphabet kind. n is only consulted for
// MORPH, where it is the number of observed character states.
func New(kind Kind, n int) (*Ctx, error) {
	switch kind {
	case BIN:
		return &Ctx{Kind: kind, States: 2, CharLen: 1, Unknown: 2}, nil
	case DNA, NT2AA:
		return &Ctx{Kind: kind, States: 4, CharLen: 1, Unknown: 4}, nil
	case AA:
		return &Ctx{Kind: kind, States: 20, CharLen: 1, Unknown: 20}, nil
	case CODON:
		return &Ctx{Kind: kind, States: 61, CharLen: 3, Unknown: 61}, nil
	case MORPH:
		if n < 2 {
			return nil, fmt.Errorf("morph alphabet requires at least 2 states, got %d", n)
		}
		return &Ctx{Kind: kind, States: n, CharLen: 1, Unknown: uint16(n), morphN: n}, nil
	default:
		return nil, fmt.Errorf("unknown alphabet kind %v", kind)
	}
}

// IsUnknown reports whether a state code is the UNKNOWN/gap sentinel for
// this context.
func (c *Ctx) IsUnknown(s uint16) bool { return s == c.Unknown }

// MaterializedLen returns the length in characters of a sequence of n
// states once written out (K*n). For CODON alphabets this is always a
// multiple of 3, since each state occupies three characters.
func (c *Ctx) MaterializedLen(numStates int) int { return numStates * c.CharLen }
