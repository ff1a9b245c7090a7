// Package ratio estimates the ascertainment oversampling factor rho used
// by ConstantSiteFilter: when invariant sites will later be stripped out
// down to a target alignment length, the simulator must first generate
// more sites than that target so enough variant columns survive.
package ratio

import (
	"math"

	"github.com/evolbioinfo/alisim/internal/modeladapter"
)

// defaultRatio is substituted whenever p_const is non-finite or not below
// 1, or the resulting rho is non-finite (each of which means the
// all-constant likelihood sum below broke down numerically).
const defaultRatio = 2.1

// Estimate computes rho = 1/(1 - p_const) + 0.1 for a star tree of
// nTaxa, where p_const is the probability that a column is constant
// (all taxa share the same state) under the model's current parameters
// with ascertainment bias correction disabled. It restores the model's
// prior ascertainment setting on every exit path.
func Estimate(m modeladapter.Model, nTaxa int) (float64, error) {
	hadAscertainment := m.HasAscertainment()
	if hadAscertainment {
		if err := m.SetAscertainment(false); err != nil {
			return 0, err
		}
		defer m.SetAscertainment(true)
	}

	logLiks := m.LogLikelihoodAllConstant(nTaxa)
	pConst := 0.0
	for _, ll := range logLiks {
		pConst += math.Exp(ll)
	}

	// p_const is a probability and must lie in (0, 1); a value outside
	// that range (or a non-finite one) means the likelihood sum broke
	// down numerically, not that the model is unusual.
	if math.IsNaN(pConst) || math.IsInf(pConst, 0) || pConst >= 1 {
		return defaultRatio, nil
	}
	rho := 1/(1-pConst) + 0.1
	if math.IsNaN(rho) || math.IsInf(rho, 0) {
		return defaultRatio, nil
	}
	return rho, nil
}
