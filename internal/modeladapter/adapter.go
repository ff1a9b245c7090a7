// Package modeladapter defines the thin façade the simulator uses to query
// a continuous-time Markov substitution model. The substitution-model
// catalog itself (frequency handling, mixture decomposition,
// eigendecomposition, likelihood kernel) is treated as an external
// collaborator; this package only states the contract and the one concrete
// implementation good enough to drive the simulator end to end
// (internal/modeladapter/catalog).
package modeladapter

import "errors"

// ErrNoAscertainment is returned by SetAscertainment(true) when the model
// has no ascertainment-bias mode to toggle.
var ErrNoAscertainment = errors.New("model does not support ascertainment correction")

// Model is the capability set the simulator consumes from an external
// substitution-model catalog.
type Model interface {
	// NStates is S, the number of states in the model's alphabet.
	NStates() int

	// NMixtures is the number of rate-matrix mixture components (1 if the
	// model is not a mixture).
	NMixtures() int
	IsMixture() bool
	IsHeterotachy() bool
	ContainsDNAError() bool

	// Freqs returns the stationary frequency vector for the given mixture
	// class.
	Freqs(mix int) []float64
	SetStateFrequency(mix int, freqs []float64) error

	// QMatrix returns the instantaneous rate matrix for the given mixture
	// class, row-major, S*S.
	QMatrix(mix int) [][]float64

	// PMatrix returns the transition-probability matrix for branch length
	// t under the given mixture class, row-major, S*S.
	PMatrix(mix int, t float64) [][]float64

	// MixtureClass maps a site index to its mixture-class index; only
	// meaningful when IsMixture is true and the mixture is fused with a
	// rate-heterogeneity partition.
	MixtureClass(site int) int

	// DNAErrProb returns the per-state substitution probability applied at
	// leaves when ContainsDNAError is true.
	DNAErrProb(mix int) float64

	// HasAscertainment reports whether +ASC correction is active.
	HasAscertainment() bool
	// SetAscertainment toggles ascertainment correction; used by
	// LengthRatioEstimator, which must restore the prior value on every
	// exit path.
	SetAscertainment(on bool) error

	// LogLikelihoodAllConstant returns, for each state s in [0, S), the log
	// likelihood of a column in which every taxon carries state s, under
	// the model's current (ascertainment-disabled) parameters. Used only
	// by LengthRatioEstimator.
	LogLikelihoodAllConstant(nTaxa int) []float64
}
