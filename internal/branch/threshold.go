package branch

// tauDiscrete and tauGamma are the piecewise-constant numerators of
// tau(L) = a/L, selected by the current sequence length L. Breakpoints:
// L<100k, 100k<=L<500k, 500k<=L<1M, L>=1M.
var tauDiscrete = []float64{2.226, 1.4, 1.1, 1.0}
var tauGamma = []float64{13.307, 9.1, 7, 6}

const (
	breakpoint1 = 100_000
	breakpoint2 = 500_000
	breakpoint3 = 1_000_000
)

// tau returns the length-dependent switching threshold. continuousGamma
// selects the among-site rate heterogeneity family the coefficients were
// calibrated for: discrete-rate-category models use tauDiscrete, a
// continuous gamma model uses tauGamma.
func tau(l int, continuousGamma bool) float64 {
	a := tauDiscrete
	if continuousGamma {
		a = tauGamma
	}
	var coeff float64
	switch {
	case l < breakpoint1:
		coeff = a[0]
	case l < breakpoint2:
		coeff = a[1]
	case l < breakpoint3:
		coeff = a[2]
	default:
		coeff = a[3]
	}
	if l == 0 {
		return coeff
	}
	return coeff / float64(l)
}
