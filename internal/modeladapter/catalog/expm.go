package catalog

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// transitionMatrix computes exp(Q*t) via eigendecomposition. Reversible
// rate matrices (the only kind this catalog builds) have a real spectrum,
// so the complex eigendecomposition's imaginary parts are discarded.
func transitionMatrix(q *mat.Dense, t float64) [][]float64 {
	n, _ := q.Dims()
	if t <= 0 {
		return identity(n)
	}
	var scaled mat.Dense
	scaled.Scale(t, q)

	var eig mat.Eigen
	if ok := eig.Factorize(&scaled, mat.EigenRight); !ok {
		// Degenerate matrix (e.g. all-zero row for an absorbing gap state):
		// fall back to the identity rather than propagate a NaN-filled P.
		return identity(n)
	}

	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	expD := mat.NewCDense(n, n, nil)
	for i := 0; i < n; i++ {
		expD.Set(i, i, cExp(values[i]))
	}

	var vInv mat.CDense
	if err := vInv.Inverse(&vectors); err != nil {
		return identity(n)
	}

	var tmp, result mat.CDense
	tmp.Mul(&vectors, expD)
	result.Mul(&tmp, &vInv)

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			v := real(result.At(i, j))
			if math.IsNaN(v) || v < 0 {
				v = 0
			}
			out[i][j] = v
		}
		normalizeRow(out[i])
	}
	return out
}

func cExp(z complex128) complex128 {
	r := math.Exp(real(z))
	return complex(r*math.Cos(imag(z)), r*math.Sin(imag(z)))
}

func identity(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		out[i][i] = 1
	}
	return out
}

func normalizeRow(row []float64) {
	sum := 0.0
	for _, v := range row {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for i := range row {
		row[i] /= sum
	}
}
