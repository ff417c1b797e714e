package metrics

import "math"

// Correlation computes the Pearson correlation coefficient of two paired
// series. Fewer than 2 pairs, mismatched lengths or zero variance in
// either series yields 0. The result is clamped to [-1,1] to absorb
// floating point drift.
func Correlation(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}

	r := cov / math.Sqrt(varX*varY)
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}
