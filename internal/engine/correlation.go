package engine

import "math"

// Correlate computes the Pearson correlation between one factor's numeric
// value and the absolute prediction variance percentage across claims.
//
// Only claims with a valid numeric value for the factor and a non-zero
// actual settlement (so variance percentage is defined) participate.
// Degenerate cases return 0 rather than an error: fewer than 2 valid
// samples, or zero variance in either series.
func Correlate(claims []ClaimRecord, predictions []float64, factor string) float64 {
	if len(predictions) != len(claims) {
		return 0
	}

	var xs, ys []float64
	for i, claim := range claims {
		v, ok := claim.FactorValue(factor)
		if !ok || claim.Settlement == 0 {
			continue
		}
		variancePct := (predictions[i] - claim.Settlement) / claim.Settlement * 100
		xs = append(xs, v)
		ys = append(ys, math.Abs(variancePct))
	}

	return pearson(xs, ys)
}

// pearson computes the Pearson correlation coefficient of two equal-length
// series, returning 0 when fewer than 2 samples exist or either series has
// zero variance.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
