package engine

import "math"

// FactorImpact maps factor name to a non-negative importance score. The
// scale is only meaningful relative to other factors within one run.
type FactorImpact map[string]float64

// Combined-score blend between correlation strength and current weighted
// contribution. Fixed by the calibration methodology.
const (
	correlationShare = 0.6
	impactShare      = 0.4
)

// ComputeFactorImpacts measures each table factor's current weighted
// contribution: the mean absolute value of weight x factor value across
// claims that carry the factor.
func ComputeFactorImpacts(claims []ClaimRecord, weights WeightVector, table WeightTable) FactorImpact {
	impacts := make(FactorImpact, len(table))
	for _, e := range table {
		var sum float64
		var count int
		for _, claim := range claims {
			if v, ok := claim.FactorValue(e.Factor); ok {
				sum += math.Abs(weights.Get(e.Factor, e.BaseWeight) * v)
				count++
			}
		}
		if count > 0 {
			impacts[e.Factor] = sum / float64(count)
		} else {
			impacts[e.Factor] = 0
		}
	}
	return impacts
}

// CombinedScore blends correlation strength with normalized impact:
// 0.6*|correlation| + 0.4*(impact/maxImpact). When every impact is 0 the
// normalized term is 0.
func CombinedScore(correlation, impact, maxImpact float64) float64 {
	var normalized float64
	if maxImpact > 0 {
		normalized = impact / maxImpact
	}
	return correlationShare*math.Abs(correlation) + impactShare*normalized
}

// RecommendWeight derives a bounded recommended weight for one factor
// from its combined score: min + score*(max-min), always inside the
// entry's bounds.
func RecommendWeight(entry WeightEntry, correlation, impact, maxImpact float64) float64 {
	score := CombinedScore(correlation, impact, maxImpact)
	w := entry.MinWeight + score*(entry.MaxWeight-entry.MinWeight)
	if w < entry.MinWeight {
		w = entry.MinWeight
	}
	if w > entry.MaxWeight {
		w = entry.MaxWeight
	}
	return w
}

// RecommendVector computes a recommended weight for every table factor,
// then rescales the whole vector by sum(base)/sum(recommended) so the
// aggregate weight budget matches the baseline. Rescaled weights are
// clamped back to their bounds, so individual factors never escape
// [min,max] even when the rescale pushes them outward.
func RecommendVector(table WeightTable, correlations map[string]float64, impacts FactorImpact) WeightVector {
	var maxImpact float64
	for _, v := range impacts {
		if v > maxImpact {
			maxImpact = v
		}
	}

	recommended := make(WeightVector, len(table))
	var baseSum, recSum float64
	for _, e := range table {
		w := RecommendWeight(e, correlations[e.Factor], impacts[e.Factor], maxImpact)
		recommended[e.Factor] = w
		baseSum += e.BaseWeight
		recSum += w
	}

	if recSum == 0 {
		return table.BaseVector()
	}

	scale := baseSum / recSum
	for _, e := range table {
		recommended[e.Factor] = table.Clamp(e.Factor, recommended[e.Factor]*scale)
	}
	return recommended
}
