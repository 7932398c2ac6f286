package engine

import "math"

// Coefficients are the seven fixed exponent terms of the prediction
// formula. They are calibrated offline against historical settlements
// and are independent of the per-factor weight table.
type Coefficients struct {
	C0 float64 `json:"c0" yaml:"c0"` // intercept
	C1 float64 `json:"c1" yaml:"c1"` // severity sum
	C2 float64 `json:"c2" yaml:"c2"` // impact
	C3 float64 `json:"c3" yaml:"c3"` // severity x impact
	C4 float64 `json:"c4" yaml:"c4"` // impact squared
	C5 float64 `json:"c5" yaml:"c5"` // impact cubed
	C6 float64 `json:"c6" yaml:"c6"` // severity squared
}

// DefaultCoefficients returns the production coefficient set.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		C0: 9.2103,
		C1: 0.0850,
		C2: 0.3200,
		C3: 0.0110,
		C4: -0.0450,
		C5: 0.0030,
		C6: -0.0009,
	}
}

// ScoringModel computes a predicted settlement for one claim from its
// feature values and a weight vector.
type ScoringModel struct {
	coeffs Coefficients
}

// NewScoringModel creates a scoring model with the given coefficients.
func NewScoringModel(coeffs Coefficients) *ScoringModel {
	return &ScoringModel{coeffs: coeffs}
}

// Coefficients returns the model's coefficient set.
func (m *ScoringModel) Coefficients() Coefficients {
	return m.coeffs
}

// Predict computes the settlement prediction for a claim under the given
// weight vector:
//
//	S  = weighted severity sub-factor sum (+ precomputed severity score if present)
//	I  = impact score clamped to [1,4], default 2
//	E  = C0 + C1*S + C2*I + C3*S*I + C4*I^2 + C5*I^3 + C6*S^2
//	prediction = exp(E) * (1 + venueWeight*rating_weight) * (1 + 0.1*weighted causation sum)
//
// Each sub-factor value is scaled by its weight from the vector; factors
// missing from the vector use a neutral weight of 1. Absent or garbled
// feature values contribute 0. The exponential base keeps the output
// non-negative, and identical inputs always produce identical output.
func (m *ScoringModel) Predict(claim ClaimRecord, weights WeightVector) float64 {
	s := m.severitySum(claim, weights)
	i := float64(claim.ImpactScore())
	causation := m.causationSum(claim, weights)

	c := m.coeffs
	exponent := c.C0 +
		c.C1*s +
		c.C2*i +
		c.C3*s*i +
		c.C4*i*i +
		c.C5*i*i*i +
		c.C6*s*s

	base := math.Exp(exponent)

	rating := claim.RatingWeight() * weights.Get("venue_rating", 1)

	return base * (1 + rating) * (1 + 0.1*causation)
}

// severitySum computes S: each severity sub-factor value scaled by its
// weight, plus the precomputed severity score when the claim carries one.
func (m *ScoringModel) severitySum(claim ClaimRecord, weights WeightVector) float64 {
	var sum float64
	for _, factor := range SeverityFactors {
		if v, ok := claim.FactorValue(factor); ok {
			sum += weights.Get(factor, 1) * v
		}
	}
	if v, ok := claim.FactorValue(FeatureSeverityScore); ok {
		sum += v
	}
	return sum
}

// causationSum computes the weighted causation sub-factor sum.
func (m *ScoringModel) causationSum(claim ClaimRecord, weights WeightVector) float64 {
	var sum float64
	for _, factor := range CausationFactors {
		if v, ok := claim.FactorValue(factor); ok {
			sum += weights.Get(factor, 1) * v
		}
	}
	return sum
}

// PredictAll computes predictions for every claim under one weight vector.
func (m *ScoringModel) PredictAll(claims []ClaimRecord, weights WeightVector) []float64 {
	predictions := make([]float64, len(claims))
	for i, claim := range claims {
		predictions[i] = m.Predict(claim, weights)
	}
	return predictions
}
