package engine

import (
	"math"
	"strconv"
	"strings"
)

// ClaimRecord is an immutable snapshot of one insurance claim. Feature
// values come from upstream JSON/JSONB and mix numbers, numeric strings
// and missing keys, so every access goes through numericFeature.
type ClaimRecord struct {
	ClaimID    string                 `json:"claim_id" yaml:"claim_id"`
	Version    int                    `json:"version" yaml:"version"`
	Settlement float64                `json:"settlement" yaml:"settlement"`
	Features   map[string]interface{} `json:"features" yaml:"features"`
}

// Feature keys with claim-level meaning in the prediction formula.
const (
	FeatureImpactScore   = "impact_score"
	FeatureSeverityScore = "severity_score"
	FeatureRatingWeight  = "rating_weight"
)

// SeverityFactors are the sub-factor keys summed into S.
var SeverityFactors = []string{
	"injury_severity",
	"treatment_duration",
	"surgery_score",
	"impairment_rating",
	"future_care",
}

// CausationFactors are the sub-factor keys summed into the causation multiplier.
var CausationFactors = []string{
	"causation_clarity",
	"liability_strength",
	"comparative_fault",
	"documentation_quality",
}

// coerceNumeric converts a loosely typed feature value to a float64.
// Absent, non-numeric, NaN and infinite values all report ok=false with
// a zero value, so callers never propagate NaN into the formula.
func coerceNumeric(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// numericFeature returns the claim's value for key, or def when the key
// is absent or not coercible to a number.
func (c ClaimRecord) numericFeature(key string, def float64) float64 {
	if c.Features == nil {
		return def
	}
	if f, ok := coerceNumeric(c.Features[key]); ok {
		return f
	}
	return def
}

// FactorValue returns the claim's numeric value for a named factor and
// whether a valid value is present.
func (c ClaimRecord) FactorValue(name string) (float64, bool) {
	if c.Features == nil {
		return 0, false
	}
	return coerceNumeric(c.Features[name])
}

// ImpactScore returns the claim's impact field clamped to [1,4],
// defaulting to 2 when absent or unparseable.
func (c ClaimRecord) ImpactScore() int {
	raw := c.numericFeature(FeatureImpactScore, 2)
	i := int(raw)
	if i < 1 {
		i = 1
	} else if i > 4 {
		i = 4
	}
	return i
}

// RatingWeight returns the claim-level venue multiplier, 0 when absent.
func (c ClaimRecord) RatingWeight() float64 {
	return c.numericFeature(FeatureRatingWeight, 0)
}
