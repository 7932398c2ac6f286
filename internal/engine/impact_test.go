package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombinedScore(t *testing.T) {
	tests := []struct {
		name        string
		correlation float64
		impact      float64
		maxImpact   float64
		want        float64
	}{
		{name: "blend", correlation: 0.5, impact: 1.0, maxImpact: 2.0, want: 0.6*0.5 + 0.4*0.5},
		{name: "negative correlation uses magnitude", correlation: -0.5, impact: 0, maxImpact: 2.0, want: 0.3},
		{name: "all impacts zero", correlation: 0.25, impact: 0, maxImpact: 0, want: 0.15},
		{name: "max impact factor", correlation: 1.0, impact: 2.0, maxImpact: 2.0, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CombinedScore(tt.correlation, tt.impact, tt.maxImpact), 1e-9)
		})
	}
}

func TestRecommendWeightStaysInBounds(t *testing.T) {
	entry := WeightEntry{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5}

	low := RecommendWeight(entry, 0, 0, 0)
	high := RecommendWeight(entry, 1.0, 2.0, 2.0)

	assert.Equal(t, 0.5, low)
	assert.Equal(t, 1.5, high)
}

func TestRecommendVectorPreservesWeightBudget(t *testing.T) {
	table := WeightTable{
		{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.0, MaxWeight: 2.0, Category: "severity"},
		{Factor: "treatment_duration", BaseWeight: 1.0, MinWeight: 0.0, MaxWeight: 2.0, Category: "severity"},
	}
	correlations := map[string]float64{
		"injury_severity":    0.5,
		"treatment_duration": 0.25,
	}
	impacts := FactorImpact{
		"injury_severity":    2.0,
		"treatment_duration": 1.0,
	}

	recommended := RecommendVector(table, correlations, impacts)

	var baseSum float64
	for _, e := range table {
		baseSum += e.BaseWeight
	}
	assert.InDelta(t, baseSum, recommended.Sum(), 1e-6)

	for _, e := range table {
		w := recommended[e.Factor]
		assert.GreaterOrEqual(t, w, e.MinWeight)
		assert.LessOrEqual(t, w, e.MaxWeight)
	}

	// The stronger factor keeps the larger share after rescaling.
	assert.Greater(t, recommended["injury_severity"], recommended["treatment_duration"])
}

func TestRecommendVectorAllZeroScoresFallsBackToBase(t *testing.T) {
	table := WeightTable{
		{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.0, MaxWeight: 2.0},
	}

	recommended := RecommendVector(table, map[string]float64{}, FactorImpact{})
	assert.Equal(t, table.BaseVector(), recommended)
}

func TestComputeFactorImpacts(t *testing.T) {
	table := WeightTable{
		{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5},
		{Factor: "missing_everywhere", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5},
	}
	claims := []ClaimRecord{
		claimWithFactor("a", 100000, "injury_severity", 2.0),
		claimWithFactor("b", 100000, "injury_severity", 4.0),
	}
	weights := WeightVector{"injury_severity": 1.5}

	impacts := ComputeFactorImpacts(claims, weights, table)

	assert.InDelta(t, 4.5, impacts["injury_severity"], 1e-9) // mean of 1.5*2 and 1.5*4
	assert.Equal(t, 0.0, impacts["missing_everywhere"])
}
