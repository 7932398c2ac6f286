package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() WeightTable {
	return WeightTable{
		{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5, Category: "severity"},
		{Factor: "treatment_duration", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5, Category: "severity"},
		{Factor: "causation_clarity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5, Category: "causation"},
		{Factor: "venue_rating", BaseWeight: 1.0, MinWeight: 0.8, MaxWeight: 1.2, Category: "venue"},
	}
}

// syntheticClaims builds claims whose actual settlements were generated
// by the model under the given "true" weights, so those weights achieve
// zero error and anything else leaves room to improve.
func syntheticClaims(model *ScoringModel, truth WeightVector, n int) []ClaimRecord {
	claims := make([]ClaimRecord, 0, n)
	for i := 0; i < n; i++ {
		claim := ClaimRecord{
			ClaimID: fmt.Sprintf("CLM-%04d", i+1),
			Version: 1,
			Features: map[string]interface{}{
				"injury_severity":    float64(1 + i%5),
				"treatment_duration": float64(1 + (i*2)%4),
				"causation_clarity":  float64(1 + i%3),
				FeatureImpactScore:   1 + i%4,
				FeatureRatingWeight:  0.05 * float64(i%3),
			},
		}
		claim.Settlement = model.Predict(claim, truth)
		claims = append(claims, claim)
	}
	return claims
}

func TestCoordinateDescentImprovesAndStaysInBounds(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	// Every true weight sits at or above the baseline, so the baseline
	// underpredicts across the board and the first upward move on any
	// severity factor is a guaranteed improvement.
	truth := WeightVector{
		"injury_severity":    1.3,
		"treatment_duration": 1.2,
		"causation_clarity":  1.2,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 20)

	cfg := DefaultOptimizationConfig()
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.CoordinateDescent(context.Background())
	require.NoError(t, err)

	assert.Greater(t, result.ImprovementPct, 0.0)
	assert.NotEmpty(t, result.History)

	for _, entry := range table {
		w := result.OptimizedWeights[entry.Factor]
		assert.GreaterOrEqual(t, w, entry.MinWeight, "factor %s", entry.Factor)
		assert.LessOrEqual(t, w, entry.MaxWeight, "factor %s", entry.Factor)
	}
}

func TestCoordinateDescentHistoryNonIncreasing(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	truth := WeightVector{
		"injury_severity":    1.4,
		"treatment_duration": 0.6,
		"causation_clarity":  1.1,
		"venue_rating":       1.1,
	}
	claims := syntheticClaims(model, truth, 15)

	cfg := DefaultOptimizationConfig()
	cfg.MaxIterations = 25
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.CoordinateDescent(context.Background())
	require.NoError(t, err)

	// Moves are only accepted on strict improvement, so the recorded
	// MAPE sequence never rises.
	for i := 1; i < len(result.History); i++ {
		assert.LessOrEqual(t, result.History[i].MAPE, result.History[i-1].MAPE,
			"iteration %d", result.History[i].Iteration)
	}
}

func TestCoordinateDescentConvergesWhenNothingMoves(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	// Settlements generated from the baseline: the starting vector is
	// already optimal and the first round accepts nothing.
	claims := syntheticClaims(model, table.BaseVector(), 10)

	opt, err := NewOptimizer(model, claims, table, nil, DefaultOptimizationConfig())
	require.NoError(t, err)

	result, err := opt.CoordinateDescent(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.InDelta(t, 0.0, result.FinalMAPE, 1e-9)
}

func TestCoordinateDescentRespectsFrozenFactors(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	truth := WeightVector{
		"injury_severity":    1.5,
		"treatment_duration": 0.5,
		"causation_clarity":  1.3,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 12)

	cfg := DefaultOptimizationConfig()
	cfg.FrozenFactors = []string{"treatment_duration"}
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.CoordinateDescent(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.OptimizedWeights["treatment_duration"])
	for _, rec := range result.History {
		assert.NotContains(t, rec.WeightDeltas, "treatment_duration")
	}
}

func TestNewOptimizerValidation(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	claims := syntheticClaims(model, testTable().BaseVector(), 3)

	t.Run("unknown frozen factor", func(t *testing.T) {
		cfg := DefaultOptimizationConfig()
		cfg.FrozenFactors = []string{"no_such_factor"}
		_, err := NewOptimizer(model, claims, testTable(), nil, cfg)
		assert.ErrorIs(t, err, ErrUnknownFrozenFactor)
	})

	t.Run("empty claim set", func(t *testing.T) {
		_, err := NewOptimizer(model, nil, testTable(), nil, DefaultOptimizationConfig())
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("inverted bounds", func(t *testing.T) {
		bad := WeightTable{
			{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 2.0, MaxWeight: 0.5},
		}
		_, err := NewOptimizer(model, claims, bad, nil, DefaultOptimizationConfig())
		assert.ErrorIs(t, err, ErrInvalidWeightEntry)
	})

	t.Run("duplicate factor", func(t *testing.T) {
		bad := WeightTable{
			{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5},
			{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5},
		}
		_, err := NewOptimizer(model, claims, bad, nil, DefaultOptimizationConfig())
		assert.ErrorIs(t, err, ErrInvalidWeightEntry)
	})
}

func TestOptimizerCancellation(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	claims := syntheticClaims(model, table.BaseVector(), 5)

	opt, err := NewOptimizer(model, claims, table, nil, DefaultOptimizationConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = opt.CoordinateDescent(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = opt.GridSearch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridSearchZeroStepsSamplesOnlyMin(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	truth := WeightVector{
		"injury_severity":    0.9,
		"treatment_duration": 1.1,
		"causation_clarity":  1.0,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 10)

	cfg := DefaultOptimizationConfig()
	cfg.GridSteps = 0
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.GridSearch(context.Background())
	require.NoError(t, err)

	// With zero steps each factor is only ever offered min_weight, so
	// every weight ends at either its starting value or its minimum.
	for _, entry := range table {
		w := result.OptimizedWeights[entry.Factor]
		if w != entry.BaseWeight {
			assert.Equal(t, entry.MinWeight, w, "factor %s", entry.Factor)
		}
	}

	// The running best never worsens.
	for i := 1; i < len(result.History); i++ {
		assert.LessOrEqual(t, result.History[i].MAPE, result.History[i-1].MAPE)
	}
}

func TestGridSearchImprovesTowardTruth(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	// One-sided truth: the baseline underpredicts everywhere, so some
	// grid candidate above baseline strictly improves the score.
	truth := WeightVector{
		"injury_severity":    1.5,
		"treatment_duration": 1.4,
		"causation_clarity":  1.0,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 16)

	cfg := DefaultOptimizationConfig()
	cfg.GridSteps = 10
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.GridSearch(context.Background())
	require.NoError(t, err)

	assert.Greater(t, result.ImprovementPct, 0.0)
	assert.True(t, result.Converged)
	assert.Equal(t, len(table), result.Iterations)
}

func TestHybridRestrictsToTopFactors(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	truth := WeightVector{
		"injury_severity":    1.3,
		"treatment_duration": 0.7,
		"causation_clarity":  1.2,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 12)

	cfg := DefaultOptimizationConfig()
	cfg.FrozenFactors = []string{"venue_rating"}
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	result, err := opt.Hybrid(context.Background())
	require.NoError(t, err)

	// Pre-frozen factors never enter the ranked set.
	assert.Equal(t, 1.0, result.OptimizedWeights["venue_rating"])
	for _, entry := range table {
		w := result.OptimizedWeights[entry.Factor]
		assert.GreaterOrEqual(t, w, entry.MinWeight)
		assert.LessOrEqual(t, w, entry.MaxWeight)
	}
}

func TestOptimizeDispatch(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	claims := syntheticClaims(model, table.BaseVector(), 5)

	opt, err := NewOptimizer(model, claims, table, nil, DefaultOptimizationConfig())
	require.NoError(t, err)

	for _, method := range []string{"", MethodCoordinateDescent, MethodGridSearch, MethodHybrid} {
		_, err := opt.Optimize(context.Background(), method)
		assert.NoError(t, err, "method %q", method)
	}

	_, err = opt.Optimize(context.Background(), "simulated_annealing")
	assert.Error(t, err)
}

func TestScoreBlendConstant(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	truth := WeightVector{
		"injury_severity":    1.2,
		"treatment_duration": 0.8,
		"causation_clarity":  1.0,
		"venue_rating":       1.0,
	}
	claims := syntheticClaims(model, truth, 8)

	cfg := DefaultOptimizationConfig()
	cfg.Target = TargetBoth
	opt, err := NewOptimizer(model, claims, table, nil, cfg)
	require.NoError(t, err)

	score, mape, rmse := opt.evaluate(table.BaseVector())
	assert.InDelta(t, mape+rmse/10000.0, score, 1e-12)
}

func TestOptimizerClampsSuppliedStartVector(t *testing.T) {
	model := NewScoringModel(DefaultCoefficients())
	table := testTable()
	claims := syntheticClaims(model, table.BaseVector(), 5)

	start := WeightVector{"injury_severity": 99.0}
	opt, err := NewOptimizer(model, claims, table, start, DefaultOptimizationConfig())
	require.NoError(t, err)

	assert.Equal(t, 1.5, opt.start["injury_severity"])
	// Gaps are filled from the table baseline.
	assert.Equal(t, 1.0, opt.start["treatment_duration"])
}
