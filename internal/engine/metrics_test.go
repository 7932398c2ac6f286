package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateTwoClaimScenario(t *testing.T) {
	claims := []ClaimRecord{
		{ClaimID: "a", Settlement: 100000},
		{ClaimID: "b", Settlement: 200000},
	}
	predictions := []float64{120000, 150000}

	report, err := Evaluate(claims, predictions)
	require.NoError(t, err)

	// MAPE = ((20000/100000) + (50000/200000)) / 2 * 100 = 22.5
	assert.InDelta(t, 22.5, report.MAPE, 1e-9)
	// RMSE = sqrt((20000^2 + 50000^2) / 2)
	assert.InDelta(t, 38078.865529, report.RMSE, 1e-3)
	assert.InDelta(t, 35000, report.MAE, 1e-9)
	assert.Equal(t, 2, report.TotalClaims)

	assert.InDelta(t, 20.0, report.Claims[0].VariancePct, 1e-9)
	assert.InDelta(t, -25.0, report.Claims[1].VariancePct, 1e-9)
}

func TestEvaluateZeroActualExcludedFromPercentages(t *testing.T) {
	claims := []ClaimRecord{
		{ClaimID: "a", Settlement: 100000},
		{ClaimID: "zero", Settlement: 0},
	}
	predictions := []float64{110000, 5000}

	report, err := Evaluate(claims, predictions)
	require.NoError(t, err)

	// Only the non-zero claim feeds MAPE; the zero claim still counts
	// toward RMSE and MAE.
	assert.InDelta(t, 10.0, report.MAPE, 1e-9)
	assert.InDelta(t, 7500, report.MAE, 1e-9)
	assert.False(t, report.Claims[1].PctValid)
}

func TestEvaluateRSquaredZeroVariance(t *testing.T) {
	claims := []ClaimRecord{
		{ClaimID: "a", Settlement: 50000},
		{ClaimID: "b", Settlement: 50000},
	}

	report, err := Evaluate(claims, []float64{60000, 40000})
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.RSquared)
}

func TestEvaluateEmptyClaims(t *testing.T) {
	_, err := Evaluate(nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluatePredictionLengthMismatch(t *testing.T) {
	_, err := Evaluate([]ClaimRecord{{Settlement: 1}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrPredictionLenMismatch)
}

func TestClassifyRiskBoundaries(t *testing.T) {
	tests := []struct {
		deviation float64
		want      string
	}{
		{deviation: 0, want: RiskLow},
		{deviation: 10.0, want: RiskLow},
		{deviation: 10.01, want: RiskMedium},
		{deviation: 20.0, want: RiskMedium},
		{deviation: 20.01, want: RiskHigh},
		// Exactly 30 is High Risk, not Critical: boundaries are
		// exclusive on the lower side.
		{deviation: 30.0, want: RiskHigh},
		{deviation: 30.01, want: RiskCritical},
		{deviation: 95.0, want: RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRisk(tt.deviation), "deviation %.2f", tt.deviation)
	}
}
