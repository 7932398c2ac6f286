package engine

import "math"

// FactorSensitivity reports how the mean absolute error responds to
// perturbing one factor's weight while all others stay at baseline.
type FactorSensitivity struct {
	BaseMAE          float64 `json:"base_mae"`
	IncreasedMAE     float64 `json:"increased_mae"`
	DecreasedMAE     float64 `json:"decreased_mae"`
	SensitivityScore float64 `json:"sensitivity_score"`
}

// SensitivityAnalysis re-runs the evaluator with each factor's weight
// increased and decreased by the perturbation fraction, one factor at a
// time. The sensitivity score is the mean absolute MAE shift of the two
// directions relative to the base MAE (0 when the base MAE is 0).
// Perturbed weights are clamped to the factor's bounds.
func SensitivityAnalysis(model *ScoringModel, claims []ClaimRecord, table WeightTable, weights WeightVector, perturbation float64) (map[string]FactorSensitivity, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, ErrInsufficientData
	}
	if perturbation <= 0 {
		perturbation = 0.1
	}

	baseReport, err := Evaluate(claims, model.PredictAll(claims, weights))
	if err != nil {
		return nil, err
	}
	baseMAE := baseReport.MAE

	results := make(map[string]FactorSensitivity, len(table))
	for _, entry := range table {
		current := weights.Get(entry.Factor, entry.BaseWeight)
		up := table.Clamp(entry.Factor, current*(1+perturbation))
		down := table.Clamp(entry.Factor, current*(1-perturbation))

		upReport, err := Evaluate(claims, model.PredictAll(claims, weights.With(entry.Factor, up)))
		if err != nil {
			return nil, err
		}
		downReport, err := Evaluate(claims, model.PredictAll(claims, weights.With(entry.Factor, down)))
		if err != nil {
			return nil, err
		}

		fs := FactorSensitivity{
			BaseMAE:      baseMAE,
			IncreasedMAE: upReport.MAE,
			DecreasedMAE: downReport.MAE,
		}
		if baseMAE > 0 {
			fs.SensitivityScore = (math.Abs(fs.IncreasedMAE-baseMAE) + math.Abs(fs.DecreasedMAE-baseMAE)) / (2 * baseMAE)
		}
		results[entry.Factor] = fs
	}

	return results, nil
}

// WeightComparison holds the evaluation of two weight vectors over the
// same claim set, with deltas reported as A minus B.
type WeightComparison struct {
	MetricsA  *EvaluationReport `json:"metrics_a"`
	MetricsB  *EvaluationReport `json:"metrics_b"`
	MAPEDelta float64           `json:"mape_delta"`
	RMSEDelta float64           `json:"rmse_delta"`
	MAEDelta  float64           `json:"mae_delta"`
}

// CompareWeights evaluates two weight vectors against the same claims.
func CompareWeights(model *ScoringModel, claims []ClaimRecord, a, b WeightVector) (*WeightComparison, error) {
	if len(claims) == 0 {
		return nil, ErrInsufficientData
	}

	reportA, err := Evaluate(claims, model.PredictAll(claims, a))
	if err != nil {
		return nil, err
	}
	reportB, err := Evaluate(claims, model.PredictAll(claims, b))
	if err != nil {
		return nil, err
	}

	// Per-claim detail is dropped from comparisons; only aggregates matter here.
	reportA.Claims = nil
	reportB.Claims = nil

	return &WeightComparison{
		MetricsA:  reportA,
		MetricsB:  reportB,
		MAPEDelta: reportA.MAPE - reportB.MAPE,
		RMSEDelta: reportA.RMSE - reportB.RMSE,
		MAEDelta:  reportA.MAE - reportB.MAE,
	}, nil
}
