package engine

import "math"

// Risk levels classify a claim's absolute prediction deviation.
// Boundaries are exclusive on the lower side: exactly 30% is High Risk.
const (
	RiskCritical = "Critical"
	RiskHigh     = "High Risk"
	RiskMedium   = "Medium Risk"
	RiskLow      = "Low Risk"
)

// ClaimPrediction pairs one claim's actual settlement with its prediction.
// VariancePct is only meaningful when the actual settlement is non-zero;
// PctValid marks whether the claim participates in percentage aggregates.
type ClaimPrediction struct {
	ClaimID     string  `json:"claim_id"`
	Actual      float64 `json:"actual"`
	Predicted   float64 `json:"predicted"`
	VariancePct float64 `json:"variance_pct"`
	PctValid    bool    `json:"-"`
	RiskLevel   string  `json:"risk_level"`
}

// EvaluationReport holds aggregate error statistics over a claim set.
type EvaluationReport struct {
	TotalClaims   int     `json:"total_claims"`
	MAPE          float64 `json:"mape"`
	RMSE          float64 `json:"rmse"`
	MAE           float64 `json:"mae"`
	RSquared      float64 `json:"r_squared"`
	TotalVariance float64 `json:"total_variance"`
	AvgVariance   float64 `json:"avg_variance"`

	Claims []ClaimPrediction `json:"claims,omitempty"`
}

// ClassifyRisk maps an absolute deviation percentage to a risk level.
func ClassifyRisk(absDeviationPct float64) string {
	switch {
	case absDeviationPct > 30:
		return RiskCritical
	case absDeviationPct > 20:
		return RiskHigh
	case absDeviationPct > 10:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Evaluate computes MAPE, RMSE, MAE, R-squared and per-claim variance
// percentages for a claim set and its predictions.
//
// Claims with a zero actual settlement are excluded from percentage
// aggregates (MAPE, avg variance) but retained in absolute-error
// aggregates (RMSE, MAE, R-squared). R-squared is 0 when the actual
// values have no variance.
func Evaluate(claims []ClaimRecord, predictions []float64) (*EvaluationReport, error) {
	if len(claims) == 0 {
		return nil, ErrInsufficientData
	}
	if len(predictions) != len(claims) {
		return nil, ErrPredictionLenMismatch
	}

	report := &EvaluationReport{
		TotalClaims: len(claims),
		Claims:      make([]ClaimPrediction, 0, len(claims)),
	}

	var (
		sumAbsPct  float64
		pctCount   int
		sumSqErr   float64
		sumAbsErr  float64
		sumActual  float64
	)

	for i, claim := range claims {
		actual := claim.Settlement
		predicted := predictions[i]
		err := predicted - actual

		cp := ClaimPrediction{
			ClaimID:   claim.ClaimID,
			Actual:    actual,
			Predicted: predicted,
		}
		if actual != 0 {
			cp.VariancePct = err / actual * 100
			cp.PctValid = true
			sumAbsPct += math.Abs(cp.VariancePct)
			pctCount++
		}
		cp.RiskLevel = ClassifyRisk(math.Abs(cp.VariancePct))

		sumSqErr += err * err
		sumAbsErr += math.Abs(err)
		sumActual += actual

		report.Claims = append(report.Claims, cp)
	}

	n := float64(len(claims))
	report.RMSE = math.Sqrt(sumSqErr / n)
	report.MAE = sumAbsErr / n
	report.TotalVariance = sumAbsPct
	if pctCount > 0 {
		report.MAPE = sumAbsPct / float64(pctCount)
		report.AvgVariance = sumAbsPct / float64(pctCount)
	}

	// R^2 = 1 - SS_res/SS_tot, defined as 0 when SS_tot is 0.
	meanActual := sumActual / n
	var ssTot float64
	for _, claim := range claims {
		d := claim.Settlement - meanActual
		ssTot += d * d
	}
	if ssTot != 0 {
		report.RSquared = 1 - sumSqErr/ssTot
	}

	return report, nil
}
