package engine

import "math"

// improvementDeadband is the percentage-point change below which a
// claim counts as unchanged rather than improved or degraded.
const improvementDeadband = 1.0

// Claim comparison status values.
const (
	StatusImproved  = "improved"
	StatusDegraded  = "degraded"
	StatusUnchanged = "unchanged"
)

// RecalibrationMetrics summarizes a before/after comparison of two
// weight vectors across a claim set.
type RecalibrationMetrics struct {
	TotalClaims       int     `json:"total_claims"`
	ImprovedCount     int     `json:"improved_count"`
	DegradedCount     int     `json:"degraded_count"`
	UnchangedCount    int     `json:"unchanged_count"`
	AvgImprovementPct float64 `json:"avg_improvement_pct"`
	MAPEBefore        float64 `json:"mape_before"`
	MAPEAfter         float64 `json:"mape_after"`
	RMSEBefore        float64 `json:"rmse_before"`
	RMSEAfter         float64 `json:"rmse_after"`
}

// ClaimComparison reports one claim's prediction under both vectors.
type ClaimComparison struct {
	ClaimID             string  `json:"claim_id"`
	Actual              float64 `json:"actual"`
	BaselinePrediction  float64 `json:"baseline_prediction"`
	CandidatePrediction float64 `json:"candidate_prediction"`
	BaselineErrorPct    float64 `json:"baseline_error_pct"`
	CandidateErrorPct   float64 `json:"candidate_error_pct"`
	ImprovementPct      float64 `json:"improvement_pct"`
	Status              string  `json:"status"`
}

// Recalibrate applies the baseline and candidate weight vectors across
// the whole claim set and reports per-claim and aggregate before/after
// comparisons. A claim is improved when its absolute error percentage
// drops by more than 1 percentage point, degraded when it rises by more
// than 1, unchanged otherwise. Claims with a zero actual settlement are
// counted unchanged and excluded from the improvement average.
func Recalibrate(model *ScoringModel, claims []ClaimRecord, baseline, candidate WeightVector) (*RecalibrationMetrics, []ClaimComparison, error) {
	if len(claims) == 0 {
		return nil, nil, ErrInsufficientData
	}

	baselinePreds := model.PredictAll(claims, baseline)
	candidatePreds := model.PredictAll(claims, candidate)

	beforeReport, err := Evaluate(claims, baselinePreds)
	if err != nil {
		return nil, nil, err
	}
	afterReport, err := Evaluate(claims, candidatePreds)
	if err != nil {
		return nil, nil, err
	}

	metrics := &RecalibrationMetrics{
		TotalClaims: len(claims),
		MAPEBefore:  beforeReport.MAPE,
		MAPEAfter:   afterReport.MAPE,
		RMSEBefore:  beforeReport.RMSE,
		RMSEAfter:   afterReport.RMSE,
	}

	comparisons := make([]ClaimComparison, 0, len(claims))
	var sumImprovement float64
	var included int

	for i, claim := range claims {
		cc := ClaimComparison{
			ClaimID:             claim.ClaimID,
			Actual:              claim.Settlement,
			BaselinePrediction:  baselinePreds[i],
			CandidatePrediction: candidatePreds[i],
		}

		if claim.Settlement == 0 {
			cc.Status = StatusUnchanged
			metrics.UnchangedCount++
			comparisons = append(comparisons, cc)
			continue
		}

		cc.BaselineErrorPct = math.Abs(baselinePreds[i]-claim.Settlement) / claim.Settlement * 100
		cc.CandidateErrorPct = math.Abs(candidatePreds[i]-claim.Settlement) / claim.Settlement * 100
		cc.ImprovementPct = cc.BaselineErrorPct - cc.CandidateErrorPct

		switch {
		case cc.ImprovementPct > improvementDeadband:
			cc.Status = StatusImproved
			metrics.ImprovedCount++
		case cc.ImprovementPct < -improvementDeadband:
			cc.Status = StatusDegraded
			metrics.DegradedCount++
		default:
			cc.Status = StatusUnchanged
			metrics.UnchangedCount++
		}

		sumImprovement += cc.ImprovementPct
		included++
		comparisons = append(comparisons, cc)
	}

	if included > 0 {
		metrics.AvgImprovementPct = sumImprovement / float64(included)
	}

	return metrics, comparisons, nil
}
