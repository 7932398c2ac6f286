package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/claims-recal/internal/engine"
	"github.com/claims-recal/internal/store"
)

// Config carries the optimizer defaults applied when a request omits
// them (mirrors the web package config to avoid an import cycle).
type Config struct {
	MaxIterations           int     `json:"max_iterations"`
	LearningRate            float64 `json:"learning_rate"`
	ConvergenceThreshold    float64 `json:"convergence_threshold"`
	GridSteps               int     `json:"grid_steps"`
	SensitivityPerturbation float64 `json:"sensitivity_perturbation"`
}

// EngineHandler exposes the recalibration engine over HTTP. Claims and
// Runs are nil when the server runs without a database; requests must
// then carry their claim sets inline.
type EngineHandler struct {
	Claims *store.ClaimStore
	Runs   *store.RunStore
	Model  *engine.ScoringModel
	Config *Config
}

// MetricsPayload is the aggregate metrics block shared by responses.
type MetricsPayload struct {
	MAE           float64 `json:"mae"`
	RMSE          float64 `json:"rmse"`
	MAPE          float64 `json:"mape"`
	RSquared      float64 `json:"r_squared"`
	TotalVariance float64 `json:"total_variance"`
	AvgVariance   float64 `json:"avg_variance"`
}

func metricsPayload(report *engine.EvaluationReport) MetricsPayload {
	return MetricsPayload{
		MAE:           report.MAE,
		RMSE:          report.RMSE,
		MAPE:          report.MAPE,
		RSquared:      report.RSquared,
		TotalVariance: report.TotalVariance,
		AvgVariance:   report.AvgVariance,
	}
}

// RecalibrateRequest applies a weight vector (optionally optimizing it
// first) across a claim set.
type RecalibrateRequest struct {
	Weights     engine.WeightVector  `json:"weights"`
	Claims      []engine.ClaimRecord `json:"claims,omitempty"`
	WeightTable engine.WeightTable   `json:"weight_table,omitempty"`
	Optimize    bool                 `json:"optimize,omitempty"`
	Method      string               `json:"method,omitempty"`
}

// RecalibrateResponse reports the metrics of the applied weights.
type RecalibrateResponse struct {
	Success          bool                `json:"success"`
	Metrics          MetricsPayload      `json:"metrics"`
	OptimizedWeights engine.WeightVector `json:"optimized_weights,omitempty"`
	Message          string              `json:"message"`
}

// Recalibrate evaluates the supplied weights over the claim set and,
// when requested, runs the optimizer first and reports its weights.
func (h *EngineHandler) Recalibrate(w http.ResponseWriter, r *http.Request) {
	var req RecalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, table, ok := h.resolveInputs(w, req.Claims, req.WeightTable)
	if !ok {
		return
	}

	weights := req.Weights
	if weights == nil {
		weights = table.BaseVector()
	}

	resp := RecalibrateResponse{Success: true, Message: "weights applied"}

	if req.Optimize {
		cfg := h.optimizationConfig()
		opt, err := engine.NewOptimizer(h.Model, claims, table, weights, cfg)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		result, err := opt.Optimize(r.Context(), req.Method)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		weights = result.OptimizedWeights
		resp.OptimizedWeights = result.OptimizedWeights
		resp.Message = "weights optimized and applied"
	}

	report, err := engine.Evaluate(claims, h.Model.PredictAll(claims, weights))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp.Metrics = metricsPayload(report)

	writeJSON(w, resp)
}

// OptimizeRequest runs the weight optimizer over a claim set.
type OptimizeRequest struct {
	Claims         []engine.ClaimRecord `json:"claims,omitempty"`
	CurrentWeights engine.WeightVector  `json:"current_weights,omitempty"`
	WeightTable    engine.WeightTable   `json:"weight_table,omitempty"`
	Method         string               `json:"optimization_method,omitempty"`
	Target         engine.TargetMetric  `json:"target_metric,omitempty"`
	MaxIterations  int                  `json:"max_iterations,omitempty"`
	LearningRate   float64              `json:"learning_rate,omitempty"`
	Threshold      float64              `json:"convergence_threshold,omitempty"`
	GridSteps      int                  `json:"grid_steps,omitempty"`
	FrozenFactors  []string             `json:"frozen_factors,omitempty"`
}

// ImprovementMetrics compares error statistics before and after.
type ImprovementMetrics struct {
	MAEImprovement    float64 `json:"mae_improvement"`
	RMSEImprovement   float64 `json:"rmse_improvement"`
	VarianceReduction float64 `json:"variance_reduction"`
}

// OptimizeResponse reports the optimizer outcome.
type OptimizeResponse struct {
	OptimizedWeights   engine.WeightVector      `json:"optimized_weights"`
	ImprovementMetrics ImprovementMetrics       `json:"improvement_metrics"`
	ImprovementPct     float64                  `json:"improvement_pct"`
	Iterations         int                      `json:"iterations"`
	Converged          bool                     `json:"converged"`
	History            []engine.IterationRecord `json:"convergence_history,omitempty"`
}

// Optimize searches for a weight vector reducing aggregate error.
func (h *EngineHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, table, ok := h.resolveInputs(w, req.Claims, req.WeightTable)
	if !ok {
		return
	}

	cfg := h.optimizationConfig()
	if req.Target != "" {
		cfg.Target = req.Target
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.LearningRate > 0 {
		cfg.LearningRate = req.LearningRate
	}
	if req.Threshold > 0 {
		cfg.ConvergenceThreshold = req.Threshold
	}
	if req.GridSteps > 0 {
		cfg.GridSteps = req.GridSteps
	}
	cfg.FrozenFactors = req.FrozenFactors

	start := req.CurrentWeights
	if start == nil {
		start = table.BaseVector()
	}

	before, err := engine.Evaluate(claims, h.Model.PredictAll(claims, start))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	opt, err := engine.NewOptimizer(h.Model, claims, table, start, cfg)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	result, err := opt.Optimize(r.Context(), req.Method)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	after, err := engine.Evaluate(claims, h.Model.PredictAll(claims, result.OptimizedWeights))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.recordRun(req.Method, claims, before, after, result)

	writeJSON(w, OptimizeResponse{
		OptimizedWeights: result.OptimizedWeights,
		ImprovementMetrics: ImprovementMetrics{
			MAEImprovement:    before.MAE - after.MAE,
			RMSEImprovement:   before.RMSE - after.RMSE,
			VarianceReduction: before.AvgVariance - after.AvgVariance,
		},
		ImprovementPct: result.ImprovementPct,
		Iterations:     result.Iterations,
		Converged:      result.Converged,
		History:        result.History,
	})
}

// SensitivityRequest perturbs each factor's weight up and down.
type SensitivityRequest struct {
	Weights      engine.WeightVector  `json:"weights,omitempty"`
	Claims       []engine.ClaimRecord `json:"claims,omitempty"`
	WeightTable  engine.WeightTable   `json:"weight_table,omitempty"`
	Perturbation float64              `json:"perturbation,omitempty"`
}

// SensitivityResponse maps factor name to its sensitivity figures.
type SensitivityResponse struct {
	Success            bool                                `json:"success"`
	SensitivityResults map[string]engine.FactorSensitivity `json:"sensitivity_results"`
}

// Sensitivity reports how the MAE responds to per-factor perturbations.
func (h *EngineHandler) Sensitivity(w http.ResponseWriter, r *http.Request) {
	var req SensitivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, table, ok := h.resolveInputs(w, req.Claims, req.WeightTable)
	if !ok {
		return
	}

	weights := req.Weights
	if weights == nil {
		weights = table.BaseVector()
	}
	perturbation := req.Perturbation
	if perturbation <= 0 {
		perturbation = h.Config.SensitivityPerturbation
	}

	results, err := engine.SensitivityAnalysis(h.Model, claims, table, weights, perturbation)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, SensitivityResponse{Success: true, SensitivityResults: results})
}

// CompareRequest evaluates two weight vectors against the same claims.
type CompareRequest struct {
	WeightsA engine.WeightVector  `json:"weights_a"`
	WeightsB engine.WeightVector  `json:"weights_b"`
	Claims   []engine.ClaimRecord `json:"claims,omitempty"`
}

// CompareWeights returns the metrics of both vectors plus deltas.
func (h *EngineHandler) CompareWeights(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WeightsA == nil || req.WeightsB == nil {
		http.Error(w, "weights_a and weights_b are required", http.StatusBadRequest)
		return
	}

	claims, _, ok := h.resolveInputs(w, req.Claims, nil)
	if !ok {
		return
	}

	comparison, err := engine.CompareWeights(h.Model, claims, req.WeightsA, req.WeightsB)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, comparison)
}

// optimizationConfig builds the optimizer defaults from the handler
// config, falling back to the engine defaults for unset fields.
func (h *EngineHandler) optimizationConfig() engine.OptimizationConfig {
	cfg := engine.DefaultOptimizationConfig()
	if h.Config == nil {
		return cfg
	}
	if h.Config.MaxIterations > 0 {
		cfg.MaxIterations = h.Config.MaxIterations
	}
	if h.Config.LearningRate > 0 {
		cfg.LearningRate = h.Config.LearningRate
	}
	if h.Config.ConvergenceThreshold > 0 {
		cfg.ConvergenceThreshold = h.Config.ConvergenceThreshold
	}
	if h.Config.GridSteps > 0 {
		cfg.GridSteps = h.Config.GridSteps
	}
	return cfg
}

// resolveInputs fills missing claims and weight tables from the store.
// It writes the HTTP error itself and reports ok=false on failure.
func (h *EngineHandler) resolveInputs(w http.ResponseWriter, claims []engine.ClaimRecord, table engine.WeightTable) ([]engine.ClaimRecord, engine.WeightTable, bool) {
	if len(claims) == 0 {
		if h.Claims == nil {
			http.Error(w, "no claims supplied and no database configured", http.StatusBadRequest)
			return nil, nil, false
		}
		loaded, err := h.Claims.LoadClaims(0)
		if err != nil {
			http.Error(w, "failed to load claims", http.StatusInternalServerError)
			return nil, nil, false
		}
		claims = loaded
	}

	if table == nil {
		if h.Claims != nil {
			loaded, err := h.Claims.LoadWeightTable()
			if err == nil {
				table = loaded
			}
		}
		if table == nil {
			table = engine.DefaultWeightTable()
		}
	} else if err := table.Validate(); err != nil {
		writeEngineError(w, err)
		return nil, nil, false
	}

	return claims, table, true
}

// recordRun persists the optimizer outcome when a run store is wired.
func (h *EngineHandler) recordRun(method string, claims []engine.ClaimRecord, before, after *engine.EvaluationReport, result *engine.OptimizationResult) {
	if h.Runs == nil {
		return
	}
	if method == "" {
		method = engine.MethodCoordinateDescent
	}

	run, err := h.Runs.CreateRun("api optimize", method)
	if err != nil {
		return
	}
	run.Converged = result.Converged
	run.Iterations = result.Iterations

	metrics := &engine.RecalibrationMetrics{
		TotalClaims: len(claims),
		MAPEBefore:  before.MAPE,
		MAPEAfter:   after.MAPE,
		RMSEBefore:  before.RMSE,
		RMSEAfter:   after.RMSE,
	}
	// Audit persistence is best-effort; the response already carries
	// the result.
	_ = h.Runs.CompleteRun(run, metrics, result.OptimizedWeights)
}

// writeEngineError maps engine errors onto HTTP statuses: validation
// and data errors are client faults, anything else is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidWeightEntry),
		errors.Is(err, engine.ErrUnknownFrozenFactor),
		errors.Is(err, engine.ErrInsufficientData):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
