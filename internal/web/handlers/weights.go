package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/claims-recal/internal/engine"
)

// GetWeights returns the active factor weight table.
func (h *EngineHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	table := engine.DefaultWeightTable()
	if h.Claims != nil {
		loaded, err := h.Claims.LoadWeightTable()
		if err != nil {
			http.Error(w, "failed to load weight table", http.StatusInternalServerError)
			return
		}
		table = loaded
	}
	writeJSON(w, table)
}

// PutWeights replaces the stored factor weight table.
func (h *EngineHandler) PutWeights(w http.ResponseWriter, r *http.Request) {
	if h.Claims == nil {
		http.Error(w, "no database configured", http.StatusBadRequest)
		return
	}

	var table engine.WeightTable
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := table.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	if err := h.Claims.SaveWeightTable(table); err != nil {
		http.Error(w, "failed to save weight table", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"success": true, "factors": len(table)})
}

// ListRuns returns recent recalibration runs, newest first.
func (h *EngineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		http.Error(w, "no database configured", http.StatusBadRequest)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.Runs.ListRuns(limit)
	if err != nil {
		http.Error(w, "failed to load runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// StatsResponse summarizes prediction quality under the baseline weights.
type StatsResponse struct {
	TotalClaims int            `json:"total_claims"`
	Metrics     MetricsPayload `json:"metrics"`
	ByRiskLevel map[string]int `json:"by_risk_level"`
}

// GetStats evaluates the stored claim set under the active weight table
// and reports aggregate metrics with a risk-level breakdown.
func (h *EngineHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.Claims == nil {
		http.Error(w, "no database configured", http.StatusBadRequest)
		return
	}

	claims, err := h.Claims.LoadClaims(0)
	if err != nil {
		http.Error(w, "failed to load claims", http.StatusInternalServerError)
		return
	}

	table, err := h.Claims.LoadWeightTable()
	if err != nil {
		table = engine.DefaultWeightTable()
	}

	report, err := engine.Evaluate(claims, h.Model.PredictAll(claims, table.BaseVector()))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	stats := StatsResponse{
		TotalClaims: report.TotalClaims,
		Metrics:     metricsPayload(report),
		ByRiskLevel: make(map[string]int),
	}
	for _, cp := range report.Claims {
		stats.ByRiskLevel[cp.RiskLevel]++
	}

	writeJSON(w, stats)
}
