package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TargetMetric selects which error statistic the optimizer minimizes.
type TargetMetric string

const (
	TargetMAPE TargetMetric = "mape"
	TargetRMSE TargetMetric = "rmse"
	TargetBoth TargetMetric = "both"
)

// rmseBlendDivisor scales RMSE into percentage-point territory for the
// "both" target: score = mape + rmse/10000. The constant has no
// statistical justification beyond matching units and must be preserved
// bit-for-bit for compatibility with historical runs.
const rmseBlendDivisor = 10000.0

// hybridTopFactors is how many factors the correlation-guided strategy
// keeps unfrozen.
const hybridTopFactors = 10

// Optimization methods accepted by Optimize.
const (
	MethodCoordinateDescent = "coordinate_descent"
	MethodGridSearch        = "grid_search"
	MethodHybrid            = "hybrid"
)

// OptimizationConfig controls a single optimizer run.
type OptimizationConfig struct {
	Target               TargetMetric `json:"target_metric" yaml:"target_metric"`
	MaxIterations        int          `json:"max_iterations" yaml:"max_iterations"`
	LearningRate         float64      `json:"learning_rate" yaml:"learning_rate"`
	ConvergenceThreshold float64      `json:"convergence_threshold" yaml:"convergence_threshold"`
	GridSteps            int          `json:"grid_steps" yaml:"grid_steps"`
	FrozenFactors        []string     `json:"frozen_factors" yaml:"frozen_factors"`
}

// DefaultOptimizationConfig returns the production defaults.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		Target:               TargetMAPE,
		MaxIterations:        50,
		LearningRate:         0.1,
		ConvergenceThreshold: 0.001,
		GridSteps:            10,
	}
}

// IterationRecord is one entry of the convergence history. WeightDeltas
// holds the signed weight change accepted for each factor this round;
// factors with no accepted move are absent.
type IterationRecord struct {
	Iteration    int                `json:"iteration"`
	MAPE         float64            `json:"mape"`
	RMSE         float64            `json:"rmse"`
	WeightDeltas map[string]float64 `json:"weight_deltas"`
}

// OptimizationResult is the immutable outcome of one optimizer run.
type OptimizationResult struct {
	OptimizedWeights WeightVector      `json:"optimized_weights"`
	Iterations       int               `json:"iterations_run"`
	FinalMAPE        float64           `json:"final_mape"`
	FinalRMSE        float64           `json:"final_rmse"`
	ImprovementPct   float64           `json:"improvement_pct"`
	Converged        bool              `json:"converged"`
	History          []IterationRecord `json:"convergence_history"`
}

// Optimizer searches for a revised weight vector that reduces aggregate
// prediction error over a fixed claim set. Three strategies share one
// evaluation primitive; all of them iterate factors in weight-table
// order and compare candidate moves against the running best score.
type Optimizer struct {
	model  *ScoringModel
	claims []ClaimRecord
	table  WeightTable
	start  WeightVector
	cfg    OptimizationConfig
	frozen map[string]bool
}

// NewOptimizer validates inputs and builds an optimizer. The start
// vector supplies the current weights; nil means the table baseline.
// Validation fails fast: a bad weight entry, an unknown frozen factor or
// an empty claim set is reported before any computation starts.
func NewOptimizer(model *ScoringModel, claims []ClaimRecord, table WeightTable, start WeightVector, cfg OptimizationConfig) (*Optimizer, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	frozen := make(map[string]bool, len(cfg.FrozenFactors))
	for _, f := range cfg.FrozenFactors {
		if _, ok := table.Entry(f); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFrozenFactor, f)
		}
		frozen[f] = true
	}
	if len(claims) == 0 {
		return nil, ErrInsufficientData
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultOptimizationConfig().MaxIterations
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = DefaultOptimizationConfig().LearningRate
	}
	if cfg.Target == "" {
		cfg.Target = TargetMAPE
	}

	if start == nil {
		start = table.BaseVector()
	} else {
		// Clamp the supplied vector into bounds and fill gaps from the
		// table so every factor has a starting weight.
		filled := table.BaseVector()
		for f, w := range start {
			filled[f] = table.Clamp(f, w)
		}
		start = filled
	}

	return &Optimizer{
		model:  model,
		claims: claims,
		table:  table,
		start:  start,
		cfg:    cfg,
		frozen: frozen,
	}, nil
}

// Optimize dispatches to the named strategy. An empty method runs
// coordinate descent.
func (o *Optimizer) Optimize(ctx context.Context, method string) (*OptimizationResult, error) {
	switch method {
	case "", MethodCoordinateDescent:
		return o.CoordinateDescent(ctx)
	case MethodGridSearch:
		return o.GridSearch(ctx)
	case MethodHybrid:
		return o.Hybrid(ctx)
	default:
		return nil, fmt.Errorf("unknown optimization method %q", method)
	}
}

// evaluate scores a weight vector over the whole claim set.
func (o *Optimizer) evaluate(weights WeightVector) (score, mape, rmse float64) {
	report, err := Evaluate(o.claims, o.model.PredictAll(o.claims, weights))
	if err != nil {
		// Claims were validated non-empty at construction.
		return math.Inf(1), 0, 0
	}
	mape = report.MAPE
	rmse = report.RMSE
	switch o.cfg.Target {
	case TargetRMSE:
		score = rmse
	case TargetBoth:
		score = mape + rmse/rmseBlendDivisor
	default:
		score = mape
	}
	return score, mape, rmse
}

// CoordinateDescent perturbs one factor at a time by
// learning_rate*(max-min), accepting whichever direction strictly
// improves the running best score. Updates are sequential: a factor
// accepted earlier in a round is already in place when later factors
// are evaluated. The run converges when the largest accepted weight
// change in a round falls below the convergence threshold.
func (o *Optimizer) CoordinateDescent(ctx context.Context) (*OptimizationResult, error) {
	return o.coordinateDescent(ctx, o.frozen)
}

func (o *Optimizer) coordinateDescent(ctx context.Context, frozen map[string]bool) (*OptimizationResult, error) {
	best := o.start.Clone()
	bestScore, bestMAPE, bestRMSE := o.evaluate(best)
	initialMAPE := bestMAPE

	result := &OptimizationResult{}

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deltas := make(map[string]float64)
		var maxDelta float64

		for _, entry := range o.table {
			if frozen[entry.Factor] {
				continue
			}

			delta := o.cfg.LearningRate * (entry.MaxWeight - entry.MinWeight)
			current := best.Get(entry.Factor, entry.BaseWeight)
			up := o.table.Clamp(entry.Factor, current+delta)
			down := o.table.Clamp(entry.Factor, current-delta)

			// Evaluate both directions against the running best, not
			// the round-entry score: later factors see earlier accepted
			// moves, which keeps accept decisions consistent within a
			// round. The better of the two candidates wins, and only if
			// it strictly improves the best score.
			accepted := current
			acceptedScore, acceptedMAPE, acceptedRMSE := bestScore, bestMAPE, bestRMSE
			for _, candidate := range []float64{up, down} {
				if candidate == current {
					continue
				}
				score, mape, rmse := o.evaluate(best.With(entry.Factor, candidate))
				if score < acceptedScore {
					accepted = candidate
					acceptedScore, acceptedMAPE, acceptedRMSE = score, mape, rmse
				}
			}
			if accepted != current {
				best = best.With(entry.Factor, accepted)
				bestScore, bestMAPE, bestRMSE = acceptedScore, acceptedMAPE, acceptedRMSE
				change := accepted - current
				deltas[entry.Factor] = change
				if math.Abs(change) > maxDelta {
					maxDelta = math.Abs(change)
				}
			}
		}

		result.History = append(result.History, IterationRecord{
			Iteration:    iter,
			MAPE:         bestMAPE,
			RMSE:         bestRMSE,
			WeightDeltas: deltas,
		})
		result.Iterations = iter

		if maxDelta < o.cfg.ConvergenceThreshold {
			result.Converged = true
			break
		}
	}

	result.OptimizedWeights = best
	result.FinalMAPE = bestMAPE
	result.FinalRMSE = bestRMSE
	result.ImprovementPct = improvementPct(initialMAPE, bestMAPE)
	return result, nil
}

// GridSearch samples grid_steps+1 equally spaced candidate weights across
// each factor's [min,max], one factor at a time in table order, holding
// all other weights at the best vector found so far. This is a greedy
// sequential search, not a joint grid over all factor combinations, so
// it is not guaranteed to find a joint optimum. With grid_steps = 0 only
// min_weight is sampled.
func (o *Optimizer) GridSearch(ctx context.Context) (*OptimizationResult, error) {
	best := o.start.Clone()
	bestScore, bestMAPE, bestRMSE := o.evaluate(best)
	initialMAPE := bestMAPE

	result := &OptimizationResult{Converged: true}

	steps := o.cfg.GridSteps
	if steps < 0 {
		steps = 0
	}

	round := 0
	for _, entry := range o.table {
		if o.frozen[entry.Factor] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		round++

		current := best.Get(entry.Factor, entry.BaseWeight)
		deltas := make(map[string]float64)

		for i := 0; i <= steps; i++ {
			candidate := entry.MinWeight
			if steps > 0 {
				candidate = entry.MinWeight + (entry.MaxWeight-entry.MinWeight)*float64(i)/float64(steps)
			}
			trial := best.With(entry.Factor, candidate)
			score, mape, rmse := o.evaluate(trial)
			if score < bestScore {
				best = trial
				bestScore, bestMAPE, bestRMSE = score, mape, rmse
				deltas[entry.Factor] = candidate - current
			}
		}

		result.History = append(result.History, IterationRecord{
			Iteration:    round,
			MAPE:         bestMAPE,
			RMSE:         bestRMSE,
			WeightDeltas: deltas,
		})
		result.Iterations = round
	}

	result.OptimizedWeights = best
	result.FinalMAPE = bestMAPE
	result.FinalRMSE = bestRMSE
	result.ImprovementPct = improvementPct(initialMAPE, bestMAPE)
	return result, nil
}

// Hybrid ranks factors by combined correlation/impact score, keeps the
// top 10 unfrozen, and delegates to coordinate descent restricted to
// that set. Already-frozen factors never participate in the ranking.
func (o *Optimizer) Hybrid(ctx context.Context) (*OptimizationResult, error) {
	predictions := o.model.PredictAll(o.claims, o.start)
	impacts := ComputeFactorImpacts(o.claims, o.start, o.table)

	var maxImpact float64
	for _, v := range impacts {
		if v > maxImpact {
			maxImpact = v
		}
	}

	type ranked struct {
		factor string
		order  int
		score  float64
	}
	var candidates []ranked
	for i, entry := range o.table {
		if o.frozen[entry.Factor] {
			continue
		}
		corr := Correlate(o.claims, predictions, entry.Factor)
		candidates = append(candidates, ranked{
			factor: entry.Factor,
			order:  i,
			score:  CombinedScore(corr, impacts[entry.Factor], maxImpact),
		})
	}

	// Rank descending by combined score; table order breaks ties so the
	// selection is deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	keep := make(map[string]bool, hybridTopFactors)
	for i, c := range candidates {
		if i >= hybridTopFactors {
			break
		}
		keep[c.factor] = true
	}

	frozen := make(map[string]bool, len(o.table))
	for _, entry := range o.table {
		if !keep[entry.Factor] {
			frozen[entry.Factor] = true
		}
	}

	return o.coordinateDescent(ctx, frozen)
}

// improvementPct reports MAPE improvement relative to the starting
// vector, 0 when the initial MAPE is 0.
func improvementPct(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (initial - final) / initial * 100
}
