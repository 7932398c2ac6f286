package main

import (
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/claims-recal/internal/db"
	"github.com/claims-recal/internal/engine"
	"github.com/claims-recal/internal/store"
	"github.com/claims-recal/internal/web"
)

// loadInputs resolves claims and the weight table from files when given,
// falling back to the database.
func loadInputs(claimsFile, weightsFile string) ([]engine.ClaimRecord, engine.WeightTable, error) {
	var claims []engine.ClaimRecord
	var table engine.WeightTable
	var err error

	if claimsFile != "" {
		claims, err = store.LoadClaimsFile(claimsFile)
		if err != nil {
			return nil, nil, err
		}
	}
	if weightsFile != "" {
		table, err = store.LoadWeightTableFile(weightsFile)
		if err != nil {
			return nil, nil, err
		}
	}

	if claims == nil || table == nil {
		conn, err := db.NewConnection()
		if err != nil {
			return nil, nil, fmt.Errorf("no input files and no database: %w", err)
		}
		defer conn.Close()

		cs := store.NewClaimStore(conn.DB)
		if claims == nil {
			if claims, err = cs.LoadClaims(0); err != nil {
				return nil, nil, err
			}
		}
		if table == nil {
			if table, err = cs.LoadWeightTable(); err != nil {
				return nil, nil, err
			}
		}
	}

	return claims, table, nil
}

// createServeCmd creates the web server command
func createServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recalibration API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := web.DefaultConfig()
			if configFile != "" {
				loaded, err := web.LoadConfig(configFile)
				if err != nil {
					log.Fatalf("Failed to load config: %v", err)
				}
				cfg = loaded
			}

			server, err := web.NewServer(cfg)
			if err != nil {
				log.Fatalf("Failed to create server: %v", err)
			}
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "JSON config file")
	return cmd
}

// createOptimizeCmd creates the weight optimization command
func createOptimizeCmd() *cobra.Command {
	var (
		claimsFile  string
		weightsFile string
		method      string
		target      string
		iterations  int
		learnRate   float64
		threshold   float64
		gridSteps   int
		frozen      []string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for factor weights that reduce prediction error",
		Run: func(cmd *cobra.Command, args []string) {
			claims, table, err := loadInputs(claimsFile, weightsFile)
			if err != nil {
				log.Fatalf("Failed to load inputs: %v", err)
			}

			cfg := engine.OptimizationConfig{
				Target:               engine.TargetMetric(target),
				MaxIterations:        iterations,
				LearningRate:         learnRate,
				ConvergenceThreshold: threshold,
				GridSteps:            gridSteps,
				FrozenFactors:        frozen,
			}

			model := engine.NewScoringModel(engine.DefaultCoefficients())
			opt, err := engine.NewOptimizer(model, claims, table, nil, cfg)
			if err != nil {
				log.Fatalf("Failed to create optimizer: %v", err)
			}

			fmt.Printf("Optimizing %d factors over %d claims (%s)...\n",
				len(table), len(claims), methodLabel(method))

			result, err := opt.Optimize(cmd.Context(), method)
			if err != nil {
				log.Fatalf("Optimization failed: %v", err)
			}

			printOptimizationResult(table, result)
		},
	}

	cmd.Flags().StringVar(&claimsFile, "claims", "", "claims file (JSON or YAML)")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "weight table file (JSON or YAML)")
	cmd.Flags().StringVarP(&method, "method", "m", engine.MethodCoordinateDescent, "coordinate_descent | grid_search | hybrid")
	cmd.Flags().StringVarP(&target, "target", "t", string(engine.TargetMAPE), "mape | rmse | both")
	cmd.Flags().IntVar(&iterations, "max-iterations", 50, "maximum optimizer rounds")
	cmd.Flags().Float64Var(&learnRate, "learning-rate", 0.1, "step size as fraction of each factor's range")
	cmd.Flags().Float64Var(&threshold, "convergence-threshold", 0.001, "stop when the largest accepted step falls below this")
	cmd.Flags().IntVar(&gridSteps, "grid-steps", 10, "samples per factor for grid search")
	cmd.Flags().StringSliceVar(&frozen, "freeze", nil, "factors to hold at their current weight")
	return cmd
}

// createRecalibrateCmd creates the before/after comparison command
func createRecalibrateCmd() *cobra.Command {
	var (
		claimsFile    string
		weightsFile   string
		candidateFile string
	)

	cmd := &cobra.Command{
		Use:   "recalibrate",
		Short: "Compare a candidate weight vector against the baseline",
		Run: func(cmd *cobra.Command, args []string) {
			claims, table, err := loadInputs(claimsFile, weightsFile)
			if err != nil {
				log.Fatalf("Failed to load inputs: %v", err)
			}

			candidate := table.BaseVector()
			if candidateFile != "" {
				candidate, err = store.LoadWeightVectorFile(candidateFile)
				if err != nil {
					log.Fatalf("Failed to load candidate weights: %v", err)
				}
			}

			model := engine.NewScoringModel(engine.DefaultCoefficients())
			metrics, _, err := engine.Recalibrate(model, claims, table.BaseVector(), candidate)
			if err != nil {
				log.Fatalf("Recalibration failed: %v", err)
			}

			fmt.Printf("\n=== Recalibration Result ===\n")
			fmt.Printf("Claims:        %d\n", metrics.TotalClaims)
			fmt.Printf("Improved:      %d\n", metrics.ImprovedCount)
			fmt.Printf("Degraded:      %d\n", metrics.DegradedCount)
			fmt.Printf("Unchanged:     %d\n", metrics.UnchangedCount)
			fmt.Printf("Avg improvement: %.2f pp\n", metrics.AvgImprovementPct)
			fmt.Printf("MAPE: %.2f%% -> %.2f%%\n", metrics.MAPEBefore, metrics.MAPEAfter)
			fmt.Printf("RMSE: %.2f -> %.2f\n", metrics.RMSEBefore, metrics.RMSEAfter)
		},
	}

	cmd.Flags().StringVar(&claimsFile, "claims", "", "claims file (JSON or YAML)")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "weight table file (JSON or YAML)")
	cmd.Flags().StringVar(&candidateFile, "candidate", "", "candidate weight vector file")
	return cmd
}

// createSensitivityCmd creates the sensitivity analysis command
func createSensitivityCmd() *cobra.Command {
	var (
		claimsFile   string
		weightsFile  string
		perturbation float64
	)

	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Measure MAE response to per-factor weight perturbations",
		Run: func(cmd *cobra.Command, args []string) {
			claims, table, err := loadInputs(claimsFile, weightsFile)
			if err != nil {
				log.Fatalf("Failed to load inputs: %v", err)
			}

			model := engine.NewScoringModel(engine.DefaultCoefficients())
			results, err := engine.SensitivityAnalysis(model, claims, table, table.BaseVector(), perturbation)
			if err != nil {
				log.Fatalf("Sensitivity analysis failed: %v", err)
			}

			// Sort factors by sensitivity, most responsive first
			factors := make([]string, 0, len(results))
			for f := range results {
				factors = append(factors, f)
			}
			sort.Slice(factors, func(i, j int) bool {
				return results[factors[i]].SensitivityScore > results[factors[j]].SensitivityScore
			})

			fmt.Printf("\nFactor                 | Base MAE   | +%.0f%% MAE   | -%.0f%% MAE   | Sensitivity\n",
				perturbation*100, perturbation*100)
			fmt.Println("-----------------------|------------|------------|------------|------------")
			for _, f := range factors {
				r := results[f]
				fmt.Printf("%-22s | %10.2f | %10.2f | %10.2f | %.4f\n",
					f, r.BaseMAE, r.IncreasedMAE, r.DecreasedMAE, r.SensitivityScore)
			}
		},
	}

	cmd.Flags().StringVar(&claimsFile, "claims", "", "claims file (JSON or YAML)")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "weight table file (JSON or YAML)")
	cmd.Flags().Float64VarP(&perturbation, "perturbation", "p", 0.1, "perturbation fraction")
	return cmd
}

// createCompareCmd creates the weight vector comparison command
func createCompareCmd() *cobra.Command {
	var (
		claimsFile string
		fileA      string
		fileB      string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Evaluate two weight vectors against the same claim set",
		Run: func(cmd *cobra.Command, args []string) {
			if fileA == "" || fileB == "" {
				log.Fatal("both --weights-a and --weights-b are required")
			}

			claims, _, err := loadInputs(claimsFile, "")
			if err != nil {
				log.Fatalf("Failed to load claims: %v", err)
			}

			a, err := store.LoadWeightVectorFile(fileA)
			if err != nil {
				log.Fatalf("Failed to load weights A: %v", err)
			}
			b, err := store.LoadWeightVectorFile(fileB)
			if err != nil {
				log.Fatalf("Failed to load weights B: %v", err)
			}

			model := engine.NewScoringModel(engine.DefaultCoefficients())
			result, err := engine.CompareWeights(model, claims, a, b)
			if err != nil {
				log.Fatalf("Comparison failed: %v", err)
			}

			fmt.Printf("\nMetric   | Vector A    | Vector B    | Delta (A-B)\n")
			fmt.Println("---------|-------------|-------------|------------")
			fmt.Printf("MAPE     | %10.2f%% | %10.2f%% | %+.2f\n", result.MetricsA.MAPE, result.MetricsB.MAPE, result.MAPEDelta)
			fmt.Printf("RMSE     | %11.2f | %11.2f | %+.2f\n", result.MetricsA.RMSE, result.MetricsB.RMSE, result.RMSEDelta)
			fmt.Printf("MAE      | %11.2f | %11.2f | %+.2f\n", result.MetricsA.MAE, result.MetricsB.MAE, result.MAEDelta)
			fmt.Printf("R^2      | %11.4f | %11.4f |\n", result.MetricsA.RSquared, result.MetricsB.RSquared)
		},
	}

	cmd.Flags().StringVar(&claimsFile, "claims", "", "claims file (JSON or YAML)")
	cmd.Flags().StringVar(&fileA, "weights-a", "", "first weight vector file")
	cmd.Flags().StringVar(&fileB, "weights-b", "", "second weight vector file")
	return cmd
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := db.NewConnection()
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			fmt.Println("Database connection successful!")

			var count int
			if err := conn.DB.QueryRow("SELECT COUNT(*) FROM claim_snapshot").Scan(&count); err != nil {
				log.Printf("Error counting claim_snapshot records: %v", err)
			} else {
				fmt.Printf("Claim snapshots loaded: %d\n", count)
			}

			if err := conn.DB.QueryRow("SELECT COUNT(*) FROM factor_weight").Scan(&count); err != nil {
				log.Printf("Error counting factor_weight records: %v", err)
			} else {
				fmt.Printf("Weight factors configured: %d\n", count)
			}
		},
	}
}

func methodLabel(method string) string {
	if method == "" {
		return engine.MethodCoordinateDescent
	}
	return method
}

// printOptimizationResult prints the optimized vector in table order
// with the convergence summary.
func printOptimizationResult(table engine.WeightTable, result *engine.OptimizationResult) {
	fmt.Printf("\n=== Optimization Result ===\n")
	fmt.Printf("Iterations:  %d\n", result.Iterations)
	fmt.Printf("Converged:   %v\n", result.Converged)
	fmt.Printf("Final MAPE:  %.2f%%\n", result.FinalMAPE)
	fmt.Printf("Final RMSE:  %.2f\n", result.FinalRMSE)
	fmt.Printf("Improvement: %.2f%%\n\n", result.ImprovementPct)

	fmt.Println("Factor                 | Base     | Optimized")
	fmt.Println("-----------------------|----------|----------")
	for _, e := range table {
		fmt.Printf("%-22s | %8.4f | %8.4f\n", e.Factor, e.BaseWeight, result.OptimizedWeights[e.Factor])
	}
}
