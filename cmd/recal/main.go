package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claims-recal/internal/config"
)

func main() {
	// Load .env before anything reads configuration
	if err := config.LoadEnv(); err != nil {
		fmt.Printf("Warning: failed to load .env: %v\n", err)
	}

	// Create root command
	rootCmd := &cobra.Command{
		Use:   "recal",
		Short: "Claims settlement weight recalibration engine",
		Long:  `Scores predicted settlements, measures prediction error and searches for factor weights that reduce it`,
	}

	// Add subcommands
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createOptimizeCmd())
	rootCmd.AddCommand(createRecalibrateCmd())
	rootCmd.AddCommand(createSensitivityCmd())
	rootCmd.AddCommand(createCompareCmd())
	rootCmd.AddCommand(createPingCmd())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
