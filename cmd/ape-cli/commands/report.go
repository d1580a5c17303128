package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reportTaskName          string
	reportS                 int
	reportGamma             float64
	reportClusterLoad       float64
	reportTActual           float64
	reportPredictedAmdahl   float64
	reportPredictedResidual float64
	reportRunID             string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report the outcome of a completed run back to the Estimator",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := opt.ReportSuccess(context.Background(), reportTaskName, reportS, reportGamma, reportClusterLoad,
			reportTActual, reportPredictedAmdahl, reportPredictedResidual, reportRunID)
		if err != nil {
			return fmt.Errorf("report failed: %w", err)
		}
		fmt.Printf("Feedback recorded for %q\n", reportTaskName)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportTaskName, "task", "", "task name (required)")
	reportCmd.Flags().IntVar(&reportS, "s", 0, "degree of parallelism the run actually used (required)")
	reportCmd.Flags().Float64Var(&reportGamma, "gamma", 1.0, "input-scale factor the run was predicted at")
	reportCmd.Flags().Float64Var(&reportClusterLoad, "cluster-load", 0, "cluster load observed during the run")
	reportCmd.Flags().Float64Var(&reportTActual, "t-actual", 0, "observed wall-clock duration, in seconds (required)")
	reportCmd.Flags().Float64Var(&reportPredictedAmdahl, "predicted-amdahl", 0, "the Amdahl time the original predict call returned")
	reportCmd.Flags().Float64Var(&reportPredictedResidual, "predicted-residual", 0, "the residual the original predict call returned")
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "run ID from the original predict call, for a wired DurationProbe to look up")

	reportCmd.MarkFlagRequired("task")
	reportCmd.MarkFlagRequired("s")
	reportCmd.MarkFlagRequired("t-actual")
}
