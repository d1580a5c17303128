package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	predictTaskName      string
	predictInputQuantity float64
	predictClusterLoad   float64
	predictMaxTimeSLO    float64
	predictHasSLO        bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Ask the Estimator for the recommended degree of parallelism",
	RunE: func(cmd *cobra.Command, args []string) error {
		var slo *float64
		if predictHasSLO {
			slo = &predictMaxTimeSLO
		}

		configs, prediction, err := opt.GetTaskConfigs(context.Background(), predictTaskName, predictInputQuantity, predictClusterLoad, slo)
		if err != nil {
			return fmt.Errorf("predict failed: %w", err)
		}

		out, err := json.MarshalIndent(struct {
			Prediction interface{} `json:"prediction"`
			Chunks     interface{} `json:"chunks"`
		}{prediction, configs}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictTaskName, "task", "", "task name (required)")
	predictCmd.Flags().Float64Var(&predictInputQuantity, "input-quantity", 0, "input quantity for this run (required)")
	predictCmd.Flags().Float64Var(&predictClusterLoad, "cluster-load", 0, "current cluster load, in [0,1]")
	predictCmd.Flags().Float64Var(&predictMaxTimeSLO, "max-time-slo", 0, "optional upper bound on predicted total time, in seconds")

	predictCmd.MarkFlagRequired("task")
	predictCmd.MarkFlagRequired("input-quantity")

	predictCmd.PreRun = func(cmd *cobra.Command, args []string) {
		predictHasSLO = cmd.Flags().Changed("max-time-slo")
	}
}
