package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/mops-planner-api/internal/app"
	"github.com/noah-isme/mops-planner-api/internal/dto"
)

var (
	rebalanceFlags rangeFlags
	accuracyFlags  rangeFlags
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Move slots from overloaded to underloaded technicians",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, dr, err := rebalanceFlags.scope()
		if err != nil {
			return err
		}
		return withContainer(func(ctx context.Context, c *app.Container) error {
			result, err := c.Rebalance.Rebalance(ctx, scope, dto.RebalanceRequest{DateRange: dr})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Report plan accuracy for a range",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, dr, err := accuracyFlags.scope()
		if err != nil {
			return err
		}
		return withContainer(func(ctx context.Context, c *app.Container) error {
			result, err := c.Accuracy.Metrics(ctx, scope, dr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	rebalanceFlags.bind(rebalanceCmd)
	accuracyFlags.bind(accuracyCmd)
	rootCmd.AddCommand(rebalanceCmd, accuracyCmd)
}
