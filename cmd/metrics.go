// -- cmd/metrics.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dojoctl/internal/config"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
	"github.com/xkilldash9x/dojoctl/internal/observability"
	"github.com/xkilldash9x/dojoctl/internal/ui"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print findings and engagement counts for every product",
		Long: `Lists every product with its active findings broken down by severity and
its most recent engagements. Useful to confirm that uploads landed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runMetrics(cmd, cfg)
		},
	}
}

func runMetrics(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.ValidateConnection(); err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := observability.GetLogger().Named("metrics")
	console := ui.NewConsole(cmd.OutOrStdout())

	client, err := connect(cmd, cfg, logger)
	if err != nil {
		return err
	}

	console.Header("DEFECTDOJO METRICS CHECK")
	products, err := client.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}
	console.Info("Total Products: %d", len(products))

	for _, p := range products {
		findings, err := client.ListFindings(ctx, p.ID, true, dojo.DefaultFindingsLimit)
		if err != nil {
			logger.Warn("Failed to list findings", zap.Int("product_id", p.ID), zap.Error(err))
			console.Error("Failed to get findings for %s: %v", p.Name, err)
			continue
		}
		engagements, err := client.ListEngagements(ctx, p.ID)
		if err != nil {
			logger.Warn("Failed to list engagements", zap.Int("product_id", p.ID), zap.Error(err))
			engagements = nil
		}
		console.ProductMetrics(p, dojo.SummarizeFindings(findings), engagements)
	}

	console.Success("Check complete!")
	console.Info("If metrics show numbers but aren't clickable:")
	hints := []string{
		"Check that findings are marked 'active' and 'verified'",
		"Verify engagement status is 'In Progress' or 'Completed'",
		fmt.Sprintf("Try accessing: %s/finding?active=true&verified=true", client.BaseURL()),
		"Run database metrics recalculation in DefectDojo admin",
	}
	for i, h := range hints {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, h)
	}
	return nil
}
