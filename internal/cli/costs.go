package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"DailyDigest/internal/app"
	"DailyDigest/internal/config"
	"DailyDigest/internal/logging"
)

const dateLayout = "2006-01-02"

func newCostSummaryCmd() *cobra.Command {
	var fromFlag, toFlag string

	cmd := &cobra.Command{
		Use:   "cost-summary",
		Short: "Report committed spend from the run ledger",
		Long:  "Aggregate successful call costs by pipeline stage over a date range. Dates are YYYY-MM-DD; the range defaults to the last seven days.",
		RunE: func(cmd *cobra.Command, args []string) error {
			to := time.Now().UTC()
			from := to.AddDate(0, 0, -7)

			var err error
			if fromFlag != "" {
				if from, err = time.Parse(dateLayout, fromFlag); err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
			}
			if toFlag != "" {
				if to, err = time.Parse(dateLayout, toFlag); err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
				// treat --to as inclusive of that whole day
				to = to.AddDate(0, 0, 1)
			}

			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			summary, err := application.CostSummary(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			fmt.Printf("spend %s to %s: $%.4f across %d calls\n",
				from.Format(dateLayout), to.Format(dateLayout), summary.Total, summary.Entries)

			stages := make([]string, 0, len(summary.ByStage))
			for stage := range summary.ByStage {
				stages = append(stages, stage)
			}
			sort.Strings(stages)
			for _, stage := range stages {
				fmt.Printf("  %-8s $%.4f\n", stage, summary.ByStage[stage])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "end date (YYYY-MM-DD, inclusive)")
	return cmd
}
