package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"DailyDigest/internal/app"
	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/logging"
)

func newRunPipelineCmd() *cobra.Command {
	var test bool

	cmd := &cobra.Command{
		Use:   "run-pipeline",
		Short: "Execute one digest cycle immediately",
		Long:  "Run a full select, generate, assemble, deliver cycle outside the daily schedule. With --test the candidate volume is capped for a cheap dry run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := application.RunOnce(cmd.Context(), test)
			if err != nil {
				return err
			}

			fmt.Printf("run %s finished: status=%s articles=%d cost=$%.4f\n",
				res.RunID, res.Status, res.ArticleCount, res.TotalCost)
			if res.FailureReason != "" {
				fmt.Printf("reason: %s\n", res.FailureReason)
			}

			switch res.Status {
			case domain.RunFailed, domain.RunBudgetExceeded:
				return fmt.Errorf("run ended with status %s", res.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&test, "test", false, "cap candidate volume for a cheap dry run")
	return cmd
}
