package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dailydigest",
		Short: "Daily AI-generated content digest pipeline",
		Long:  "Dailydigest selects fresh stories from configured feeds, generates and edits short articles through routed model providers under a spend ceiling, and delivers the assembled digest by mail.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newRunPipelineCmd(),
		newServeCmd(),
		newCostSummaryCmd(),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("dailydigest %s\n", Version))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
