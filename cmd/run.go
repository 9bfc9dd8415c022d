package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Execute pipeline steps",
	Long: `Execute the pipeline steps given with -p in order, e.g. 'playcapture run -p rep'
records, exports the recording, then previews it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rep)")
		}
		if len(args) == 1 {
			cfg.Playback.Source = args[0]
		}
		return runSteps(cmd.Context(), []rune(strings.ToLower(pipeline)))
	},
}
