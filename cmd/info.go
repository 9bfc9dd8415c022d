package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/audio"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and file paths",
	Long:  `Display the resolved configuration with inheritance indicators and the file paths a capture writes. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance

		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("raw: %s\n", cfg.RawPath())
		fmt.Printf("recording: %s\n", cfg.ContainerPath())
		fmt.Printf("export: %s\n", cfg.ExportPath())

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("sample_rate: %d %s\n", cfg.Capture.SampleRate, getInheritanceIndicator(inh.Capture.SampleRate))
		fmt.Printf("channels: %d\n", cfg.Capture.Channels)
		fmt.Printf("bit_depth: %d\n", cfg.Capture.BitDepth)
		fmt.Printf("strict_session_id: %t %s\n", cfg.Capture.StrictSessionID, getInheritanceIndicator(inh.Capture.StrictSessionID))
		fmt.Printf("fail_fast_writes: %t %s\n", cfg.Capture.FailFastWrites, getInheritanceIndicator(inh.Capture.FailFastWrites))
		fmt.Printf("grace_delay: %s %s\n", cfg.Capture.GraceDelay, getInheritanceIndicator(inh.Capture.GraceDelay))
		fmt.Printf("permission_granted: %t\n", cfg.Capture.PermissionGranted)

		fmt.Printf("\n[Playback]\n")
		fmt.Printf("source: %s %s\n", cfg.Playback.Source, getInheritanceIndicator(inh.Playback.Source))
		fmt.Printf("backend: %s %s\n", cfg.Playback.Backend, getInheritanceIndicator(inh.Playback.Backend))
		if cfg.Playback.Target != "" {
			fmt.Printf("target: %s\n", cfg.Playback.Target)
		}
		fmt.Printf("available_backends: %v\n", audio.GetAvailableBackends())

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
		fmt.Printf("keep_raw: %t\n", cfg.Output.KeepRaw)
		fmt.Printf("export_format: %s\n", cfg.Output.ExportFormat)

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited", "profile-specific", "global", "command-line", "default":
		return "[" + status + "]"
	default:
		return "[unknown]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
