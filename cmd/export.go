package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Transcode the recording with ffmpeg",
	Long:  `Convert the finished WAV recording to output.export_format (flac, mp3 or ogg) with ffmpeg.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if format, _ := cmd.Flags().GetString("format"); format != "" {
			cfg.Output.ExportFormat = format
		}

		path, err := export.New(cfg).Export(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Exported recording to %s\n", path)

		return executePipeline('e')
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "export format: flac, mp3 or ogg (overrides config)")
}
