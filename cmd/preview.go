package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/play"
)

var previewCmd = &cobra.Command{
	Use:   "preview [file]",
	Short: "Play the finished recording",
	Long: `Play the finished recording with the first audio player found
(vlc, mpv, ffplay, aplay). Defaults to the configured recording.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := play.New(cfg)
		path := cfg.ContainerPath()
		if len(args) == 1 {
			path = args[0]
		}

		fmt.Printf("Playing: %s\n", path)
		if err := p.PlayFile(ctx, path); err != nil {
			return fmt.Errorf("preview failed: %w", err)
		}
		fmt.Println("Playback completed")

		return executePipeline('p')
	},
}
