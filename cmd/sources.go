package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List capture sources of the configured backend",
	Long: `List what the configured audio backend can capture from. The software backend
lists its output mix and active sessions, the PipeWire backend lists graph ports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg)
		if err != nil {
			return err
		}

		sources, err := backend.ListSources()
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
		}

		fmt.Printf("Audio sources (%s backend, %d found):\n", backend.GetType(), len(sources))
		for i, source := range sources {
			fmt.Printf("  %d. %s\n", i+1, source)
		}

		if cfg.Playback.Source != "" {
			if err := backend.ValidateSource(cfg.Playback.Source); err != nil {
				fmt.Printf("\nConfigured source %s is not playable: %v\n", cfg.Playback.Source, err)
			} else {
				fmt.Printf("\nConfigured source %s is playable\n", cfg.Playback.Source)
			}
		}
		return nil
	},
}
