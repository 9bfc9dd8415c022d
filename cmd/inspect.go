package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/wav"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Check a WAV recording and show what it holds",
	Long: `Parse the header of a WAV recording, decode it with an independent decoder and
report its format, length and peak level. Defaults to the configured recording.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ContainerPath()
		if len(args) == 1 {
			path = args[0]
		}

		info, err := wav.Inspect(path)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", path, err)
		}

		h := info.Header
		fmt.Printf("=== %s ===\n", info.Path)
		fmt.Printf("file_size: %d bytes\n", info.FileSize)
		fmt.Printf("riff_chunk_size: %d\n", h.RiffChunkSize)
		fmt.Printf("audio_format: %d (PCM)\n", h.AudioFormat)
		fmt.Printf("channels: %d\n", h.Channels)
		fmt.Printf("sample_rate: %d Hz\n", h.SampleRate)
		fmt.Printf("byte_rate: %d\n", h.ByteRate)
		fmt.Printf("block_align: %d\n", h.BlockAlign)
		fmt.Printf("bit_depth: %d\n", h.BitDepth)
		fmt.Printf("data_length: %d bytes\n", h.DataLength)
		fmt.Printf("frames: %d\n", info.Frames)
		fmt.Printf("duration: %s\n", info.Duration)
		fmt.Printf("peak: %d\n", info.Peak)
		if int64(wav.HeaderSize)+info.DataLength != info.FileSize {
			fmt.Printf("warning: file holds %d bytes beyond the declared payload\n", info.FileSize-int64(wav.HeaderSize)-info.DataLength)
		}
		return nil
	},
}
