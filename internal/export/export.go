// Package export transcodes the finished container into a compressed format
// with ffmpeg.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/audiolibrelab/playcapture/internal/config"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

var codecs = map[string]string{
	"flac": "flac",
	"mp3":  "libmp3lame",
	"ogg":  "libvorbis",
}

type Exporter struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Exporter {
	return &Exporter{cfg: cfg}
}

// Export converts the configured container to output.export_format and
// returns the path of the new file.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	return e.ExportFile(ctx, e.cfg.ContainerPath(), e.cfg.ExportPath(), e.cfg.Output.ExportFormat)
}

func (e *Exporter) ExportFile(ctx context.Context, inputFile, outputFile, format string) (string, error) {
	if _, ok := codecs[format]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	info, err := wav.Inspect(inputFile)
	if err != nil {
		return "", fmt.Errorf("cannot export %s: %w", inputFile, err)
	}
	if info.DataLength == 0 {
		return "", fmt.Errorf("cannot export %s: %w", inputFile, wav.ErrEmptySource)
	}

	// Remove existing output file
	os.Remove(outputFile)

	args := buildArgs(inputFile, outputFile, format, info.Header.SampleRate)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	slog.Debug("Running FFmpeg for export", "command", "ffmpeg "+strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("FFmpeg export failed: %w\nOutput: %s", err, string(output))
	}

	if _, err := os.Stat(outputFile); err != nil {
		return "", fmt.Errorf("output file not created: %s", outputFile)
	}

	slog.Info("Exported recording", "file", outputFile, "format", format, "duration", info.Duration)
	return outputFile, nil
}

func buildArgs(inputFile, outputFile, format string, sampleRate uint32) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputFile,
		"-ac", "1",
		"-ar", strconv.FormatUint(uint64(sampleRate), 10),
		"-c:a", codecs[format],
	}
	if format == "flac" {
		// u8 has no flac sample format
		args = append(args, "-sample_fmt", "s16")
	}
	return append(args, "-y", outputFile)
}
