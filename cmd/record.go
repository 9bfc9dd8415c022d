package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/playcapture/internal/capture"
	"github.com/audiolibrelab/playcapture/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record [source]",
	Short: "Play the source and capture the output mix",
	Long: `Play the configured audio asset and capture what it renders.
Capture ends when playback completes, after --duration, or on Ctrl+C.
The capture is saved as a WAV recording in the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Playback.Source = args[0]
		}
		duration, _ := cmd.Flags().GetDuration("duration")

		if _, err := record(cmd.Context(), duration); err != nil {
			return err
		}

		// Execute pipeline if specified
		return executePipeline('r')
	},
}

func init() {
	recordCmd.Flags().Duration("duration", 0, "stop capturing after this long (0 waits for playback to complete)")
}

// record runs one capture session and prints its outcome.
func record(ctx context.Context, duration time.Duration) (*capture.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	slog.Info("Record command started", "source", cfg.Playback.Source, "output", cfg.ContainerPath())

	svc, err := newService(service.WithStatusListener(printStatus))
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	if err := svc.StartCapture(); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	// Handle interruption
	waitCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, duration)
		defer cancel()
	}

	slog.Info("Capturing... Press Ctrl+C to stop")
	res, err := svc.WaitIdle(waitCtx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		slog.Info("Stopping capture...")
		res, err = svc.StopCapture()
		if err != nil {
			return res, fmt.Errorf("failed to stop capture: %w", err)
		}
	}

	printResult(res)
	if res != nil && res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

func printStatus(state capture.State, message string) {
	fmt.Printf("[%s] %s\n", state, message)
}

func printResult(res *capture.Result) {
	if res == nil {
		fmt.Println("No capture session ran")
		return
	}
	fmt.Printf("\n=== CAPTURE RESULT ===\n")
	fmt.Printf("session: %s\n", res.SessionID)
	fmt.Printf("reason: %s\n", res.Reason)
	fmt.Printf("captured: %d bytes\n", res.BytesCaptured)
	if res.CaptureSkipped {
		fmt.Printf("capture: skipped, playback ran without a tap\n")
	}
	if res.ContainerBytes > 0 {
		fmt.Printf("recording: %s (%d bytes, %d Hz)\n", res.ContainerPath, res.ContainerBytes, res.SampleRate)
	}
	if res.WriteFailures > 0 {
		fmt.Printf("write failures: %d\n", res.WriteFailures)
	}
	fmt.Printf("duration: %s\n", res.Duration.Round(time.Millisecond))
}
