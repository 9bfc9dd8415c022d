package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/playcapture/internal/config"
	"github.com/audiolibrelab/playcapture/internal/service"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	logFile      string
	verboseLevel int

	sourceOverride string
	outputOverride string
)

var rootCmd = &cobra.Command{
	Use:   "playcapture [source]",
	Short: "Play an audio asset and capture what it renders",
	Long: `PlayCapture plays an audio asset while capturing the samples it renders to
the output mix, then saves the capture as a WAV recording.

When a source is provided, it acts as 'playcapture record [source]'.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel, os.Stderr)

		// config use only rewrites the file
		if cmd.Name() == "use" {
			if cfgFile == "" {
				cfgFile = defaultConfigPath()
			}
			return nil
		}

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if w := logWriter(cfg); w != nil {
			setupLogging(verboseLevel, w)
		}

		return validatePipeline()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a source is provided, delegate to record command
		if len(args) == 1 {
			return recordCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/playcapture.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, e=export, p=preview (e.g., 'rep', 'rp')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotated file (overrides logging.file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=backend tracing")
	rootCmd.PersistentFlags().StringVarP(&sourceOverride, "source", "s", "", "audio asset to play (overrides playback.source)")
	rootCmd.PersistentFlags().StringVarP(&outputOverride, "output", "o", "", "output directory (overrides config)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/playcapture.yaml")
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default file does not exist, and applies command line overrides.
func loadConfig() (*config.Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = defaultConfigPath()
	}

	var c *config.Config
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !explicit && profile == "" {
		slog.Debug("No config file, using built-in defaults", "path", cfgFile)
		c = config.Default()
	} else {
		c, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return nil, err
		}
	}

	if sourceOverride != "" {
		c.Playback.Source = sourceOverride
		c.Inheritance.Playback.Source = "command-line"
	}
	if outputOverride != "" {
		c.Output.Directory = outputOverride
		c.Inheritance.Output.Directory = "command-line"
	}
	return c, c.Validate()
}

func newService(opts ...service.Option) (*service.PlayCaptureService, error) {
	svc, err := service.New(cfg, cfgFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture service: %w", err)
	}
	return svc, nil
}

// logWriter returns stderr teed into a size-rotated log file, or nil when no
// log file is configured.
func logWriter(c *config.Config) io.Writer {
	path := logFile
	if path == "" {
		path = c.Logging.File
	}
	if path == "" {
		return nil
	}
	return io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
	})
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, w io.Writer) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))

	// Backend tracing
	if level >= 2 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}
