package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Capture profile limits. Anything outside them is rejected at load time.
const (
	MinSampleRate     = 8000
	MaxSampleRate     = 48000
	DefaultSampleRate = 44100
	DefaultChannels   = 1
	DefaultBitDepth   = 8
)

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// ConfigProfile mirrors Config, but every scalar a profile may leave unset is
// a pointer so "absent" can be told apart from an explicit zero value.
type ConfigProfile struct {
	Capture  CaptureOverrides `mapstructure:"capture" yaml:"capture"`
	Playback PlaybackConfig   `mapstructure:"playback" yaml:"playback"`
	Output   OutputOverrides  `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig     `mapstructure:"server" yaml:"server"`
}

type InheritanceInfo struct {
	Capture struct {
		SampleRate      string // "default", "inherited" or "profile-specific"
		StrictSessionID string
		FailFastWrites  string
		GraceDelay      string
	}
	Playback struct {
		Source  string
		Backend string
	}
	Output struct {
		Directory string
	}
}

type CaptureConfig struct {
	SampleRate        int           `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=8000,max=48000"`
	Channels          int           `mapstructure:"channels" yaml:"channels" validate:"eq=1"`
	BitDepth          int           `mapstructure:"bit_depth" yaml:"bit_depth" validate:"eq=8"`
	StrictSessionID   bool          `mapstructure:"strict_session_id" yaml:"strict_session_id"`
	FailFastWrites    bool          `mapstructure:"fail_fast_writes" yaml:"fail_fast_writes"`
	GraceDelay        time.Duration `mapstructure:"grace_delay" yaml:"grace_delay" validate:"min=0"`
	PermissionGranted bool          `mapstructure:"permission_granted" yaml:"permission_granted"`
}

type CaptureOverrides struct {
	SampleRate        *int           `mapstructure:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	StrictSessionID   *bool          `mapstructure:"strict_session_id,omitempty" yaml:"strict_session_id,omitempty"`
	FailFastWrites    *bool          `mapstructure:"fail_fast_writes,omitempty" yaml:"fail_fast_writes,omitempty"`
	GraceDelay        *time.Duration `mapstructure:"grace_delay,omitempty" yaml:"grace_delay,omitempty"`
	PermissionGranted *bool          `mapstructure:"permission_granted,omitempty" yaml:"permission_granted,omitempty"`
}

type PlaybackConfig struct {
	Source  string `mapstructure:"source" yaml:"source"`
	Backend string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=software pipewire auto"` // "software", "pipewire", "auto"
	Target  string `mapstructure:"target" yaml:"target"`                                                    // PipeWire capture target (sink monitor)
}

type OutputConfig struct {
	Directory     string `mapstructure:"directory" yaml:"directory" validate:"required"`
	RawName       string `mapstructure:"raw_name" yaml:"raw_name" validate:"required"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name" validate:"required"`
	KeepRaw       bool   `mapstructure:"keep_raw" yaml:"keep_raw"`
	ExportFormat  string `mapstructure:"export_format" yaml:"export_format" validate:"omitempty,oneof=flac mp3 ogg"`
}

type OutputOverrides struct {
	Directory     string `mapstructure:"directory" yaml:"directory,omitempty"`
	RawName       string `mapstructure:"raw_name" yaml:"raw_name,omitempty"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name,omitempty"`
	KeepRaw       *bool  `mapstructure:"keep_raw,omitempty" yaml:"keep_raw,omitempty"`
	ExportFormat  string `mapstructure:"export_format" yaml:"export_format,omitempty"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days,omitempty" validate:"min=0"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port,omitempty" validate:"omitempty,numeric"`
}

var defaultConfig = Config{
	Capture: CaptureConfig{
		SampleRate:        DefaultSampleRate,
		Channels:          DefaultChannels,
		BitDepth:          DefaultBitDepth,
		GraceDelay:        250 * time.Millisecond,
		PermissionGranted: true,
	},
	Playback: PlaybackConfig{
		Backend: "auto",
	},
	Output: OutputConfig{
		Directory:     filepath.Join(os.Getenv("HOME"), "Audio", "PlayCapture"),
		RawName:       "recorded_audio.pcm",
		ContainerName: "recorded_audio.wav",
		KeepRaw:       true,
		ExportFormat:  "flac",
	},
	Logging: LoggingConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

var validate = validator.New()

// Default returns the built-in configuration, used when no config file exists.
func Default() *Config {
	cfg := defaultConfig
	cfg.Inheritance = newInheritance()
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	return &cfg
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig := Default()

	// Merge with default profile if it exists and we're not already using default
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			applyProfile(selectedConfig, defaultProfile, "inherited")
		}
	}
	applyProfile(selectedConfig, selectedProfile, "profile-specific")

	// Global output directory takes priority over any profile directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.Directory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.Directory
		selectedConfig.Inheritance.Output.Directory = "global"
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Playback.Source = expandPath(selectedConfig.Playback.Source)
	selectedConfig.Logging.File = expandPath(selectedConfig.Logging.File)

	if err := selectedConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	configs := v.GetStringMap("configs")
	if _, ok := configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// applyProfile overlays every value the profile sets onto cfg and records
// where each tracked value came from.
func applyProfile(cfg *Config, profile *ConfigProfile, origin string) {
	if profile == nil {
		return
	}
	inh := cfg.Inheritance

	if v := profile.Capture.SampleRate; v != nil {
		cfg.Capture.SampleRate = *v
		inh.Capture.SampleRate = origin
	}
	if v := profile.Capture.StrictSessionID; v != nil {
		cfg.Capture.StrictSessionID = *v
		inh.Capture.StrictSessionID = origin
	}
	if v := profile.Capture.FailFastWrites; v != nil {
		cfg.Capture.FailFastWrites = *v
		inh.Capture.FailFastWrites = origin
	}
	if v := profile.Capture.GraceDelay; v != nil {
		cfg.Capture.GraceDelay = *v
		inh.Capture.GraceDelay = origin
	}
	if v := profile.Capture.PermissionGranted; v != nil {
		cfg.Capture.PermissionGranted = *v
	}

	if profile.Playback.Source != "" {
		cfg.Playback.Source = profile.Playback.Source
		inh.Playback.Source = origin
	}
	if profile.Playback.Backend != "" {
		cfg.Playback.Backend = profile.Playback.Backend
		inh.Playback.Backend = origin
	}
	if profile.Playback.Target != "" {
		cfg.Playback.Target = profile.Playback.Target
	}

	if profile.Output.Directory != "" {
		cfg.Output.Directory = profile.Output.Directory
		inh.Output.Directory = origin
	}
	if profile.Output.RawName != "" {
		cfg.Output.RawName = profile.Output.RawName
	}
	if profile.Output.ContainerName != "" {
		cfg.Output.ContainerName = profile.Output.ContainerName
	}
	if profile.Output.KeepRaw != nil {
		cfg.Output.KeepRaw = *profile.Output.KeepRaw
	}
	if profile.Output.ExportFormat != "" {
		cfg.Output.ExportFormat = profile.Output.ExportFormat
	}

	if profile.Logging.File != "" {
		cfg.Logging.File = profile.Logging.File
	}
	if profile.Logging.MaxSizeMB != 0 {
		cfg.Logging.MaxSizeMB = profile.Logging.MaxSizeMB
	}
	if profile.Logging.MaxBackups != 0 {
		cfg.Logging.MaxBackups = profile.Logging.MaxBackups
	}
	if profile.Logging.MaxAgeDays != 0 {
		cfg.Logging.MaxAgeDays = profile.Logging.MaxAgeDays
	}

	if profile.Server.Port != "" {
		cfg.Server.Port = profile.Server.Port
	}
}

func newInheritance() *InheritanceInfo {
	info := &InheritanceInfo{}
	info.Capture.SampleRate = "default"
	info.Capture.StrictSessionID = "default"
	info.Capture.FailFastWrites = "default"
	info.Capture.GraceDelay = "default"
	info.Playback.Source = "default"
	info.Playback.Backend = "default"
	info.Output.Directory = "default"
	return info
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Output.RawName == c.Output.ContainerName {
		return fmt.Errorf("output.raw_name and output.container_name must differ, both are %q", c.Output.RawName)
	}
	if strings.ContainsRune(c.Output.RawName, os.PathSeparator) || strings.ContainsRune(c.Output.ContainerName, os.PathSeparator) {
		return fmt.Errorf("output file names must not contain path separators")
	}

	return nil
}

// RawPath returns the path of the raw sample file
func (c *Config) RawPath() string {
	return filepath.Join(c.Output.Directory, c.Output.RawName)
}

// ContainerPath returns the path of the finished container file
func (c *Config) ContainerPath() string {
	return filepath.Join(c.Output.Directory, c.Output.ContainerName)
}

// ExportPath returns the path used when transcoding the container
func (c *Config) ExportPath() string {
	base := strings.TrimSuffix(c.Output.ContainerName, filepath.Ext(c.Output.ContainerName))
	return filepath.Join(c.Output.Directory, base+"."+c.Output.ExportFormat)
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("PLAYCAPTURE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required and cannot be empty")
	}

	if rootConfig.ActiveConfig != "" {
		if _, ok := rootConfig.Configs[rootConfig.ActiveConfig]; !ok {
			return nil, fmt.Errorf("active_config '%s' does not name a configured profile", rootConfig.ActiveConfig)
		}
	}

	for configName, configProfile := range rootConfig.Configs {
		if err := validateProfile(configProfile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateProfile checks the values a single profile overrides
func validateProfile(profile *ConfigProfile) error {
	if profile == nil {
		return nil
	}

	if v := profile.Capture.SampleRate; v != nil && (*v < MinSampleRate || *v > MaxSampleRate) {
		return fmt.Errorf("capture.sample_rate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, *v)
	}
	if v := profile.Capture.GraceDelay; v != nil && *v < 0 {
		return fmt.Errorf("capture.grace_delay must be >= 0, got %s", *v)
	}

	switch profile.Playback.Backend {
	case "", "software", "pipewire", "auto":
	default:
		return fmt.Errorf("playback.backend must be 'software', 'pipewire' or 'auto', got: %s", profile.Playback.Backend)
	}

	switch profile.Output.ExportFormat {
	case "", "flac", "mp3", "ogg":
	default:
		return fmt.Errorf("output.export_format must be 'flac', 'mp3' or 'ogg', got: %s", profile.Output.ExportFormat)
	}

	return nil
}
