package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/regionseg/internal/config"
)

var (
	configLoader *config.Loader
	globalConfig *config.Config
	cfgFile      string
)

// rootCmd prints help, or the version with --version.
var rootCmd = &cobra.Command{
	Use:   "regionseg",
	Short: "Colour region segmentation for images",
	Long: `regionseg partitions colour images into connected regions of similar colour
by seeded region growing, followed by repair, merging and outline tracing.

This tool provides:
- Automatic seeding or seeding from a label image
- Hole filling, edge expansion and three merge strategies
- Outline tracing, neighbour discovery and shape descriptors
- Text, JSON, YAML and CSV output, segment maps and overlays
- Both CLI and server modes

Examples:
  regionseg image photo.png
  regionseg image photo.png --format json --set min_segment_size=50
  regionseg batch images/ --recursive --workers 8
  regionseg serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.PersistentFlags().GetBool("version"); v {
			printVersion(cmd)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand exposes the command tree to tests.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/regionseg, /etc/regionseg)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Loaded per invocation so flag values bound into viper are validated
	// with the rest of the configuration.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		slog.SetDefault(newLogger(globalConfig))
		return nil
	}
}

// newLogger builds the process-wide JSON logger on stdout.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg)}))
}

// logLevel maps the configured level name; --verbose wins.
func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initConfig loads --config, or searches for regionseg.yaml.
func initConfig() error {
	configLoader = config.NewLoader()
	load := configLoader.Load
	if cfgFile != "" {
		load = func() (*config.Config, error) { return configLoader.LoadWithFile(cfgFile) }
	}

	cfg, err := load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg
	return nil
}

// GetConfig returns the configuration with flag values applied. Outside a
// command run it falls back to the defaults when loading fails.
func GetConfig() *config.Config {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			cfg := config.DefaultConfig()
			return &cfg
		}
	}

	// Flags are bound after the first load; re-read viper to pick them up.
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling updated configuration: %v\n", err)
		return globalConfig
	}

	return &cfg
}

// GetConfigLoader returns the loader, creating it on first use.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
