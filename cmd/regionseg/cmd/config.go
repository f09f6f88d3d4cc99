package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/regionseg/internal/config"
	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
	Long: `Inspect the resolved configuration, list engine options, or write a
default configuration file.

Configuration is searched in:
  ., $HOME, $XDG_CONFIG_HOME/regionseg (or $HOME/.config/regionseg), /etc/regionseg

Environment variables use the REGIONSEG_ prefix, for example
REGIONSEG_SEGMENTATION_MIN_SEGMENT_SIZE=50.`,
}

var configInitCmd = &cobra.Command{
	Use:          "init [file]",
	Short:        "Write a default configuration file",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.GenerateDefaultConfigFile(path); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the resolved configuration as YAML",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc any = GetConfig()
		if raw, _ := cmd.Flags().GetBool("settings"); raw {
			doc = GetConfigLoader().GetResolvedConfig()
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configOptionsCmd = &cobra.Command{
	Use:   "options [name...]",
	Short: "List engine options and their current values",
	Long: `List every engine option as "name = value". With arguments, print only
the named options; names may be abbreviated to any unique prefix.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		sets, _ := cmd.Flags().GetStringArray("set")
		if err := cfg.ApplyOverrides(sets); err != nil {
			return fmt.Errorf("invalid engine option: %w", err)
		}

		opts := cfg.Segmentation
		optSet := segment.NewOptionSet(&opts)
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, line := range optSet.Dump() {
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		}
		for _, name := range args {
			line, err := optSet.Set(name, "")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configOptionsCmd)
	configShowCmd.Flags().Bool("settings", false, "print the raw settings by configuration key")
	configOptionsCmd.Flags().StringArray("set", nil, "engine option assignment name=value (repeatable)")
}
