// Package configcmder provides the config command for managing the persistent
// nestlog configuration in the .nestlog/ directory.
package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/config"
)

const configLongDesc string = `Manage persistent nestlog configuration.

Configuration lives in config.toml inside the .nestlog/ directory. Values
there are overridden by NESTLOG_* environment variables, which are in turn
overridden by command flags.

Keys use dotted notation matching the TOML sections, for example:
  storage.driver, storage.sqlite_path, model.provider, model.model,
  pipeline.stage_timeout, profiles.target, memory.provider,
  projector.sweep_schedule, eventstream.brokers

Examples:
  nestlog config set model.provider anthropic
  nestlog config set eventstream.brokers kafka-1:9092,kafka-2:9092
  nestlog config get projector.sweep_schedule
  nestlog config list`

const configShortDesc string = "Manage persistent nestlog configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// openConfiger resolves the config file and prints which one is in use.
func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
	} else {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No .nestlog/ directory found. Using defaults."))
	}
	return cfger, nil
}
