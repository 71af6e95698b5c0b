package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/config"
)

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long: `Set a configuration value in config.toml, creating the file when the
.nestlog/ directory has none yet.

Examples:
  nestlog config set storage.driver postgres
  nestlog config set storage.postgres_dsn postgres://nestlog@localhost/nestlog
  nestlog config set projector.workers 8`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, args[0], args[1])
		},
	}
}

func runSet(cmd *cobra.Command, key, value string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := openConfiger(cmd)
	if err != nil {
		return err
	}

	if cfger.GetTarget() == "" {
		return fmt.Errorf("no .nestlog/ directory found: create one or pass --config-dir")
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
