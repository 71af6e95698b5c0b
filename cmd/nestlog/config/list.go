package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	cfger, err := openConfiger(cmd)
	if err != nil {
		return err
	}

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	out := cmd.OutOrStdout()
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		rendered := cliui.ValueStyle.Render(value)
		if value == "" {
			rendered = cliui.DimStyle.Render("<not set>")
		}
		fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), rendered)
	}
	fmt.Fprintln(out)
	return nil
}
