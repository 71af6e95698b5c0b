// Package nestlogcmder is the root of the nestlog CLI.
package nestlogcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/nestlog/cmd/nestlog/config"
	historycmder "github.com/papercomputeco/nestlog/cmd/nestlog/history"
	sendcmder "github.com/papercomputeco/nestlog/cmd/nestlog/send"
	servecmder "github.com/papercomputeco/nestlog/cmd/nestlog/serve"
	sweepcmder "github.com/papercomputeco/nestlog/cmd/nestlog/sweep"
	timelinecmder "github.com/papercomputeco/nestlog/cmd/nestlog/timeline"
	versioncmder "github.com/papercomputeco/nestlog/cmd/nestlog/version"
)

const nestlogLongDesc string = `nestlog turns the messages parents send about their children into a
structured, queryable timeline.

Run the server:
  nestlog serve

Talk to a running server:
  nestlog send <profile> <message>
  nestlog history <profile>
  nestlog timeline <profile>`

const nestlogShortDesc string = "nestlog - child activity logging"

func NewNestlogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nestlog",
		Short:        nestlogShortDesc,
		Long:         nestlogLongDesc,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .nestlog/ directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(sweepcmder.NewSweepCmd())
	cmd.AddCommand(sendcmder.NewSendCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(timelinecmder.NewTimelineCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
