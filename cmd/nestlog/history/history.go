// Package historycmder provides the history command for paging through a
// child's conversation.
package historycmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/client"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/storage"
	"github.com/papercomputeco/nestlog/pkg/utils"
)

type historyCommander struct {
	apiTarget string
	page      int
	pageSize  int
}

const historyLongDesc string = `Show a child's conversation history.

Page 0 is the most recent page. Messages are printed oldest first within
the page.

Examples:
  nestlog history mia
  nestlog history mia --page 1 --page-size 50`

const historyShortDesc string = "Show a child's conversation history"

const maxMessageWidth = 240

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history <profile>",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, args[0])
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().IntVarP(&cmder.page, "page", "p", 0, "Page number, 0 is the most recent")
	cmd.Flags().IntVar(&cmder.pageSize, "page-size", 20, "Messages per page (max 100)")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, profileID string) error {
	page, err := client.New(c.apiTarget).History(ctx, profileID, c.page, c.pageSize)
	if err != nil {
		return err
	}

	fmt.Println()
	if len(page.Messages) == 0 {
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No messages yet."))
		return nil
	}

	for _, m := range page.Messages {
		fmt.Printf("  %s %s %s\n",
			cliui.DimStyle.Render(m.CreatedAt.Local().Format(time.DateTime)),
			roleLabel(m.Role),
			utils.Truncate(m.Text, maxMessageWidth),
		)
		if len(m.AttachmentIDs) > 0 {
			fmt.Printf("  %s\n", cliui.DimStyle.Render(fmt.Sprintf("  %d attachment(s)", len(m.AttachmentIDs))))
		}
	}

	fmt.Printf("\n  %s\n\n", cliui.StepStyle.Render(fmt.Sprintf(
		"page %d, %d of %d messages", page.Page, len(page.Messages), page.Total)))
	if page.HasMore {
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("Older messages: --page %d", page.Page+1)))
	}
	return nil
}

func roleLabel(r storage.Role) string {
	if r == storage.RoleUser {
		return cliui.KeyStyle.Render("parent>")
	}
	return cliui.ValueStyle.Render("assistant>")
}
