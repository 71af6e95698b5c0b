// Package sendcmder provides the send command, which logs a message for a
// child through a running nestlog server.
package sendcmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/client"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
)

type sendCommander struct {
	apiTarget       string
	userID          string
	attachments     []string
	clientMessageID string
	localTime       string
	timezone        string
	debug           bool
}

const sendLongDesc string = `Log a message for a child.

The message goes through the full pipeline on the server: context lookup,
attachment interpretation, classification and event extraction. Progress is
streamed back while it runs, then the assistant's reply is printed.

Examples:
  nestlog send mia "She napped from 1 to 2:30 and ate half a banana"
  nestlog send mia "Here is her art from today" --attachment file-123
  nestlog send mia "Fever 38.2 this morning" --timezone America/New_York`

const sendShortDesc string = "Log a message for a child"

func NewSendCmd() *cobra.Command {
	cmder := &sendCommander{}

	cmd := &cobra.Command{
		Use:   "send <profile> <message>",
		Short: sendShortDesc,
		Long:  sendLongDesc,
		Args:  cobra.MinimumNArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadAPITarget(cmd, &cmder.apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, args[0], strings.Join(args[1:], " "))
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "Id of the parent sending the message")
	cmd.Flags().StringSliceVar(&cmder.attachments, "attachment", nil, "Attachment id from the file directory (repeatable)")
	cmd.Flags().StringVar(&cmder.clientMessageID, "client-message-id", "", "Idempotency key; resending with the same key replays the first result")
	cmd.Flags().StringVar(&cmder.localTime, "local-time", "", "Sender's local time (e.g. 2025-06-10T08:30)")
	cmd.Flags().StringVar(&cmder.timezone, "timezone", "", "IANA timezone of the sender (e.g. Europe/Berlin)")

	return cmd
}

func (c *sendCommander) run(ctx context.Context, profileID, message string) error {
	var opts []client.Option
	if c.debug {
		opts = append(opts, client.WithStreamTee(os.Stderr))
	}
	api := client.New(c.apiTarget, opts...)

	fmt.Println()
	resp, err := api.Send(ctx, profileID, ingest.MessageRequest{
		UserID:          c.userID,
		Message:         message,
		AttachmentRefs:  c.attachments,
		ClientMessageID: c.clientMessageID,
		LocalTime:       c.localTime,
		Timezone:        c.timezone,
	}, printProgress)
	if err != nil {
		fmt.Printf("  %s %v\n\n", cliui.FailMark, err)
		return err
	}

	printResponse(resp)
	return nil
}

func printProgress(p pipeline.Progress) {
	if p.Status == pipeline.StatusStarted {
		return
	}

	mark := cliui.SuccessMark
	switch p.Status {
	case pipeline.StatusDegraded:
		mark = cliui.FailMark
	case pipeline.StatusSkipped:
		mark = cliui.DimStyle.Render("-")
	}

	line := fmt.Sprintf("  %s %s", mark, p.Stage)
	if p.Message != "" {
		line += " " + cliui.StepStyle.Render("("+p.Message+")")
	}
	fmt.Println(line)
}

func printResponse(resp *ingest.MessageResponse) {
	fmt.Println()
	if resp.Duplicate {
		fmt.Printf("  %s\n", cliui.DimStyle.Render("Already recorded, replaying the earlier result."))
	}

	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("assistant>"), resp.Reply)
	for _, q := range resp.ClarificationQuestions {
		fmt.Printf("  %s %s\n", cliui.DimStyle.Render("?"), q)
	}

	fmt.Printf("\n  %s %s  %s %d  %s %d\n",
		cliui.KeyStyle.Render("classification"), cliui.ValueStyle.Render(resp.Classification),
		cliui.KeyStyle.Render("events"), resp.EventCount,
		cliui.KeyStyle.Render("timeline entries"), resp.TimelineEntriesCreated,
	)
	if resp.OriginEventID != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("origin event"), cliui.DimStyle.Render(resp.OriginEventID))
	}
	fmt.Println()
}
