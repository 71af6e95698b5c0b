// Package timelinecmder provides the timeline command, which renders a
// child's recorded timeline as markdown.
package timelinecmder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/client"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/ingest"
)

type timelineCommander struct {
	apiTarget string
	limit     int
	offset    int
	raw       bool
}

const timelineLongDesc string = `Show a child's timeline, newest first.

Entries are grouped by day. Output is styled markdown on a terminal and plain
markdown otherwise; --raw forces plain output.

Examples:
  nestlog timeline mia
  nestlog timeline mia --limit 100 --offset 50`

const timelineShortDesc string = "Show a child's timeline"

func NewTimelineCmd() *cobra.Command {
	cmder := &timelineCommander{}

	cmd := &cobra.Command{
		Use:   "timeline <profile>",
		Short: timelineShortDesc,
		Long:  timelineLongDesc,
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
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 50, "Entries to show (max 200)")
	cmd.Flags().IntVar(&cmder.offset, "offset", 0, "Entries to skip")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print plain markdown")

	return cmd
}

func (c *timelineCommander) run(ctx context.Context, profileID string) error {
	page, err := client.New(c.apiTarget).Timeline(ctx, profileID, c.limit, c.offset)
	if err != nil {
		return err
	}

	md := Markdown(profileID, page.Entries, time.Local)
	if c.raw || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(md)
		return nil
	}

	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		// glamour failing is cosmetic
		fmt.Print(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

// Markdown renders timeline entries grouped by their day in loc.
func Markdown(profileID string, entries []ingest.TimelineItem, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Timeline for %s\n\n", profileID)

	if len(entries) == 0 {
		b.WriteString("_Nothing recorded yet._\n")
		return b.String()
	}

	day := ""
	for _, e := range entries {
		if e.TimelineEntry == nil {
			continue
		}
		t := e.RecordTime.In(loc)
		if d := t.Format("Monday, January 2 2006"); d != day {
			day = d
			fmt.Fprintf(&b, "## %s\n\n", day)
		}

		fmt.Fprintf(&b, "- **%s** %s", t.Format("15:04"), e.Title)
		if e.Category != "" {
			fmt.Fprintf(&b, " `%s`", e.Category)
		}
		b.WriteString("\n")
		if e.Summary != "" && e.Summary != e.Title {
			fmt.Fprintf(&b, "  %s\n", e.Summary)
		}
		for _, a := range e.Attachments {
			name := a.Name
			if name == "" {
				name = a.ID
			}
			fmt.Fprintf(&b, "  [%s](%s)\n", name, a.URL)
		}
	}
	return b.String()
}
