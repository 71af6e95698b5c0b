// Package sweepcmder provides a one-shot reprocessing sweep over the Origin
// Log, for operators who do not run the scheduled sweeper.
package sweepcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	servecmder "github.com/papercomputeco/nestlog/cmd/nestlog/serve"
	"github.com/papercomputeco/nestlog/pkg/cliui"
	"github.com/papercomputeco/nestlog/pkg/projector"
)

type sweepCommander struct {
	serve *servecmder.ServeCommander
	limit int
}

const sweepLongDesc string = `Re-project origin events whose projection never committed.

Runs a single sweep against the configured store and exits. Projection is
idempotent, so running a sweep while "nestlog serve" is up is safe.

Examples:
  nestlog sweep
  nestlog sweep --limit 500 --storage postgres --postgres-dsn postgres://...`

const sweepShortDesc string = "Run a one-shot reprocessing sweep"

func NewSweepCmd() *cobra.Command {
	cmder := &sweepCommander{serve: servecmder.NewServeCommander()}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: sweepShortDesc,
		Long:  sweepLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.serve.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx)
		},
	}

	servecmder.AddServeFlags(cmd, cmder.serve)
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Maximum origin events to sweep (default: projector.sweep_limit)")

	return cmd
}

func (c *sweepCommander) run(ctx context.Context) error {
	defer c.serve.Close()

	cfg := c.serve.Config()

	// The one-shot sweep never schedules.
	cfg.Projector.SweepSchedule = ""

	stack, err := servecmder.NewStack(ctx, cfg, c.serve.ConfigDir(), c.serve.Logger())
	if err != nil {
		return err
	}
	defer stack.Close()

	limit := c.limit
	if limit <= 0 {
		limit = int(cfg.Projector.SweepLimit)
	}

	var res projector.SweepResult
	err = cliui.Step(os.Stdout, "Sweeping unprocessed origin events", func() error {
		var err error
		res, err = stack.Sweeper.Sweep(ctx, limit)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s %s  %s %s  %s %s  %s %s\n\n",
		cliui.KeyStyle.Render("scanned"), cliui.ValueStyle.Render(fmt.Sprint(res.Scanned)),
		cliui.KeyStyle.Render("projected"), cliui.ValueStyle.Render(fmt.Sprint(res.Projected)),
		cliui.KeyStyle.Render("failed"), cliui.ValueStyle.Render(fmt.Sprint(res.Failed)),
		cliui.KeyStyle.Render("dropped"), cliui.ValueStyle.Render(fmt.Sprint(res.Dropped)),
	)
	return nil
}
