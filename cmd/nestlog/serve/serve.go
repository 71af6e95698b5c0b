// Package servecmder provides the serve command, which runs the ingestion API
// together with the reprocessing sweeper.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/nestlog/api"
	mcpapi "github.com/papercomputeco/nestlog/api/mcp"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/logger"
)

type ServeCommander struct {
	configDir string
	debug     bool

	listen        string
	storage       string
	sqlitePath    string
	postgresDSN   string
	modelProvider string
	modelTarget   string
	model         string
	prompts       string
	profilesProv  string
	profilesTgt   string
	filesTarget   string
	sweepSchedule string
	sweepLimit    uint
	workers       uint

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagModelProvider,
	config.FlagModelTarget,
	config.FlagModel,
	config.FlagPrompts,
	config.FlagProfilesProv,
	config.FlagProfilesTarget,
	config.FlagFilesTarget,
	config.FlagSweepSchedule,
	config.FlagSweepLimit,
	config.FlagWorkers,
}

const serveLongDesc string = `Run the nestlog API server.

The server accepts parent messages over HTTP, SSE and MCP, records what they
describe in the Origin Log and projects it onto the child's timeline. A
sweeper re-projects origin events whose projection never committed, on the
configured cron schedule.

Flags override environment variables (NESTLOG_*), which override config.toml.`

const serveShortDesc string = "Run the nestlog API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	AddServeFlags(cmd, cmder)

	return cmd
}

// AddServeFlags registers the flags shared by serve and sweep.
func AddServeFlags(cmd *cobra.Command, c *ServeCommander) {
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &c.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &c.storage)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &c.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgresDSN, &c.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagModelProvider, &c.modelProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagModelTarget, &c.modelTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagModel, &c.model)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPrompts, &c.prompts)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagProfilesProv, &c.profilesProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagProfilesTarget, &c.profilesTgt)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagFilesTarget, &c.filesTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSweepSchedule, &c.sweepSchedule)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagSweepLimit, &c.sweepLimit)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagWorkers, &c.workers)
}

// NewServeCommander returns an empty commander for commands that reuse the
// serve flags.
func NewServeCommander() *ServeCommander {
	return &ServeCommander{}
}

// Config returns the config resolved by Load.
func (c *ServeCommander) Config() *config.Config { return c.cfg }

// Logger returns the logger built by Load.
func (c *ServeCommander) Logger() *slog.Logger { return c.logger }

// ConfigDir returns the --config-dir override, if any.
func (c *ServeCommander) ConfigDir() string { return c.configDir }

// Load resolves the layered config and builds the logger.
func (c *ServeCommander) Load(cmd *cobra.Command) error {
	var err error
	c.debug, err = cmd.Flags().GetBool("debug")
	if err != nil {
		return fmt.Errorf("could not get debug flag: %w", err)
	}
	c.configDir, _ = cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
	c.cfg = config.FromViper(v)

	level, err := logger.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return err
	}
	if c.debug {
		level = slog.LevelDebug
	}
	format, err := logger.ParseFormat(c.cfg.Log.Format)
	if err != nil {
		return err
	}

	// FormatAuto is JSON when stdout is captured by a supervisor.
	c.logger = logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithWriter(os.Stdout),
	)
	if c.cfg.Log.File != "" {
		teed, closeLog, err := logger.Tee(c.logger, c.cfg.Log.File, level)
		if err != nil {
			return err
		}
		c.logger, c.closeLog = teed, closeLog
	}
	return nil
}

// Close releases the log file opened by Load, if any.
func (c *ServeCommander) Close() error {
	if c.closeLog == nil {
		return nil
	}
	err := c.closeLog()
	c.closeLog = nil
	return err
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	defer c.Close()

	stack, err := NewStack(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.Sweeper.Start(); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go stack.WatchProfiles(watchCtx)

	mcpServer, err := mcpapi.NewServer(mcpapi.Config{
		Service: stack.Service,
		Logger:  c.logger.With("component", "mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Service:    stack.Service,
		Sweeper:    stack.Sweeper,
		SweepLimit: int(c.cfg.Projector.SweepLimit),
		Metrics:    stack.Metrics,
		MCPHandler: mcpServer.Handler(),
		Logger:     c.logger.With("component", "api"),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting nestlog",
		"api_addr", c.cfg.API.Listen,
		"storage", c.cfg.Storage.Driver,
		"model_provider", c.cfg.Model.Provider,
		"model", c.cfg.Model.Model,
		"sweep_schedule", c.cfg.Projector.SweepSchedule,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
