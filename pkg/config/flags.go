package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on "nestlog send", "nestlog history" and "nestlog timeline").
type Flag struct {
	// Name is the long flag name (e.g. "model-provider").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "model.provider").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen      = "api-listen"
	FlagAPITarget      = "api-target"
	FlagStorageDriver  = "storage"
	FlagSQLite         = "sqlite"
	FlagPostgresDSN    = "postgres-dsn"
	FlagModelProvider  = "model-provider"
	FlagModelTarget    = "model-target"
	FlagModel          = "model"
	FlagPrompts        = "prompts"
	FlagProfilesProv   = "profiles-provider"
	FlagProfilesTarget = "profiles-target"
	FlagFilesTarget    = "files-target"
	FlagSweepSchedule  = "sweep-schedule"
	FlagSweepLimit     = "sweep-limit"
	FlagWorkers        = "workers"
)

// ServeFlags is the flag registry for "nestlog serve" and "nestlog sweep".
var ServeFlags = FlagSet{
	FlagAPIListen:      {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:  {Name: FlagStorageDriver, ViperKey: "storage.driver", Description: "Storage driver (sqlite, postgres, memory)"},
	FlagSQLite:         {Name: FlagSQLite, Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgresDSN:    {Name: FlagPostgresDSN, ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagModelProvider:  {Name: FlagModelProvider, Shorthand: "m", ViperKey: "model.provider", Description: "Model provider (openai, anthropic, ollama)"},
	FlagModelTarget:    {Name: FlagModelTarget, ViperKey: "model.target", Description: "Model provider base URL"},
	FlagModel:          {Name: FlagModel, ViperKey: "model.model", Description: "Model name"},
	FlagPrompts:        {Name: FlagPrompts, ViperKey: "pipeline.prompts_path", Description: "YAML file overriding the built-in prompts"},
	FlagProfilesProv:   {Name: FlagProfilesProv, ViperKey: "profiles.provider", Description: "Profile directory provider (static, http)"},
	FlagProfilesTarget: {Name: FlagProfilesTarget, ViperKey: "profiles.target", Description: "Profile directory URL or file"},
	FlagFilesTarget:    {Name: FlagFilesTarget, ViperKey: "files.target", Description: "File/media directory base URL"},
	FlagSweepSchedule:  {Name: FlagSweepSchedule, ViperKey: "projector.sweep_schedule", Description: "Cron schedule for the reprocessing sweep"},
	FlagSweepLimit:     {Name: FlagSweepLimit, ViperKey: "projector.sweep_limit", Description: "Maximum origin events per sweep"},
	FlagWorkers:        {Name: FlagWorkers, ViperKey: "projector.workers", Description: "Projection worker count"},
}

// ClientFlags is the flag registry for commands that call a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: FlagAPITarget, Shorthand: "a", ViperKey: "client.api_target", Description: "nestlog API server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// LoadAPITarget fills target from config.toml unless --api-target was given
// on cmd. Client commands call it from PreRunE.
func LoadAPITarget(cmd *cobra.Command, target *string) error {
	if cmd.Flags().Changed(ClientFlags[FlagAPITarget].Name) {
		return nil
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	*target = cfg.Client.APITarget
	return nil
}
