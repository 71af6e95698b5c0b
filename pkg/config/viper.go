package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/nestlog/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the NESTLOG_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (NESTLOG_API_LISTEN, NESTLOG_MODEL_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("NESTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the resolved viper state.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{Version: v.GetInt("version")}

	cfg.Storage.Driver = v.GetString("storage.driver")
	cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	cfg.Storage.PostgresDSN = v.GetString("storage.postgres_dsn")

	cfg.API.Listen = v.GetString("api.listen")
	cfg.Client.APITarget = v.GetString("client.api_target")

	cfg.Model.Provider = v.GetString("model.provider")
	cfg.Model.Target = v.GetString("model.target")
	cfg.Model.Model = v.GetString("model.model")
	cfg.Model.APIKey = v.GetString("model.api_key")
	cfg.Model.Timeout = v.GetString("model.timeout")

	cfg.Pipeline.PromptsPath = v.GetString("pipeline.prompts_path")
	cfg.Pipeline.StageTimeout = v.GetString("pipeline.stage_timeout")
	cfg.Pipeline.LookupTimeout = v.GetString("pipeline.lookup_timeout")
	cfg.Pipeline.AttachmentConcurrency = v.GetUint("pipeline.attachment_concurrency")

	cfg.Profiles.Provider = v.GetString("profiles.provider")
	cfg.Profiles.Target = v.GetString("profiles.target")
	cfg.Files.Target = v.GetString("files.target")

	cfg.Memory.Provider = v.GetString("memory.provider")
	cfg.Memory.Enabled = v.GetBool("memory.enabled")
	cfg.Memory.HistoryLimit = v.GetUint("memory.history_limit")

	cfg.VectorStore.Provider = v.GetString("vector_store.provider")
	cfg.VectorStore.Target = v.GetString("vector_store.target")
	cfg.VectorStore.Collection = v.GetString("vector_store.collection")

	cfg.Embedding.Provider = v.GetString("embedding.provider")
	cfg.Embedding.Target = v.GetString("embedding.target")
	cfg.Embedding.Model = v.GetString("embedding.model")
	cfg.Embedding.Dimensions = v.GetUint("embedding.dimensions")

	cfg.Projector.SweepSchedule = v.GetString("projector.sweep_schedule")
	cfg.Projector.SweepLimit = v.GetUint("projector.sweep_limit")
	cfg.Projector.Workers = v.GetUint("projector.workers")

	cfg.EventStream.Provider = v.GetString("eventstream.provider")
	cfg.EventStream.Brokers = v.GetStringSlice("eventstream.brokers")
	cfg.EventStream.Topic = v.GetString("eventstream.topic")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.File = v.GetString("log.file")

	return cfg
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// API + client
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Model gateway
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.target", d.Model.Target)
	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.timeout", d.Model.Timeout)

	// Pipeline
	v.SetDefault("pipeline.prompts_path", d.Pipeline.PromptsPath)
	v.SetDefault("pipeline.stage_timeout", d.Pipeline.StageTimeout)
	v.SetDefault("pipeline.lookup_timeout", d.Pipeline.LookupTimeout)
	v.SetDefault("pipeline.attachment_concurrency", d.Pipeline.AttachmentConcurrency)

	// Collaborators
	v.SetDefault("profiles.provider", d.Profiles.Provider)
	v.SetDefault("profiles.target", d.Profiles.Target)
	v.SetDefault("files.target", d.Files.Target)

	// Memory
	v.SetDefault("memory.provider", d.Memory.Provider)
	v.SetDefault("memory.enabled", d.Memory.Enabled)
	v.SetDefault("memory.history_limit", d.Memory.HistoryLimit)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Projector
	v.SetDefault("projector.sweep_schedule", d.Projector.SweepSchedule)
	v.SetDefault("projector.sweep_limit", d.Projector.SweepLimit)
	v.SetDefault("projector.workers", d.Projector.Workers)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Logging
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}
