package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent nestlog configuration stored as config.toml
// in the .nestlog/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Model       ModelConfig       `toml:"model"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Profiles    ProfilesConfig    `toml:"profiles"`
	Files       FilesConfig       `toml:"files"`
	Memory      MemoryConfig      `toml:"memory"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Projector   ProjectorConfig   `toml:"projector"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// StorageConfig selects the Origin Log and projection store.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LogConfig controls the logs of long-running commands.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error". --debug overrides it.
	Level string `toml:"level,omitempty"`

	// Format is "auto", "pretty", "json" or "text". Auto is pretty on a
	// terminal and JSON otherwise.
	Format string `toml:"format,omitempty"`

	// File, when set, also receives every record as JSON.
	File string `toml:"file,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (nestlog send, nestlog history, nestlog timeline).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// ModelConfig configures the generative model gateway.
type ModelConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

// PipelineConfig tunes the interpretation pipeline.
type PipelineConfig struct {
	PromptsPath           string `toml:"prompts_path,omitempty"`
	StageTimeout          string `toml:"stage_timeout,omitempty"`
	LookupTimeout         string `toml:"lookup_timeout,omitempty"`
	AttachmentConcurrency uint   `toml:"attachment_concurrency,omitempty"`
}

// ProfilesConfig selects the profile directory adapter.
type ProfilesConfig struct {
	// Provider is "http" or "static".
	Provider string `toml:"provider,omitempty"`
	// Target is a base URL for "http" or a TOML file path for "static".
	Target string `toml:"target,omitempty"`
}

// FilesConfig configures the file/media directory adapter.
type FilesConfig struct {
	Target string `toml:"target,omitempty"`
}

// MemoryConfig holds conversational memory settings.
type MemoryConfig struct {
	Provider     string `toml:"provider,omitempty"`
	Enabled      bool   `toml:"enabled,omitempty"`
	HistoryLimit uint   `toml:"history_limit,omitempty"`
}

// VectorStoreConfig holds vector store settings for vector-backed memory.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// ProjectorConfig configures the reprocessing sweep.
type ProjectorConfig struct {
	SweepSchedule string `toml:"sweep_schedule,omitempty"`
	SweepLimit    uint   `toml:"sweep_limit,omitempty"`
	Workers       uint   `toml:"workers,omitempty"`
}

// EventStreamConfig selects where origin/projection notifications go.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":                  stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":             stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":            stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"api.listen":                      stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target":               stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"model.provider":                  stringKey(func(c *Config) *string { return &c.Model.Provider }),
	"model.target":                    stringKey(func(c *Config) *string { return &c.Model.Target }),
	"model.model":                     stringKey(func(c *Config) *string { return &c.Model.Model }),
	"model.api_key":                   stringKey(func(c *Config) *string { return &c.Model.APIKey }),
	"model.timeout":                   stringKey(func(c *Config) *string { return &c.Model.Timeout }),
	"pipeline.prompts_path":           stringKey(func(c *Config) *string { return &c.Pipeline.PromptsPath }),
	"pipeline.stage_timeout":          stringKey(func(c *Config) *string { return &c.Pipeline.StageTimeout }),
	"pipeline.lookup_timeout":         stringKey(func(c *Config) *string { return &c.Pipeline.LookupTimeout }),
	"pipeline.attachment_concurrency": uintKey("pipeline.attachment_concurrency",
		func(c *Config) *uint { return &c.Pipeline.AttachmentConcurrency }),
	"profiles.provider":        stringKey(func(c *Config) *string { return &c.Profiles.Provider }),
	"profiles.target":          stringKey(func(c *Config) *string { return &c.Profiles.Target }),
	"files.target":             stringKey(func(c *Config) *string { return &c.Files.Target }),
	"memory.provider":          stringKey(func(c *Config) *string { return &c.Memory.Provider }),
	"memory.history_limit":     uintKey("memory.history_limit", func(c *Config) *uint { return &c.Memory.HistoryLimit }),
	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":  stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"embedding.provider":       stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":         stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":          stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":     uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"projector.sweep_schedule": stringKey(func(c *Config) *string { return &c.Projector.SweepSchedule }),
	"projector.sweep_limit":    uintKey("projector.sweep_limit", func(c *Config) *uint { return &c.Projector.SweepLimit }),
	"projector.workers":        uintKey("projector.workers", func(c *Config) *uint { return &c.Projector.Workers }),
	"eventstream.provider":     stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.topic":        stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"log.level":                stringKey(func(c *Config) *string { return &c.Log.Level }),
	"log.format":               stringKey(func(c *Config) *string { return &c.Log.Format }),
	"log.file":                 stringKey(func(c *Config) *string { return &c.Log.File }),
	"memory.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.enabled: %w", err)
			}
			c.Memory.Enabled = b
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.EventStream.Brokers = append(c.EventStream.Brokers, b)
				}
			}
			return nil
		},
	},
}
