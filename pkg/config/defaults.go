package config

const (
	defaultStorageDriver = "sqlite"
	defaultAPIListen     = ":8081"

	defaultClientAPITarget = "http://localhost:8081"

	defaultModelProvider = "ollama"
	defaultModelTarget   = "http://localhost:11434"
	defaultModel         = "llama3.2"
	defaultModelTimeout  = "60s"

	defaultStageTimeout          = "90s"
	defaultLookupTimeout         = "5s"
	defaultAttachmentConcurrency = 4

	defaultProfilesProvider = "static"

	defaultMemoryProvider     = "local"
	defaultMemoryHistoryLimit = 12

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "nestlog_memory"

	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultSweepSchedule = "@every 5m"
	defaultSweepLimit    = 100
	defaultWorkers       = 3

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "nestlog.origin-events"

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Model: ModelConfig{
			Provider: defaultModelProvider,
			Target:   defaultModelTarget,
			Model:    defaultModel,
			Timeout:  defaultModelTimeout,
		},
		Pipeline: PipelineConfig{
			StageTimeout:          defaultStageTimeout,
			LookupTimeout:         defaultLookupTimeout,
			AttachmentConcurrency: defaultAttachmentConcurrency,
		},
		Profiles: ProfilesConfig{
			Provider: defaultProfilesProvider,
		},
		Memory: MemoryConfig{
			Provider:     defaultMemoryProvider,
			Enabled:      true,
			HistoryLimit: defaultMemoryHistoryLimit,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultModelProvider,
			Target:     defaultModelTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Projector: ProjectorConfig{
			SweepSchedule: defaultSweepSchedule,
			SweepLimit:    defaultSweepLimit,
			Workers:       defaultWorkers,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
