package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/nestlog/pkg/embeddings/utils"
	"github.com/papercomputeco/nestlog/pkg/eventstream"
	"github.com/papercomputeco/nestlog/pkg/eventstream/kafka"
	"github.com/papercomputeco/nestlog/pkg/eventstream/nop"
	fileshttp "github.com/papercomputeco/nestlog/pkg/files/http"
	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/llm/provider"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/memory/local"
	vectormemory "github.com/papercomputeco/nestlog/pkg/memory/vector"
	"github.com/papercomputeco/nestlog/pkg/metrics"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/profile"
	profilehttp "github.com/papercomputeco/nestlog/pkg/profile/http"
	"github.com/papercomputeco/nestlog/pkg/profile/static"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/storage"
	"github.com/papercomputeco/nestlog/pkg/storage/inmemory"
	"github.com/papercomputeco/nestlog/pkg/storage/postgres"
	"github.com/papercomputeco/nestlog/pkg/storage/sqlite"
	vectorutils "github.com/papercomputeco/nestlog/pkg/vector/utils"
)

const defaultSnippetLimit = 3

// Stack is every long-lived component behind "nestlog serve". The sweep
// command builds the same stack and only uses the sweeper.
type Stack struct {
	Store     storage.Driver
	Memory    memory.Driver
	Publisher eventstream.Publisher
	Metrics   *metrics.Metrics
	Projector *projector.Projector
	Sweeper   *projector.Sweeper
	Service   *ingest.Service

	// staticProfiles is set when profiles come from a local file.
	staticProfiles *static.Directory
	profilesPath   string
	logger         *slog.Logger
}

// NewStack builds the stack from a resolved config. configDir locates the
// default SQLite database when none is configured.
func NewStack(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (*Stack, error) {
	st := &Stack{Metrics: metrics.New(), logger: logger}

	var err error
	if st.Store, err = newStore(ctx, cfg, configDir, logger); err != nil {
		return nil, err
	}
	if st.Publisher, err = newPublisher(cfg, logger); err != nil {
		st.Close()
		return nil, err
	}
	if st.Memory, err = newMemory(ctx, cfg, logger); err != nil {
		st.Close()
		return nil, err
	}

	st.Projector, err = projector.New(projector.Config{
		Store:     st.Store,
		Publisher: st.Publisher,
		Logger:    logger.With("component", "projector"),
		Metrics:   st.Metrics,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	st.Sweeper, err = projector.NewSweeper(projector.SweeperConfig{
		Projector: st.Projector,
		Schedule:  cfg.Projector.SweepSchedule,
		Limit:     int(cfg.Projector.SweepLimit),
		Workers:   cfg.Projector.Workers,
		Logger:    logger.With("component", "sweeper"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	if st.Service, err = newService(cfg, st, logger); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// Close releases the stack in reverse construction order.
func (s *Stack) Close() error {
	var errs []error
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.Memory != nil {
		errs = append(errs, s.Memory.Close())
	}
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// WatchProfiles reloads a file-backed profile directory on change until ctx
// is done. Other providers return immediately.
func (s *Stack) WatchProfiles(ctx context.Context) {
	if s.staticProfiles == nil || s.profilesPath == "" {
		return
	}
	if err := s.staticProfiles.Watch(ctx, s.profilesPath, s.logger.With("component", "profiles"), nil); err != nil {
		s.logger.Warn("profile file no longer watched", "path", s.profilesPath, "error", err)
	}
}

func newService(cfg *config.Config, st *Stack, logger *slog.Logger) (*ingest.Service, error) {
	stageTimeout := config.Duration(cfg.Pipeline.StageTimeout, 0)
	lookupTimeout := config.Duration(cfg.Pipeline.LookupTimeout, 0)

	gateway, err := provider.New(provider.Config{
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Model,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.Target,
		Timeout:  config.Duration(cfg.Model.Timeout, 0),
		Logger:   logger.With("component", "llm"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}

	prompts, err := pipeline.LoadPrompts(cfg.Pipeline.PromptsPath)
	if err != nil {
		return nil, err
	}

	profiles, err := newProfiles(cfg, lookupTimeout)
	if err != nil {
		return nil, err
	}
	if dir, ok := profiles.(*static.Directory); ok {
		st.staticProfiles = dir
		st.profilesPath = cfg.Profiles.Target
	}

	var resolver ingest.Resolver
	if cfg.Files.Target != "" {
		resolver = attachments.NewResolver(attachments.Config{
			Directory:   fileshttp.New(cfg.Files.Target),
			Timeout:     lookupTimeout,
			Concurrency: int(cfg.Pipeline.AttachmentConcurrency),
			Logger:      logger.With("component", "attachments"),
			Metrics:     st.Metrics,
		})
	}

	orchestrator, err := pipeline.New(pipeline.Config{
		Gateway:               gateway,
		Prompts:               prompts,
		StageTimeout:          stageTimeout,
		AttachmentConcurrency: int(cfg.Pipeline.AttachmentConcurrency),
		Logger:                logger.With("component", "pipeline"),
		Metrics:               st.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return ingest.NewService(ingest.Config{
		Store:         st.Store,
		Pipeline:      orchestrator,
		Projector:     st.Projector,
		Resolver:      resolver,
		Profiles:      profiles,
		Memory:        st.Memory,
		Publisher:     st.Publisher,
		LookupTimeout: lookupTimeout,
		HistoryLimit:  int(cfg.Memory.HistoryLimit),
		SnippetLimit:  defaultSnippetLimit,
		Logger:        logger.With("component", "ingest"),
		Metrics:       st.Metrics,
	})
}

func newStore(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case "sqlite", "":
		path := cfg.Storage.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().DatabasePath(configDir)
			if err != nil {
				return nil, err
			}
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	case "memory", "inmemory":
		logger.Warn("using in-memory storage, nothing survives a restart")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "nop", "":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.Brokers,
			Topic:   cfg.EventStream.Topic,
		}, logger.With("component", "eventstream"))
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", cfg.EventStream.Provider)
	}
}

func newMemory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.Driver, error) {
	switch cfg.Memory.Provider {
	case "local", "":
		return local.NewDriver(local.Config{Enabled: cfg.Memory.Enabled}), nil

	case "vector":
		embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
			Dimensions:   cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		store, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
			ProviderType: cfg.VectorStore.Provider,
			TargetURL:    cfg.VectorStore.Target,
			Collection:   cfg.VectorStore.Collection,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       logger.With("component", "vector"),
		})
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("creating vector store: %w", err)
		}
		driver, err := vectormemory.NewDriver(vectormemory.Config{
			Embedder: embedder,
			Store:    store,
			Logger:   logger.With("component", "memory"),
		})
		if err != nil {
			_ = store.Close()
			_ = embedder.Close()
			return nil, err
		}
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", cfg.Memory.Provider)
	}
}

func newProfiles(cfg *config.Config, timeout time.Duration) (profile.Directory, error) {
	switch cfg.Profiles.Provider {
	case "static", "":
		dir, err := static.Load(cfg.Profiles.Target)
		if err != nil {
			return nil, err
		}
		return dir, nil
	case "http":
		if cfg.Profiles.Target == "" {
			return nil, errors.New("profiles.target is required for the http provider")
		}
		return profilehttp.New(cfg.Profiles.Target, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported profiles provider: %s", cfg.Profiles.Provider)
	}
}
