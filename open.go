package clusterstate

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rbias/clusterstate/config"
	"github.com/rbias/clusterstate/stackmeta"
	"github.com/rbias/clusterstate/storage"
	"github.com/rbias/clusterstate/storage/postgres"
	"github.com/rbias/clusterstate/storage/sqlite"
)

// Open builds a registry from configuration: it opens the selected
// storage backend (running schema migrations), wires the stack metadata
// provider, and applies the default desired stack. The returned
// registry owns the store; call Close to release it.
func Open(ctx context.Context, cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var meta stackmeta.Provider
	if cfg.Stacks.MetadataDir != "" {
		meta, err = stackmeta.NewDirProvider(cfg.Stacks.MetadataDir)
		if err != nil {
			store.Close()
			return nil, err
		}
	} else {
		meta = stackmeta.NewStaticProvider()
	}

	var opts []Option
	if cfg.Stacks.DefaultName != "" {
		opts = append(opts, WithDefaultStack(stackmeta.StackID{
			Name:    cfg.Stacks.DefaultName,
			Version: cfg.Stacks.DefaultVersion,
		}))
	}

	slog.Info("registry opened",
		"backend", cfg.Storage.Backend,
		"stack_metadata_dir", cfg.Stacks.MetadataDir)
	return NewRegistry(store, meta, opts...), nil
}

// openStore opens the storage backend selected by cfg.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		storeCfg := sqlite.DefaultConfig()
		storeCfg.Path = cfg.Storage.SQLitePath
		if cfg.Storage.MaxOpenConns > 0 {
			storeCfg.MaxOpenConns = cfg.Storage.MaxOpenConns
		}
		if cfg.Storage.MaxIdleConns > 0 {
			storeCfg.MaxIdleConns = cfg.Storage.MaxIdleConns
		}
		return sqlite.New(storeCfg)

	case "postgres":
		return postgres.New(ctx, &postgres.Config{
			ConnectionString: cfg.Storage.PostgresURL,
			MaxOpenConns:     cfg.Storage.MaxOpenConns,
			MaxIdleConns:     cfg.Storage.MaxIdleConns,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// InitLogging installs a process-wide slog handler at the configured
// level, writing structured logs to stderr. Embedders that manage their
// own handler can skip this.
func InitLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
