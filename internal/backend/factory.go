package backend

import (
	"context"
	"fmt"

	"tally/internal/cache"
	"tally/internal/kv"
	"tally/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Wrap(nil, log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store kv.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = kv.NewSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		store, err = kv.NewPostgres(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	case MemoryBackend:
		store = kv.NewMemory()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Store: store}
	if config.CacheSize > 0 && config.Type != MemoryBackend {
		cached := kv.NewCached(store, config.CacheSize, config.CacheTTL)
		result.Store = cached
		result.Caches = []cache.Cleaner{cached.Cleaner()}
		f.logger.Info("Enabled read cache", "size", config.CacheSize, "ttl", config.CacheTTL.String())
	}
	result.Cleanup = result.Store.Close
	return result, nil
}
