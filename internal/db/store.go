package db

import (
	"context"
	"fmt"

	"DocrestAPI/internal/config"
	"DocrestAPI/internal/countcache"
	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/docstore/memstore"
	"DocrestAPI/internal/docstore/mongostore"
	"DocrestAPI/internal/docstore/pgstore"
	"DocrestAPI/internal/logger"
)

// OpenStore выбирает backend по STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		logger.Info("store_opened", map[string]any{"backend": config.BackendMemory})
		return memstore.New(), nil
	case config.BackendPostgres:
		pool, err := ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", map[string]any{"backend": config.BackendPostgres})
		return pgstore.New(pool), nil
	case config.BackendMongo:
		client, err := ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", map[string]any{"backend": config.BackendMongo, "db": cfg.MongoDB})
		return mongostore.New(client, cfg.MongoDB), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// OpenCountCache возвращает Redis-кэш, если задан REDIS_ADDR, иначе in-memory.
// Недоступный Redis не фатален: откатываемся на память.
func OpenCountCache(ctx context.Context, cfg *config.Config) countcache.Cache {
	if cfg.RedisAddr != "" {
		rdb, err := ConnectRedis(ctx, cfg.RedisAddr)
		if err == nil {
			return countcache.NewRedis(rdb, cfg.CountCache.TTL)
		}
		logger.Warn("redis_unavailable", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
	}
	return countcache.NewMemory(cfg.CountCache.TTL, int(cfg.CountCache.MaxEntries))
}
