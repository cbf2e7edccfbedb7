package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/taskhub/bus"
	"github.com/smallnest/taskhub/cache"
	"github.com/smallnest/taskhub/config"
	"github.com/smallnest/taskhub/internal/logger"
	"github.com/smallnest/taskhub/storage"
	"github.com/smallnest/taskhub/tasks"
	"go.uber.org/zap"
)

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg   *config.Config
	store *storage.Store
	cache *cache.Resilient
	bus   *bus.EventBus
	svc   *tasks.Service
}

// newApp wires storage, cache, event bus and the task service from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(storage.Options{
		Path:     config.DatabasePath(cfg),
		LogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	cacheStore := newCacheStore(ctx, cfg.Cache)
	resilient := cache.NewResilient(cacheStore, cache.RetryPolicy{
		MaxTries:        uint(cfg.Cache.Retry.MaxTries),
		InitialInterval: cfg.Cache.Retry.InitialInterval,
		MaxInterval:     cfg.Cache.Retry.MaxInterval,
		MaxElapsed:      cfg.Cache.Retry.MaxElapsed,
	})

	eventBus := bus.NewEventBus(cfg.Events.BufferSize, cfg.Events.SubscriberBuffer)

	svc, err := tasks.NewService(tasks.Deps{
		Repo:       store.Tasks,
		Activities: store.Activities,
		Directory:  store.Directory,
		Cache:      resilient,
		Events:     eventBus,
		Timeout:    cfg.Service.OperationTimeout,
	})
	if err != nil {
		_ = eventBus.Close()
		_ = resilient.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	return &app{
		cfg:   cfg,
		store: store,
		cache: resilient,
		bus:   eventBus,
		svc:   svc,
	}, nil
}

// newCacheStore returns nil when caching is off or Redis is unreachable;
// the service then reads straight from the database.
func newCacheStore(ctx context.Context, cfg config.CacheConfig) cache.Store {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing without cache",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
			return nil
		}
		return rs
	case "memory":
		return cache.NewMemoryStore(cache.MemoryConfig{
			MaxEntries:   cfg.MaxEntries,
			DefaultTTL:   cfg.DefaultTTL,
			CleanupIntvl: cfg.CleanupInterval,
		})
	default:
		return nil
	}
}

func (a *app) Close() error {
	var firstErr error
	if err := a.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// principal resolves the acting user from the directory. An explicit role
// may only lower the stored one.
func (a *app) principal(ctx context.Context, userID, role string) (tasks.Principal, error) {
	if strings.TrimSpace(userID) == "" {
		return tasks.Principal{}, fmt.Errorf("no acting user: pass --as <user-id> or set TASKHUB_USER")
	}
	u, err := a.store.Directory.GetUser(ctx, userID)
	if err != nil {
		return tasks.Principal{}, err
	}
	p := tasks.Principal{ID: u.ID, Role: u.Role}
	if role == "" {
		return p, nil
	}
	override := tasks.Role(role)
	if !override.IsValid() {
		return tasks.Principal{}, fmt.Errorf("unknown role %q", role)
	}
	if override.Privilege() > u.Role.Privilege() {
		return tasks.Principal{}, fmt.Errorf("role %s is above %s's role %s: %w", override, u.ID, u.Role, tasks.ErrForbidden)
	}
	p.Role = override
	return p, nil
}
