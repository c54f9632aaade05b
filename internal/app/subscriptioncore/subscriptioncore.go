// Package subscriptioncore собирает компоненты по конфигурации: хранилище
// документов, репозиторий подписок, клиент API идентификации и сервис.
package subscriptioncore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/subscription-core/internal/billing"
	"github.com/magabrotheeeer/subscription-core/internal/cache"
	"github.com/magabrotheeeer/subscription-core/internal/config"
	"github.com/magabrotheeeer/subscription-core/internal/docstore"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/memory"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/pgstore"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/redisstore"
	"github.com/magabrotheeeer/subscription-core/internal/identity"
	"github.com/magabrotheeeer/subscription-core/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-core/internal/migrations"
	services "github.com/magabrotheeeer/subscription-core/internal/services/subscription"
	"github.com/magabrotheeeer/subscription-core/internal/storage/repository"
)

// App собранные компоненты ядра.
type App struct {
	Repository *repository.Repository
	Identity   *identity.Client
	Service    *services.SubscriptionService
	Registry   *prometheus.Registry

	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client
}

// Option настраивает сборку App.
type Option func(*options)

type options struct {
	store       docstore.Store
	identityOps []identity.Option
}

// WithStore использует переданное хранилище вместо создаваемого по конфигурации.
func WithStore(store docstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithIdentityOptions добавляет опции клиента API идентификации.
func WithIdentityOptions(opts ...identity.Option) Option {
	return func(o *options) { o.identityOps = append(o.identityOps, opts...) }
}

// New собирает App. Хранилище выбирается по storage.driver, для postgres
// перед началом работы применяются миграции.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	const op = "subscriptioncore.New"

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	if cfg.Storage.Driver == config.DriverRedis || cfg.Cache.Enabled {
		db, err := redisstore.Connect(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.redis = db
	}

	store := o.store
	if store == nil {
		var err error
		store, err = a.openStore(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	a.Repository = repository.New(store,
		repository.WithLogger(logger),
		repository.WithTimeout(cfg.Storage.Timeout),
	)

	identityOpts := []identity.Option{
		identity.WithLogger(logger),
		identity.WithMetrics(identity.NewMetrics(a.Registry)),
	}
	if cfg.Breaker.Enabled {
		identityOpts = append(identityOpts, identity.WithBreaker(identity.BreakerSettings{
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
		}))
	}
	identityOpts = append(identityOpts, o.identityOps...)
	a.Identity = identity.New(identity.Config{
		BaseURL:  cfg.IdentityAPI.BaseURL,
		Audience: cfg.IdentityAPI.Audience,
		Timeout:  cfg.IdentityAPI.Timeout,
	}, identityOpts...)

	var svcOpts []services.Option
	if catalog := billing.NewCatalog(cfg.Billing.PriceIDs); !catalog.Empty() {
		svcOpts = append(svcOpts, services.WithCatalog(catalog))
	}
	if cfg.Cache.Enabled {
		svcOpts = append(svcOpts, services.WithCache(cache.New(a.redis), cfg.Cache.TTL))
	}
	a.Service = services.NewSubscriptionService(a.Repository, a.Identity, logger, svcOpts...)

	logger.Info("subscription core initialized",
		slog.String("driver", cfg.Storage.Driver),
		slog.Bool("cache", cfg.Cache.Enabled),
		slog.Bool("breaker", cfg.Breaker.Enabled),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverRedis:
		return redisstore.New(a.redis), nil
	case config.DriverPostgres:
		db, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := migrations.Run(db, cfg.MigrationsPath); err != nil {
			return nil, err
		}
		return pgstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Close закрывает соединения с хранилищами.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("failed to close connections", sl.Err(err))
	}
	return err
}
