package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-command"
	formsync "github.com/goliatone/go-formsync"
	"github.com/goliatone/go-formsync/adapters/gocommand"
	sqlstore "github.com/goliatone/go-formsync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const formCacheTTL = 5 * time.Minute

// app is a process wired against the configured database.
type app struct {
	db      *persistence.Client
	stores  *sqlstore.RepositoryFactory
	runtime *formsync.Runtime
	bus     *gocommand.Bus
	client  gocommand.Client
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := opts.config
	db, err := openDatabase(ctx, cfg.Database, true)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, client: gocommand.NewClient()}

	secrets, err := formsync.NewSecretProvider(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("secret provider: %w", err)
	}
	if secrets == nil {
		opts.logger.Warn("security.app_key is not set, credentials are stored unsealed")
	}
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = formCacheTTL
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("form cache: %w", err)
	}

	a.stores, err = sqlstore.NewRepositoryFactoryFromPersistence(db,
		sqlstore.WithSecretProvider(secrets),
		sqlstore.WithFormCache(cacheService),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runtime, err = formsync.Setup(cfg, formsync.Stores{
		Credentials:   a.stores.CredentialStore(),
		Subscriptions: a.stores.SubscriptionStore(),
		Forms:         a.stores.FormStore(),
		Submissions:   a.stores.SubmissionStore(),
	},
		formsync.WithSetupLoggerProvider(opts.loggerProvider),
		formsync.WithSetupLogger(opts.logger),
		formsync.WithNotificationHandler(a.client),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	a.bus, err = gocommand.NewBus(adapter, a.runtime.Service, a.runtime.Processor)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := adapter.Initialize(); err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize command registry: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.runtime != nil {
		_ = a.runtime.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
