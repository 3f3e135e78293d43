package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/goliatone/go-formsync/core"
	formsyncmigrations "github.com/goliatone/go-formsync/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-formsync"
}

// openDatabase opens the configured database and registers the schema
// migrations for its dialect. Migrations are applied only when migrate is set.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig, migrate bool) (*persistence.Client, error) {
	driver, migrationDialect, dialect, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{DatabaseConfig: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	_, err = formsyncmigrations.Register(ctx, func(_ context.Context, dialectName string, _ string, fsys fs.FS) error {
		if dialectName != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, formsyncmigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return client, nil
}

func resolveDriver(driver string) (string, string, schema.Dialect, error) {
	dialect, err := formsyncmigrations.DialectForDriver(driver)
	if err != nil {
		return "", "", nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dialect == formsyncmigrations.DialectPostgres {
		return "postgres", dialect, pgdialect.New(), nil
	}
	return "sqlite3", dialect, sqlitedialect.New(), nil
}
