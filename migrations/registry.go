// Package migrations exposes the embedded formsync schema per SQL dialect.
//
// Postgres files live at data/sql/migrations and SQLite files under its
// sqlite/ directory. Both trees carry the same numbered up/down pairs.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	formsync "github.com/goliatone/go-formsync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	migrationsDir = "data/sql/migrations"
	sourceLabel   = "go-formsync"
)

// FilesystemSpec is one dialect's migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
}

// RegisterFunc hands one dialect's tree to a migration runner.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registerOptions)

type registerOptions struct {
	targets map[string]bool
	root    fs.FS
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(o *registerOptions) {
		for _, target := range targets {
			if dialect := normalizeDialect(target); dialect != "" {
				o.targets[dialect] = true
			}
		}
	}
}

// WithRoot reads migrations from root instead of the embedded tree.
func WithRoot(root fs.FS) Option {
	return func(o *registerOptions) {
		if root != nil {
			o.root = root
		}
	}
}

// DialectForDriver maps a database/sql driver name onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Filesystems returns the postgres and sqlite trees found under root, or
// under the embedded tree when root is nil. Each tree must contain at least
// one *.up.sql file.
func Filesystems(root fs.FS) ([]FilesystemSpec, error) {
	if root == nil {
		root = formsync.GetMigrationsFS()
	}
	base, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsDir, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsDir, FS: base},
		{Dialect: DialectSQLite, Path: migrationsDir + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", spec.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", spec.Path)
		}
	}
	return filesystems, nil
}

// Register passes each selected dialect tree to registerFn. With no targets
// every dialect is registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{SourceLabel: sourceLabel}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	options := registerOptions{targets: map[string]bool{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	filesystems, err := Filesystems(options.root)
	if err != nil {
		return reg, err
	}
	for _, spec := range filesystems {
		if len(options.targets) > 0 && !options.targets[spec.Dialect] {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", spec.Dialect, err)
		}
		reg.Dialects = append(reg.Dialects, spec.Dialect)
	}
	if len(reg.Dialects) == 0 {
		return reg, fmt.Errorf("migrations: no migrations for the requested dialects")
	}
	return reg, nil
}

func normalizeDialect(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "sqlite3" {
		return DialectSQLite
	}
	return value
}
