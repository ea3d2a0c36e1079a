package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/migrations"
)

// PgxPool represents the subset of pgxpool.Pool used by migration helpers.
type PgxPool interface {
	execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ApplyMigrations applies every embedded SQL file not yet recorded in
// schema_migrations, each in its own transaction. A populated database without
// the tracking table is assumed to already hold the initial schema.
func ApplyMigrations(ctx context.Context, pool PgxPool) error {
	names, err := migrationNames(migrations.Files)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	tracked, err := queryBool(ctx, pool, `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema='public' AND table_name='schema_migrations'
)`)
	if err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}

	if !tracked {
		var count int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`).Scan(&count); err != nil {
			return fmt.Errorf("count tables: %w", err)
		}

		if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		if count > 0 {
			logging.Warn().Str("version", names[0]).Msg("existing schema without migration history, marking initial migration applied")
			if err := recordMigration(ctx, pool, names[0]); err != nil {
				return err
			}
		}
	}

	for _, name := range names {
		applied, err := queryBool(ctx, pool, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}
		logging.Info().Str("version", name).Msg("applied migration")
	}
	return nil
}

func migrationNames(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func queryBool(ctx context.Context, pool PgxPool, q string, args ...any) (bool, error) {
	var v bool
	if err := pool.QueryRow(ctx, q, args...).Scan(&v); err != nil {
		return false, err
	}
	return v, nil
}

func applyMigration(ctx context.Context, pool PgxPool, name string) error {
	contents, err := migrations.Files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(contents)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if err := recordMigration(ctx, tx, name); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func recordMigration(ctx context.Context, db execer, name string) error {
	const q = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
	if _, err := db.Exec(ctx, q, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}
