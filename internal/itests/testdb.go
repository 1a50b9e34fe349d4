//go:build integration

package itests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"DocrestAPI/internal"
	"DocrestAPI/internal/db"
	"DocrestAPI/internal/logger"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const testDBName = "docrest_test"

// testDB описывает временную базу для интеграционных тестов.
type testDB struct {
	DSN      string
	adminDSN string
	name     string
}

// deriveTestDB подменяет имя БД в DSN на тестовое; admin-DSN смотрит в "postgres".
func deriveTestDB(baseDSN string) (*testDB, error) {
	u, err := url.Parse(baseDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, errors.New("only URL DSN supported: postgres://...")
	}
	// только локальный сервер
	if host := u.Hostname(); host != "localhost" && host != "127.0.0.1" {
		return nil, fmt.Errorf("refuse non-local host for tests: %s", host)
	}

	out := &testDB{name: testDBName}
	u.Path = "/" + testDBName
	out.DSN = u.String()
	u.Path = "/postgres"
	out.adminDSN = u.String()
	return out, nil
}

func (t *testDB) admin(ctx context.Context, fn func(*sql.DB) error) error {
	conn, err := sql.Open("pgx", t.adminDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return err
	}
	return fn(conn)
}

func (t *testDB) create() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.admin(ctx, func(conn *sql.DB) error {
		var exists bool
		if err := conn.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname=$1)`, t.name,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err := conn.ExecContext(ctx, `CREATE DATABASE `+pgx.Identifier{t.name}.Sanitize())
		return err
	})
}

func (t *testDB) drop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return t.admin(ctx, func(conn *sql.DB) error {
		// активные коннекты мешают DROP DATABASE
		_, _ = conn.ExecContext(ctx, `
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()
		`, t.name)
		_, err := conn.ExecContext(ctx, `DROP DATABASE IF EXISTS `+pgx.Identifier{t.name}.Sanitize())
		return err
	})
}

// setupTestDB создаёт базу и накатывает миграции из <repo>/migrations.
func setupTestDB(baseDSN string) (*testDB, error) {
	if os.Getenv("APP_ENV") == "production" {
		return nil, errors.New("APP_ENV=production: aborting tests")
	}
	t, err := deriveTestDB(baseDSN)
	if err != nil {
		return nil, err
	}
	if err := t.create(); err != nil {
		return nil, fmt.Errorf("create DB %q: %w (POSTGRES_DSN=%s). Ensure Postgres is running", t.name, err, redactDSN(baseDSN))
	}
	root, err := internal.FindRepoRoot()
	if err != nil {
		_ = t.drop()
		return nil, fmt.Errorf("repo root not found: %w", err)
	}
	if err := db.Migrate(t.DSN, filepath.Join(root, "migrations"), true); err != nil {
		_ = t.drop()
		return nil, err
	}
	logger.Info("test_db_ready", map[string]any{"db": t.name})
	return t, nil
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil || u.User.Username() == "" {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "******")
	return u.String()
}
