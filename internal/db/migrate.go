package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"DocrestAPI/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate применяет (up) или откатывает на один шаг (down) миграции из dir.
func Migrate(dsn, dir string, up bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("abs migrations: %w", err)
	}
	// golang-migrate с file:// требует абсолютный путь и прямые слэши
	src := "file://" + filepath.ToSlash(abs)

	m, err := migrate.New(src, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if up {
		err = m.Up()
	} else {
		err = m.Steps(-1)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("migrate_no_change", map[string]any{"dir": abs})
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrate_done", map[string]any{"dir": abs, "up": up, "version": version, "dirty": dirty})
	return nil
}
