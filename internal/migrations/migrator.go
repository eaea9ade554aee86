package migrations

import (
	"errors"
	"fmt"

	dbmigrations "tmpshare/db/migrations"
	"tmpshare/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Apply 执行当前数据库方言下的全部 up 迁移脚本，返回迁移后的版本号。
func Apply(cfg *config.Config) (uint, error) {
	if cfg == nil {
		return 0, fmt.Errorf("config is nil")
	}
	return Up(cfg.DBDriver, cfg.MigrationURL())
}

// Up 使用 embed 的 dialect 目录对 databaseURL 执行迁移。
// databaseURL 采用 golang-migrate 格式（pgx5://... 或 sqlite3://...）。
func Up(dialect, databaseURL string) (uint, error) {
	source, err := iofs.New(dbmigrations.Files, dialect)
	if err != nil {
		return 0, fmt.Errorf("read %s migrations: %w", dialect, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration version %d is dirty", version)
	}
	return version, nil
}
