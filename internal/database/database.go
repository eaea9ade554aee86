package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tmpshare/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Connect 按配置的驱动建立数据库连接并执行基础健康检查。
// 连接的生命周期由调用方（进程启动/关闭）管理。
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DBDriverSQLite:
		db, err = sql.Open("sqlite3", cfg.SQLiteDSN())
		if err != nil {
			return nil, fmt.Errorf("open sqlite connection: %w", err)
		}
		// SQLite 只允许单个写者，串行化连接避免 SQLITE_BUSY
		db.SetMaxOpenConns(1)
	default:
		db, err = sql.Open("pgx", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres connection: %w", err)
		}
		db.SetMaxOpenConns(15)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}

	return db, nil
}
