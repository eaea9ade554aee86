// Package sqldb 基于 database/sql 实现全部仓储接口。
// SQL 只使用 Postgres 与 SQLite 共有的语法，占位符按 $1、$2 顺序首次出现，
// 同一份实现可运行在 pgx 与 go-sqlite3 两种驱动上。
package sqldb

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"tmpshare/internal/repository"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// dbTime 统一写入精度与时区：Postgres 只保存到微秒，SQLite 以文本比较时间。
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
