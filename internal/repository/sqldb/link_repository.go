package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tmpshare/internal/repository"
)

// NewLinkRepository 返回基于 *sql.DB 的链接仓储。
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// LinkRepository 实现 repository.LinkRepository。
type LinkRepository struct {
	db *sql.DB
}

var linkColumns = []string{
	"id",
	"file_id",
	"expires_at",
	"created_at",
	"download_count",
}

func (r *LinkRepository) CreateLink(ctx context.Context, record *repository.LinkRecord) error {
	if record == nil {
		return fmt.Errorf("link record is nil")
	}

	record.ExpiresAt = dbTime(record.ExpiresAt)
	record.CreatedAt = dbTime(record.CreatedAt)
	query := fmt.Sprintf(`INSERT INTO links (%s) VALUES ($1, $2, $3, $4, $5)`, strings.Join(linkColumns, ","))

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.FileID,
		record.ExpiresAt,
		record.CreatedAt,
		record.DownloadCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (r *LinkRepository) GetLink(ctx context.Context, id string) (*repository.LinkRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE id = $1`, strings.Join(linkColumns, ","))
	rec, err := scanLinkRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return rec, nil
}

// ListLinks 返回文件的全部链接（包含已过期的），最新的在前。
func (r *LinkRepository) ListLinks(ctx context.Context, fileID string) ([]repository.LinkRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE file_id = $1 ORDER BY created_at DESC, id DESC`,
		strings.Join(linkColumns, ","))
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	result := []repository.LinkRecord{}
	for rows.Next() {
		rec, err := scanLinkRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *LinkRepository) RecordLinkDownload(ctx context.Context, linkID, fileID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE links SET download_count = download_count + 1 WHERE id = $1 AND file_id = $2`, linkID, fileID)
	if err != nil {
		return fmt.Errorf("increment link downloads: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, `UPDATE files SET download_count = download_count + 1 WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("increment file downloads: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *LinkRepository) DeleteLink(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return expectAffected(res)
}

func (r *LinkRepository) DeleteExpiredLinks(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE expires_at < $1`, dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired links: %w", err)
	}
	return res.RowsAffected()
}

func scanLinkRecord(rs rowScanner) (*repository.LinkRecord, error) {
	var rec repository.LinkRecord
	if err := rs.Scan(
		&rec.ID,
		&rec.FileID,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.DownloadCount,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan link: %w", err)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
