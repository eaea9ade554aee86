package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tmpshare/internal/repository"
)

// NewFileRepository 返回基于 *sql.DB 的文件仓储。
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
type FileRepository struct {
	db *sql.DB
}

var fileColumns = []string{
	"id",
	"filename",
	"storage_path",
	"size_bytes",
	"owner_id",
	"created_at",
	"download_count",
}

// CreateFile 插入文件记录。
func (r *FileRepository) CreateFile(ctx context.Context, record *repository.FileRecord) error {
	if record == nil {
		return fmt.Errorf("file record is nil")
	}

	record.CreatedAt = dbTime(record.CreatedAt)
	query := fmt.Sprintf(`INSERT INTO files (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		strings.Join(fileColumns, ","))

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Filename,
		record.StoragePath,
		record.SizeBytes,
		record.OwnerID,
		record.CreatedAt,
		record.DownloadCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile 通过主键查询文件记录。
func (r *FileRepository) GetFile(ctx context.Context, id string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, strings.Join(fileColumns, ","))
	rec, err := scanFileRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return rec, nil
}

// ListFiles 按 scope 过滤，并附带上传者信息，最新的在前。
func (r *FileRepository) ListFiles(ctx context.Context, scope repository.Scope) ([]repository.FileRecord, error) {
	if scope.Empty() {
		return []repository.FileRecord{}, nil
	}

	cols := make([]string, len(fileColumns))
	for i, c := range fileColumns {
		cols[i] = "f." + c
	}

	var (
		where string
		args  []any
	)
	if !scope.AllOwners {
		where = "WHERE f.owner_id = $1"
		args = append(args, scope.OwnerID)
	}

	query := fmt.Sprintf(`SELECT %s, COALESCE(u.email, ''), COALESCE(u.name, '')
	FROM files f LEFT JOIN users u ON u.id = f.owner_id
	%s
	ORDER BY f.created_at DESC, f.id DESC`, strings.Join(cols, ","), where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	result := []repository.FileRecord{}
	for rows.Next() {
		var owner repository.FileOwner
		rec, err := scanFileRecord(rows, &owner.Email, &owner.Name)
		if err != nil {
			return nil, err
		}
		rec.Owner = &owner
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// IncrementFileDownloads 在数据库内完成自增，避免并发下载丢失更新。
func (r *FileRepository) IncrementFileDownloads(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET download_count = download_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment file downloads: %w", err)
	}
	return expectAffected(res)
}

// DeleteFile 删除文件记录，links 通过外键级联删除。
func (r *FileRepository) DeleteFile(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return expectAffected(res)
}

// FileExistsByStoragePath 供孤儿清理判断 blob 是否仍被引用。
func (r *FileRepository) FileExistsByStoragePath(ctx context.Context, storagePath string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE storage_path = $1`, storagePath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup storage path: %w", err)
	}
	return n > 0, nil
}

func scanFileRecord(rs rowScanner, extra ...any) (*repository.FileRecord, error) {
	var rec repository.FileRecord
	dest := []any{
		&rec.ID,
		&rec.Filename,
		&rec.StoragePath,
		&rec.SizeBytes,
		&rec.OwnerID,
		&rec.CreatedAt,
		&rec.DownloadCount,
	}
	if err := rs.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
