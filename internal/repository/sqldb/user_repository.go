package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tmpshare/internal/repository"
)

// NewUserRepository 返回基于 *sql.DB 的用户仓储。
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UserRepository 实现 repository.UserRepository。
type UserRepository struct {
	db *sql.DB
}

var userColumns = []string{
	"id",
	"email",
	"name",
	"password_hash",
	"role",
	"created_at",
}

// CreateUser 插入用户，邮箱统一保存为小写；重复邮箱返回 repository.ErrConflict。
func (r *UserRepository) CreateUser(ctx context.Context, record *repository.UserRecord) error {
	if record == nil {
		return fmt.Errorf("user record is nil")
	}

	record.Email = strings.ToLower(strings.TrimSpace(record.Email))
	record.CreatedAt = dbTime(record.CreatedAt)
	query := fmt.Sprintf(`INSERT INTO users (%s) VALUES ($1, $2, $3, $4, $5, $6)`, strings.Join(userColumns, ","))

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Email,
		record.Name,
		record.PasswordHash,
		record.Role,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*repository.UserRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, strings.Join(userColumns, ","))
	rec, err := scanUserRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return rec, nil
}

// FindUserByIdentifier 邮箱匹配优先于显示名匹配。
func (r *UserRepository) FindUserByIdentifier(ctx context.Context, identifier string) (*repository.UserRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, repository.ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE email = $1 OR name = $2
	ORDER BY CASE WHEN email = $1 THEN 0 ELSE 1 END, created_at
	LIMIT 1`, strings.Join(userColumns, ","))

	rec, err := scanUserRecord(r.db.QueryRowContext(ctx, query, strings.ToLower(identifier), identifier))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return rec, nil
}

func scanUserRecord(rs rowScanner) (*repository.UserRecord, error) {
	var rec repository.UserRecord
	if err := rs.Scan(
		&rec.ID,
		&rec.Email,
		&rec.Name,
		&rec.PasswordHash,
		&rec.Role,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
