package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"tmpshare/internal/auth"
	"tmpshare/internal/config"
	"tmpshare/internal/database"
	"tmpshare/internal/migrations"
	"tmpshare/internal/repository"
	"tmpshare/internal/repository/sqldb"
	"tmpshare/internal/storage"
	"tmpshare/internal/storage/local"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyStore 包装真实存储，按需注入删除失败。
type faultyStore struct {
	storage.Storage
	deleteErr error
	deletes   []string
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Storage.Delete(ctx, key)
}

// faultyFiles 包装真实文件仓储，按需注入创建失败。
type faultyFiles struct {
	repository.FileRepository
	createErr error
}

func (f *faultyFiles) CreateFile(ctx context.Context, record *repository.FileRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.FileRepository.CreateFile(ctx, record)
}

// revokingLinks 在计数前删除链接，模拟校验通过后链接被并发撤销。
type revokingLinks struct {
	repository.LinkRepository
}

func (r *revokingLinks) RecordLinkDownload(ctx context.Context, linkID, fileID string) error {
	if err := r.LinkRepository.DeleteLink(ctx, linkID); err != nil {
		return err
	}
	return r.LinkRepository.RecordLinkDownload(ctx, linkID, fileID)
}

type testEnv struct {
	clock    *fakeClock
	logger   *zap.Logger
	users    *sqldb.UserRepository
	fileRepo *faultyFiles
	linkRepo *sqldb.LinkRepository
	store    *faultyStore
	blobs    *local.Store
	links    *LinkService
	files    *FileService
	accounts *AccountService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{DBDriver: config.DBDriverSQLite, SQLitePath: filepath.Join(dir, "test.db")}
	_, err := migrations.Apply(cfg)
	require.NoError(t, err)
	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := local.New(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	env := &testEnv{
		clock:    newFakeClock(),
		logger:   zaptest.NewLogger(t),
		users:    sqldb.NewUserRepository(db),
		fileRepo: &faultyFiles{FileRepository: sqldb.NewFileRepository(db)},
		linkRepo: sqldb.NewLinkRepository(db),
		blobs:    blobs,
	}
	env.store = &faultyStore{Storage: blobs}

	opts = append([]Option{WithClock(env.clock.Now)}, opts...)
	env.links = NewLinkService(env.linkRepo, env.fileRepo, env.logger, opts...)
	env.files = NewFileService(env.fileRepo, env.users, env.store, env.links, env.logger, opts...)
	sessions := auth.NewSessions("test-secret", 30*24*time.Hour, auth.WithClock(env.clock.Now))
	env.accounts = NewAccountService(env.users, sessions, func(email string) bool {
		return email == "admin@example.com"
	}, env.logger, opts...)
	return env
}

func (e *testEnv) user(t *testing.T, name string, role repository.Role) *repository.Identity {
	t.Helper()
	u := &repository.UserRecord{
		ID:           uuid.NewString(),
		Email:        name + "@example.com",
		Name:         name,
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    e.clock.Now(),
	}
	require.NoError(t, e.users.CreateUser(context.Background(), u))
	return u.Identity()
}

func (e *testEnv) upload(t *testing.T, owner *repository.Identity, name string, payload []byte) *repository.FileRecord {
	t.Helper()
	rec, err := e.files.Upload(context.Background(), owner, UploadInput{
		Filename: name,
		Size:     int64(len(payload)),
		Reader:   bytesReader(payload),
	})
	require.NoError(t, err)
	return rec
}

func readAll(t *testing.T, d *Download) []byte {
	t.Helper()
	defer d.Content.Close()
	body, err := io.ReadAll(d.Content)
	require.NoError(t, err)
	return body
}

var errBoom = errors.New("boom")
