package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tmpshare/internal/storage"
)

// partialDir 存放写入中的临时文件。以 "." 开头，任何合法 key 都不会与之重名。
const partialDir = ".partial"

// Store 将 blob 平铺写入本地目录，写入中的数据位于 BaseDir/.partial。
type Store struct {
	BaseDir string
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, partialDir), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &Store{BaseDir: baseDir}, nil
}

// path 校验 key 只能是目录内的单个文件名，且不以 "." 开头。
func (s *Store) path(key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("local store uninitialized")
	}
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.BaseDir, key), nil
}

// Write 先写临时文件再 rename，保证读者看不到半截文件。
// 读取失败或 ctx 取消时删除临时文件。
func (s *Store) Write(ctx context.Context, key string, r io.Reader) (storage.Location, error) {
	targetPath, err := s.path(key)
	if err != nil {
		return storage.Location{}, err
	}

	if err := ctx.Err(); err != nil {
		return storage.Location{}, err
	}

	file, err := os.CreateTemp(filepath.Join(s.BaseDir, partialDir), key+".*")
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()

	fail := func(err error) (storage.Location, error) {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, err
	}

	n, err := io.Copy(file, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return fail(fmt.Errorf("write file: %w", err))
	}

	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("sync file: %w", err))
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	return storage.Location{Path: key, Size: n}, nil
}

// Read 打开并返回指定 key 对应的文件内容。
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	targetPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(targetPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	targetPath, err := s.path(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return storage.ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	targetPath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(targetPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// List 返回目录下全部已完成的 blob，跳过子目录与隐藏文件。
func (s *Store) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	out := make([]storage.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// 文件在枚举过程中被删除
			continue
		}
		out = append(out, storage.ObjectInfo{Key: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// CleanPartials 删除 before 之前最后修改、仍留在 .partial 中的临时文件，
// 通常是进程在写入途中被杀死后的残留。
func (s *Store) CleanPartials(ctx context.Context, before time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("local store uninitialized")
	}

	dir := filepath.Join(s.BaseDir, partialDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read partial dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove partial file: %w", err)
		}
		removed++
	}
	return removed, nil
}

// ctxReader 在每次 Read 前检查 ctx，客户端断开后尽快停止写盘。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
