package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ErrNotFound 表示 blob 不存在（可能已被带外删除）。
var ErrNotFound = errors.New("storage: blob not found")

// Writer 定义对象存储写接口，支持流式写入。
// 写入失败或 ctx 取消时，实现必须清理已写入的部分数据。
type Writer interface {
	Write(ctx context.Context, key string, r io.Reader) (Location, error)
}

// Reader 定义对象存储读接口，支持流式读取。
type Reader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Deleter 按 key 删除 blob。
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Lister 枚举全部已完成写入的 blob，用于孤儿清理。
type Lister interface {
	List(ctx context.Context) ([]ObjectInfo, error)
}

// PartialCleaner 由会留下未完成写入的实现提供，
// 清理 before 之前开始、至今未完成的部分数据，返回清理数量。
type PartialCleaner interface {
	CleanPartials(ctx context.Context, before time.Time) (int, error)
}

// Storage 组合了读写删的完整存储接口。
type Storage interface {
	Writer
	Reader
	Deleter
	Lister
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Path string
	Size int64
}

// ObjectInfo 是 blob 的基本属性。
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

const maxNameBytes = 128

// BlobName 由文件 id 和清洗后的原始文件名得到唯一的存储 key：{id}-{name}。
func BlobName(id, originalFilename string) string {
	return id + "-" + SanitizeFilename(originalFilename)
}

// SanitizeFilename 只保留文件名的最后一段，去掉路径分隔符与控制字符，
// 结果不超过 128 字节，空名回退为 "file"。
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.ToSlash(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0 || r == utf8.RuneError:
			continue
		case unicode.IsControl(r):
			continue
		}
		if b.Len()+utf8.RuneLen(r) > maxNameBytes {
			break
		}
		b.WriteRune(r)
	}

	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
