package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tmpshare/internal/storage"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// Prefix 让多个实例共用一个 bucket，例如 "tmpshare/"
	Prefix string
}

// Storage 把 blob 平铺在 bucket 的 Prefix 下。
type Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// New 创建 S3 存储，bucket 不存在时自动创建。
func New(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Storage{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// objectName 把 blob key 映射为对象名。key 必须是单段名称，与本地存储一致。
func (s *Storage) objectName(key string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 storage uninitialized")
	}
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return s.prefix + key, nil
}

// Write 流式上传，大小未知时 SDK 走分片上传，失败时中止分片，不留下完整对象。
func (s *Storage) Write(ctx context.Context, key string, r io.Reader) (storage.Location, error) {
	name, err := s.objectName(key)
	if err != nil {
		return storage.Location{}, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, name, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return storage.Location{}, fmt.Errorf("put object: %w", err)
	}
	return storage.Location{Path: key, Size: info.Size}, nil
}

func (s *Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject 是惰性的，Stat 才会真正发请求
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translate(err, key, "stat object")
	}
	return obj, nil
}

func (s *Storage) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	name, err := s.objectName(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translate(err, key, "stat object")
	}
	return storage.ObjectInfo{Key: key, Size: info.Size, ModTime: info.LastModified}, nil
}

// Delete 删除对象。S3 删除不存在的对象不会报错，因此先 Stat。
func (s *Storage) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}

	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		return translate(err, key, "stat object")
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// List 枚举 Prefix 下一层的对象，返回去掉前缀后的 key。
func (s *Storage) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 storage uninitialized")
	}

	var out []storage.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		key := strings.TrimPrefix(obj.Key, s.prefix)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: obj.Size, ModTime: obj.LastModified})
	}
	return out, nil
}

// CleanPartials 中止 before 之前发起、至今未完成的分片上传。
// key 都带有唯一 id，按对象名中止不会波及其他上传。
func (s *Storage) CleanPartials(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("s3 storage uninitialized")
	}

	removed := 0
	for upload := range s.client.ListIncompleteUploads(ctx, s.bucket, s.prefix, false) {
		if upload.Err != nil {
			return removed, fmt.Errorf("list incomplete uploads: %w", upload.Err)
		}
		if !upload.Initiated.Before(before) {
			continue
		}
		if err := s.client.RemoveIncompleteUpload(ctx, s.bucket, upload.Key); err != nil {
			return removed, fmt.Errorf("abort upload %s: %w", upload.Key, err)
		}
		removed++
	}
	return removed, nil
}

func translate(err error, key, op string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return fmt.Errorf("%s: %w", op, err)
}
