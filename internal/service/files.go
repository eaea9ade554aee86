package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"tmpshare/internal/metrics"
	"tmpshare/internal/repository"
	"tmpshare/internal/storage"
)

// FileService 编排文件的上传、列表、下载与删除。
type FileService struct {
	files  repository.FileRepository
	users  repository.UserRepository
	store  storage.Storage
	links  *LinkService
	logger *zap.Logger
	opts   options
}

func NewFileService(files repository.FileRepository, users repository.UserRepository, store storage.Storage, links *LinkService, logger *zap.Logger, opts ...Option) *FileService {
	return &FileService{
		files:  files,
		users:  users,
		store:  store,
		links:  links,
		logger: logger.Named("files"),
		opts:   buildOptions(opts),
	}
}

// MaxUploadBytes 返回上传大小上限。
func (s *FileService) MaxUploadBytes() int64 {
	return s.opts.maxUploadBytes
}

// UploadInput 描述一次上传。Size 未知时为 -1。
type UploadInput struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Upload 先确认上传者存在，再写 blob，最后写元数据。
// 元数据写入失败时补偿删除刚写入的 blob；补偿也失败时留给定期清理。
func (s *FileService) Upload(ctx context.Context, identity *repository.Identity, in UploadInput) (*repository.FileRecord, error) {
	if identity == nil || identity.ID == "" {
		return nil, ErrUnauthenticated
	}
	if in.Reader == nil {
		return nil, validationError("file is required")
	}
	if in.Size > s.opts.maxUploadBytes {
		metrics.UploadsTotal.WithLabelValues("too_large").Inc()
		return nil, ErrTooLarge
	}

	// 外部 IdP 签发的会话可能没有对应的本地用户
	if _, err := s.users.GetUser(ctx, identity.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		s.logger.Error("get uploader", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, storageError("get uploader", err)
	}

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = "file"
	}

	id := s.opts.newID()
	key := storage.BlobName(id, filename)

	lr := &limitReader{r: in.Reader, max: s.opts.maxUploadBytes}
	loc, err := s.store.Write(ctx, key, lr)
	if err != nil {
		switch {
		// 部分存储 SDK 不保留读取端的错误链
		case errors.Is(err, ErrTooLarge) || lr.exceeded():
			metrics.UploadsTotal.WithLabelValues("too_large").Inc()
			return nil, ErrTooLarge
		case ctx.Err() != nil:
			metrics.UploadsTotal.WithLabelValues("cancelled").Inc()
			s.logger.Info("upload cancelled", zap.String("file_id", id), zap.Error(ctx.Err()))
			return nil, ctx.Err()
		}
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("write blob", zap.String("file_id", id), zap.String("key", key), zap.Error(err))
		return nil, storageError("write blob", err)
	}

	record := &repository.FileRecord{
		ID:            id,
		Filename:      filename,
		StoragePath:   loc.Path,
		SizeBytes:     loc.Size,
		OwnerID:       identity.ID,
		CreatedAt:     s.opts.clock(),
		DownloadCount: 0,
	}
	if err := s.files.CreateFile(ctx, record); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("create file record", zap.String("file_id", id), zap.Error(err))
		s.discardOrphan(context.WithoutCancel(ctx), loc.Path)
		return nil, storageError("create file record", err)
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	metrics.UploadedBytes.Add(float64(loc.Size))
	s.logger.Info("file uploaded",
		zap.String("file_id", id),
		zap.String("owner_id", identity.ID),
		zap.Int64("size", loc.Size),
	)
	return record, nil
}

func (s *FileService) discardOrphan(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("compensating blob delete failed, left for sweeper", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.OrphanBlobsTotal.WithLabelValues("compensated").Inc()
}

// List 返回调用者可见的文件：管理员看到全部，其他用户只看到自己的，最新的在前。
// 未认证时返回空列表而不是错误。
func (s *FileService) List(ctx context.Context, identity *repository.Identity) ([]repository.FileRecord, bool, error) {
	scope := repository.ScopeFor(identity)
	if scope.Empty() {
		return []repository.FileRecord{}, false, nil
	}

	files, err := s.files.ListFiles(ctx, scope)
	if err != nil {
		s.logger.Error("list files", zap.Error(err))
		return nil, identity.IsAdmin(), storageError("list files", err)
	}
	return files, identity.IsAdmin(), nil
}

// Download 是一次已授权的下载，调用方负责关闭 Content。
type Download struct {
	File    *repository.FileRecord
	Content io.ReadCloser
	ViaLink bool
}

// Download 支持两种访问途径：
// linkID 非空时按链接校验（失败统一为 ErrAccessDenied）；否则要求已认证身份。
// 任何已认证用户都可以按 id 直接下载。blob 打开成功后才增加计数。
func (s *FileService) Download(ctx context.Context, identity *repository.Identity, fileID, linkID string) (*Download, error) {
	viaLink := linkID != ""
	if viaLink {
		state, err := s.links.ValidateForAccess(ctx, linkID, fileID, s.opts.clock())
		if err != nil {
			return nil, err
		}
		if state != LinkValid {
			metrics.LinkDenialsTotal.WithLabelValues(state.String()).Inc()
			return nil, ErrAccessDenied
		}
	} else if identity == nil || identity.ID == "" {
		return nil, ErrUnauthenticated
	}

	file, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if viaLink {
				return nil, ErrAccessDenied
			}
			return nil, ErrNotFound
		}
		s.logger.Error("get file", zap.String("file_id", fileID), zap.Error(err))
		return nil, storageError("get file", err)
	}

	content, err := s.store.Read(ctx, file.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("blob missing for file record", zap.String("file_id", file.ID), zap.String("key", file.StoragePath))
			return nil, ErrNotFound
		}
		s.logger.Error("open blob", zap.String("file_id", file.ID), zap.Error(err))
		return nil, storageError("open blob", err)
	}

	if err := s.countDownload(ctx, file.ID, linkID); err != nil {
		content.Close()
		return nil, err
	}
	file.DownloadCount++

	via := "direct"
	if viaLink {
		via = "link"
	}
	metrics.DownloadsTotal.WithLabelValues(via).Inc()

	return &Download{File: file, Content: content, ViaLink: viaLink}, nil
}

// countDownload 通过链接下载时两个计数在同一事务内增加，不会只增加其中一个。
func (s *FileService) countDownload(ctx context.Context, fileID, linkID string) error {
	if linkID != "" {
		return s.links.RecordDownload(ctx, linkID, fileID)
	}
	if err := s.files.IncrementFileDownloads(ctx, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		s.logger.Error("increment file downloads", zap.String("file_id", fileID), zap.Error(err))
		return storageError("increment file downloads", err)
	}
	return nil
}

// Delete 删除文件：先删元数据（链接级联），再尽力删除 blob。
// blob 删除失败只记录日志，不影响结果。
func (s *FileService) Delete(ctx context.Context, identity *repository.Identity, fileID string) error {
	file, err := authorizeFile(ctx, s.files, identity, fileID)
	if err != nil {
		return err
	}

	if err := s.files.DeleteFile(ctx, file.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		s.logger.Error("delete file record", zap.String("file_id", file.ID), zap.Error(err))
		return storageError("delete file record", err)
	}

	if err := s.store.Delete(context.WithoutCancel(ctx), file.StoragePath); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("blob already gone", zap.String("file_id", file.ID), zap.String("key", file.StoragePath))
		} else {
			metrics.BlobDeleteFailuresTotal.Inc()
			s.logger.Warn("delete blob failed, orphan left for sweeper",
				zap.String("file_id", file.ID),
				zap.String("key", file.StoragePath),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("file deleted", zap.String("file_id", file.ID), zap.String("by", identity.ID))
	return nil
}

// limitReader 在读取超过 max 字节时返回 ErrTooLarge，使存储层中止写入并清理。
type limitReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitReader) exceeded() bool {
	return l.read > l.max
}
