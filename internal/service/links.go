package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tmpshare/internal/metrics"
	"tmpshare/internal/repository"
)

// 链接有效期范围（小时）。
const (
	MinLinkHours = 1
	MaxLinkHours = 720
)

// LinkState 是链接在某一时刻相对某个文件的状态。
type LinkState int

const (
	LinkValid LinkState = iota
	LinkExpired
	LinkMismatched
	LinkUnknown
)

func (s LinkState) String() string {
	switch s {
	case LinkValid:
		return "valid"
	case LinkExpired:
		return "expired"
	case LinkMismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// StateAt 判断链接能否在 now 时刻用于下载 fileID：文件必须匹配且 now < expiresAt。
// 过期是终态，时间不会倒流。
func StateAt(link *repository.LinkRecord, fileID string, now time.Time) LinkState {
	switch {
	case link == nil:
		return LinkUnknown
	case link.FileID != fileID:
		return LinkMismatched
	case !now.Before(link.ExpiresAt):
		return LinkExpired
	default:
		return LinkValid
	}
}

// LinkService 创建、校验、删除分享链接并记录通过链接的下载。
type LinkService struct {
	links  repository.LinkRepository
	files  repository.FileRepository
	logger *zap.Logger
	opts   options
}

func NewLinkService(links repository.LinkRepository, files repository.FileRepository, logger *zap.Logger, opts ...Option) *LinkService {
	return &LinkService{
		links:  links,
		files:  files,
		logger: logger.Named("links"),
		opts:   buildOptions(opts),
	}
}

// Create 为文件创建有效期为 hours 小时的链接，仅文件所有者或管理员可操作。
func (s *LinkService) Create(ctx context.Context, identity *repository.Identity, fileID string, hours int) (*repository.LinkRecord, error) {
	if identity == nil || identity.ID == "" {
		return nil, ErrUnauthenticated
	}
	if hours < MinLinkHours || hours > MaxLinkHours {
		return nil, validationError("hours must be between %d and %d", MinLinkHours, MaxLinkHours)
	}
	if _, err := authorizeFile(ctx, s.files, identity, fileID); err != nil {
		return nil, err
	}

	now := s.opts.clock()
	link := &repository.LinkRecord{
		ID:        s.opts.newID(),
		FileID:    fileID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(hours) * time.Hour),
	}
	if err := s.links.CreateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error("create link", zap.String("file_id", fileID), zap.Error(err))
		return nil, storageError("create link", err)
	}

	metrics.LinksCreatedTotal.Inc()
	s.logger.Info("link created",
		zap.String("link_id", link.ID),
		zap.String("file_id", fileID),
		zap.Time("expires_at", link.ExpiresAt),
	)
	return link, nil
}

// ListActive 返回文件的全部链接，不按过期过滤，由调用方决定如何展示。
func (s *LinkService) ListActive(ctx context.Context, fileID string) ([]repository.LinkRecord, error) {
	links, err := s.links.ListLinks(ctx, fileID)
	if err != nil {
		s.logger.Error("list links", zap.String("file_id", fileID), zap.Error(err))
		return nil, storageError("list links", err)
	}
	return links, nil
}

// ListForFile 是带授权的 ListActive。
func (s *LinkService) ListForFile(ctx context.Context, identity *repository.Identity, fileID string) ([]repository.LinkRecord, error) {
	if _, err := authorizeFile(ctx, s.files, identity, fileID); err != nil {
		return nil, err
	}
	return s.ListActive(ctx, fileID)
}

// Delete 删除链接。链接必须属于 fileID，且调用者是文件所有者或管理员。
func (s *LinkService) Delete(ctx context.Context, identity *repository.Identity, fileID, linkID string) error {
	if _, err := authorizeFile(ctx, s.files, identity, fileID); err != nil {
		return err
	}

	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("get link", err)
	}
	if link.FileID != fileID {
		return ErrNotFound
	}

	if err := s.links.DeleteLink(ctx, linkID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		s.logger.Error("delete link", zap.String("link_id", linkID), zap.Error(err))
		return storageError("delete link", err)
	}

	s.logger.Info("link deleted", zap.String("link_id", linkID), zap.String("file_id", fileID))
	return nil
}

// ValidateForAccess 返回链接相对 fileID 在 now 时刻的状态。
// 只有存储故障才返回 error；不存在的链接返回 LinkUnknown。
func (s *LinkService) ValidateForAccess(ctx context.Context, linkID, fileID string, now time.Time) (LinkState, error) {
	if linkID == "" {
		return LinkUnknown, nil
	}

	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LinkUnknown, nil
		}
		s.logger.Error("get link", zap.String("link_id", linkID), zap.Error(err))
		return LinkUnknown, storageError("get link", err)
	}
	return StateAt(link, fileID, now), nil
}

// RecordDownload 在一个事务里同时增加链接和文件的下载计数。
// 链接或文件在校验后被删除时返回 ErrAccessDenied，两个计数都不变。
func (s *LinkService) RecordDownload(ctx context.Context, linkID, fileID string) error {
	if err := s.links.RecordLinkDownload(ctx, linkID, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccessDenied
		}
		s.logger.Error("increment link downloads", zap.String("link_id", linkID), zap.Error(err))
		return storageError("increment link downloads", err)
	}
	return nil
}

// authorizeFile 加载文件并要求调用者是所有者或管理员。
func authorizeFile(ctx context.Context, files repository.FileRepository, identity *repository.Identity, fileID string) (*repository.FileRecord, error) {
	if identity == nil || identity.ID == "" {
		return nil, ErrUnauthenticated
	}

	file, err := files.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get file", err)
	}
	if !identity.CanManage(file.OwnerID) {
		return nil, ErrForbidden
	}
	return file, nil
}
