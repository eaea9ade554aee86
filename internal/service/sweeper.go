package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tmpshare/internal/metrics"
	"tmpshare/internal/repository"
	"tmpshare/internal/storage"
)

// Sweeper 定期修复上传/删除两步操作留下的不一致：
// 删除没有元数据引用的孤儿 blob 和中断写入的残留，并清除过期已久的链接。
type Sweeper struct {
	files         repository.FileRepository
	links         repository.LinkRepository
	store         storage.Storage
	logger        *zap.Logger
	orphanGrace   time.Duration
	linkRetention time.Duration
	opts          options
}

// SweepResult 汇总一次清理。
type SweepResult struct {
	BlobsScanned    int
	OrphansRemoved  int
	PartialsRemoved int
	LinksPurged     int64
	Failures        int
}

// NewSweeper 创建清理器。orphanGrace 保护正在上传、尚未写入元数据的 blob；
// linkRetention 为 0 时不清理链接。
func NewSweeper(files repository.FileRepository, links repository.LinkRepository, store storage.Storage, logger *zap.Logger, orphanGrace, linkRetention time.Duration, opts ...Option) *Sweeper {
	return &Sweeper{
		files:         files,
		links:         links,
		store:         store,
		logger:        logger.Named("sweeper"),
		orphanGrace:   orphanGrace,
		linkRetention: linkRetention,
		opts:          buildOptions(opts),
	}
}

// Run 执行一次清理。单个 blob 的失败只计数，不中断整体。
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.opts.clock()

	objects, err := s.store.List(ctx)
	if err != nil {
		return result, storageError("list blobs", err)
	}

	cutoff := now.Add(-s.orphanGrace)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.BlobsScanned++
		if obj.ModTime.After(cutoff) {
			continue
		}

		referenced, err := s.files.FileExistsByStoragePath(ctx, obj.Key)
		if err != nil {
			result.Failures++
			s.logger.Warn("lookup blob reference", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		if referenced {
			continue
		}

		if err := s.store.Delete(ctx, obj.Key); err != nil {
			result.Failures++
			s.logger.Warn("remove orphan blob", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		result.OrphansRemoved++
		metrics.OrphanBlobsTotal.WithLabelValues("swept").Inc()
		s.logger.Info("orphan blob removed", zap.String("key", obj.Key), zap.Int64("size", obj.Size))
	}

	if cleaner, ok := s.store.(storage.PartialCleaner); ok {
		removed, err := cleaner.CleanPartials(ctx, cutoff)
		result.PartialsRemoved = removed
		if err != nil {
			result.Failures++
			s.logger.Warn("clean partial uploads", zap.Error(err))
		}
		if removed > 0 {
			metrics.OrphanBlobsTotal.WithLabelValues("partial").Add(float64(removed))
		}
	}

	if s.linkRetention > 0 {
		purged, err := s.links.DeleteExpiredLinks(ctx, now.Add(-s.linkRetention))
		if err != nil {
			result.Failures++
			s.logger.Warn("purge expired links", zap.Error(err))
		} else {
			result.LinksPurged = purged
		}
	}

	s.logger.Info("sweep finished",
		zap.Int("blobs_scanned", result.BlobsScanned),
		zap.Int("orphans_removed", result.OrphansRemoved),
		zap.Int("partials_removed", result.PartialsRemoved),
		zap.Int64("links_purged", result.LinksPurged),
		zap.Int("failures", result.Failures),
	)
	return result, nil
}
