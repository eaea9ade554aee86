// Package metrics 定义文件生命周期相关的业务指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal 按结果统计上传次数。
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpshare_uploads_total",
			Help: "Total number of upload attempts by result",
		},
		[]string{"result"},
	)

	// UploadedBytes 成功写入存储的字节数。
	UploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_uploaded_bytes_total",
		Help: "Total bytes persisted by successful uploads",
	})

	// DownloadsTotal 按访问途径（direct/link）统计下载次数。
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpshare_downloads_total",
			Help: "Total number of successful downloads by access path",
		},
		[]string{"via"},
	)

	// LinksCreatedTotal 创建的分享链接数。
	LinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_links_created_total",
		Help: "Total number of share links created",
	})

	// LinkDenialsTotal 通过链接访问被拒绝的次数。
	LinkDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpshare_link_denials_total",
			Help: "Link-mediated downloads denied, by link state",
		},
		[]string{"state"},
	)

	// OrphanBlobsTotal 孤儿 blob 的处理结果：compensated 为上传补偿删除，swept 为定期清理删除，partial 为中断写入的残留。
	OrphanBlobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpshare_orphan_blobs_total",
			Help: "Orphaned blobs removed, by mechanism",
		},
		[]string{"mechanism"},
	)

	// BlobDeleteFailuresTotal 元数据删除后 blob 删除失败（容忍的不一致）。
	BlobDeleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_blob_delete_failures_total",
		Help: "Blob deletions that failed after metadata was removed",
	})
)
