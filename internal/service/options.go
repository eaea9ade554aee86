package service

import (
	"time"

	"github.com/google/uuid"

	"tmpshare/internal/config"
)

type options struct {
	now            func() time.Time
	newID          func() string
	maxUploadBytes int64
}

// Option 定制服务的时间源、id 生成与上传上限。
type Option func(*options)

// WithClock 替换时间源，测试中用于推进时间。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator 替换 id 生成器。
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithMaxUploadBytes 设置单个上传的大小上限。
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:            time.Now,
		newID:          uuid.NewString,
		maxUploadBytes: config.DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) clock() time.Time {
	return o.now().UTC()
}
