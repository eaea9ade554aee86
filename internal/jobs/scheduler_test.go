package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// cron 内部日志在 Debug 级别，可能在测试结束后才输出，这里过滤掉。
func newTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel))
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(newTestLogger(t))
	err := s.Register("sweep", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)

	// 五段式缺少秒字段
	err = s.Register("sweep", "*/5 * * * *", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := NewScheduler(newTestLogger(t))
	var runs atomic.Int32
	require.NoError(t, s.Register("tick", "* * * * * *", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("ignored")
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	s := NewScheduler(newTestLogger(t))
	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, s.Register("slow", "* * * * * *", func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestRecoverWrapper(t *testing.T) {
	job := recoverWrapper(newTestLogger(t))(cron.FuncJob(func() { panic("boom") }))
	assert.NotPanics(t, job.Run)
}
