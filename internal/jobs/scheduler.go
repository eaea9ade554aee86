package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 是一次定时任务执行。返回的 error 只记录日志。
type Task func(ctx context.Context) error

// Scheduler 封装 cron 实例，按秒级表达式调度后台任务。
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	logger = logger.Named("cron")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(
			recoverWrapper(logger),
			cron.SkipIfStillRunning(cl),
		),
	)
	return &Scheduler{cron: c, logger: logger, ctx: ctx, cancel: cancel}
}

// Register 按 schedule 注册任务。表达式带秒字段，例如 "0 */30 * * * *"。
func (s *Scheduler) Register(name, schedule string, task Task) error {
	_, err := s.cron.AddJob(schedule, &namedJob{
		name:   name,
		task:   task,
		ctx:    s.ctx,
		logger: s.logger,
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.logger.Info("job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop 停止调度并取消正在运行任务的 ctx，等待它们退出或 ctx 到期。
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type namedJob struct {
	name   string
	task   Task
	ctx    context.Context
	logger *zap.Logger
}

func (j *namedJob) Run() {
	logger := j.logger.With(
		zap.String("job", j.name),
		zap.String("execution_id", uuid.NewString()),
	)
	start := time.Now()
	logger.Debug("job started")

	if err := j.task(j.ctx); err != nil {
		logger.Error("job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Info("job finished", zap.Duration("duration", time.Since(start)))
}

// recoverWrapper 捕获任务 panic，调度器继续运行。
func recoverWrapper(logger *zap.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("job panicked",
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
				}
			}()
			j.Run()
		})
	}
}

// cronLogger 把 cron 内部日志转给 zap。
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
