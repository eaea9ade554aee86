package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tmpshare/internal/api"
	"tmpshare/internal/auth"
	"tmpshare/internal/config"
	"tmpshare/internal/database"
	"tmpshare/internal/jobs"
	"tmpshare/internal/logging"
	"tmpshare/internal/migrations"
	"tmpshare/internal/repository/sqldb"
	"tmpshare/internal/service"
	"tmpshare/internal/storage"
	"tmpshare/internal/storage/local"
	"tmpshare/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("配置加载完成，开始启动服务",
		zap.String("db_driver", cfg.DBDriver),
		zap.String("storage_driver", cfg.StorageDriver),
	)

	if cfg.AutoMigrate {
		version, err := migrations.Apply(cfg)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Uint("version", version))
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB(db, logger)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	sessionOpts := []auth.Option{}
	if cfg.AuthJWKSURL != "" {
		jwks, err := auth.LoadJWKS(ctx, cfg.AuthJWKSURL, logger)
		if err != nil {
			return err
		}
		defer jwks.EndBackground()
		sessionOpts = append(sessionOpts, auth.WithJWKS(jwks))
	}
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, sessionOpts...)

	fileRepo := sqldb.NewFileRepository(db)
	linkRepo := sqldb.NewLinkRepository(db)
	userRepo := sqldb.NewUserRepository(db)

	opts := []service.Option{service.WithMaxUploadBytes(cfg.MaxUploadBytes)}
	links := service.NewLinkService(linkRepo, fileRepo, logger, opts...)
	files := service.NewFileService(fileRepo, userRepo, store, links, logger, opts...)
	accounts := service.NewAccountService(userRepo, sessions, cfg.IsAdminEmail, logger, opts...)
	sweeper := service.NewSweeper(fileRepo, linkRepo, store, logger, cfg.OrphanGrace, cfg.LinkRetention, opts...)

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Register("sweep", cfg.SweepSchedule, func(ctx context.Context) error {
		_, err := sweeper.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	scheduler.Start()

	router := api.NewRouter(api.RouterDeps{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Verifier:       sessions,
		DB:             db,
		Files:          api.NewFileHandler(files, logger),
		Links:          api.NewLinkHandler(links, logger),
		Auth:           api.NewAuthHandler(accounts, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("服务监听端口", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("收到退出信号，开始优雅关闭")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("优雅关闭失败", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("停止定时任务超时", zap.Error(err))
	}

	logger.Info("服务已停止")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageDriver == config.StorageDriverS3 {
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    cfg.S3Prefix,
		})
	}
	return local.New(cfg.StorageDir)
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
}
