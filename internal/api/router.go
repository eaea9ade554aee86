package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tmpshare/internal/middleware"
)

// Pinger 用于健康检查，*sql.DB 满足该接口。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps 汇总路由需要的依赖。
type RouterDeps struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	Verifier       middleware.TokenVerifier
	DB             Pinger
	Files          *FileHandler
	Links          *LinkHandler
	Auth           *AuthHandler
}

// NewRouter 构建 HTTP 路由。业务端点同时挂在根路径和 /api 下。
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(middleware.ResolveIdentity(deps.Verifier, deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.PingContext(ctx); err != nil {
				deps.Logger.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	routes := func(r chi.Router) {
		if deps.Auth != nil {
			deps.Auth.RegisterRoutes(r)
		}
		if deps.Files != nil {
			deps.Files.RegisterRoutes(r)
		}
		if deps.Links != nil {
			deps.Links.RegisterRoutes(r)
		}
	}
	routes(r)
	r.Route("/api", routes)

	return r
}
