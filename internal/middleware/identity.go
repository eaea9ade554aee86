package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tmpshare/internal/repository"
)

// SessionCookie 是浏览器会话使用的 cookie 名。
const SessionCookie = "session"

// identityContextKey 是存储在 context 中的当前身份的键。
type identityContextKey struct{}

// TokenVerifier 校验会话 token 并返回身份。
type TokenVerifier interface {
	Verify(token string) (*repository.Identity, error)
}

// ResolveIdentity 从 Authorization: Bearer 或 session cookie 解析身份并存入 context。
// 缺少或无效的 token 按匿名处理，是否必须登录由具体路由决定。
func ResolveIdentity(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("ignoring invalid session token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// WithIdentity 返回携带身份的 context。
func WithIdentity(ctx context.Context, identity *repository.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFrom 取出当前身份，匿名请求返回 nil。
func IdentityFrom(ctx context.Context) *repository.Identity {
	if v, ok := ctx.Value(identityContextKey{}).(*repository.Identity); ok {
		return v
	}
	return nil
}
