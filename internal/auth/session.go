package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"tmpshare/internal/repository"
)

const issuer = "tmpshare"

// ErrInvalidToken 表示令牌无法验证或已过期。
var ErrInvalidToken = errors.New("auth: invalid session token")

// Claims 是会话令牌中携带的身份信息。
type Claims struct {
	Email string          `json:"email,omitempty"`
	Name  string          `json:"name,omitempty"`
	Role  repository.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Sessions 签发并验证会话令牌。
// 本地签发的令牌使用 HS256；配置 JWKS 后也接受外部 IdP 以非对称算法签发的令牌。
type Sessions struct {
	secret []byte
	ttl    time.Duration
	jwks   *keyfunc.JWKS
	now    func() time.Time
}

// Option 定制 Sessions。
type Option func(*Sessions)

// WithJWKS 启用外部 IdP 公钥验证。
func WithJWKS(jwks *keyfunc.JWKS) Option {
	return func(s *Sessions) { s.jwks = jwks }
}

// WithClock 替换时间源，测试使用。
func WithClock(now func() time.Time) Option {
	return func(s *Sessions) { s.now = now }
}

func NewSessions(secret string, ttl time.Duration, opts ...Option) *Sessions {
	s := &Sessions{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadJWKS 拉取并定期刷新外部 IdP 的 JWKS。
func LoadJWKS(ctx context.Context, url string, logger *zap.Logger) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks refresh failed", zap.String("url", url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks %s: %w", url, err)
	}
	return jwks, nil
}

// Issue 为身份签发会话令牌。
func (s *Sessions) Issue(identity *repository.Identity) (string, time.Time, error) {
	if identity == nil || identity.ID == "" {
		return "", time.Time{}, fmt.Errorf("issue session: identity is empty")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Verify 解析令牌并返回身份；任何失败都归为 ErrInvalidToken。
func (s *Sessions) Verify(tokenString string) (*repository.Identity, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if s.jwks != nil {
		methods = append(methods, "RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, s.keyFunc,
		jwt.WithValidMethods(methods),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	if !role.Valid() {
		role = repository.RoleUser
	}
	return &repository.Identity{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  role,
	}, nil
}

func (s *Sessions) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if iss, _ := token.Claims.GetIssuer(); iss != issuer {
			return nil, fmt.Errorf("unexpected issuer %q", iss)
		}
		return s.secret, nil
	}
	if s.jwks != nil {
		return s.jwks.Keyfunc(token)
	}
	return nil, fmt.Errorf("no verification key for %s", token.Method.Alg())
}
