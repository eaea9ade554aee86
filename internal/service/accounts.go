package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tmpshare/internal/auth"
	"tmpshare/internal/repository"
)

// dummyHash 让用户不存在时也执行一次 bcrypt 比较，避免通过耗时判断账号是否存在。
var dummyHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("tmpshare-dummy-password")
	return hash
})

// AccountService 负责注册与基于凭据的登录。
type AccountService struct {
	users    repository.UserRepository
	sessions *auth.Sessions
	isAdmin  func(email string) bool
	logger   *zap.Logger
	opts     options
}

func NewAccountService(users repository.UserRepository, sessions *auth.Sessions, isAdmin func(email string) bool, logger *zap.Logger, opts ...Option) *AccountService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &AccountService{
		users:    users,
		sessions: sessions,
		isAdmin:  isAdmin,
		logger:   logger.Named("accounts"),
		opts:     buildOptions(opts),
	}
}

// RegisterInput 注册请求。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register 创建新身份，密码以 bcrypt 保存。
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*repository.UserRecord, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, validationError("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, validationError("email is malformed")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if auth.IsPasswordTooLong(err) {
			return nil, validationError("password is too long")
		}
		return nil, storageError("hash password", err)
	}

	role := repository.RoleUser
	if s.isAdmin(email) {
		role = repository.RoleAdmin
	}

	user := &repository.UserRecord{
		ID:           s.opts.newID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.opts.clock(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		s.logger.Error("create user", zap.Error(err))
		return nil, storageError("create user", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Session 是登录成功后签发的会话。
type Session struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expiresAt"`
	User      *repository.Identity `json:"user"`
}

// Login 以邮箱或显示名加密码登录。失败统一返回 ErrInvalidCredentials。
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, validationError("identifier and password are required")
	}

	user, err := s.users.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.CheckPassword(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("find user", zap.Error(err))
		return nil, storageError("find user", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	identity := user.Identity()
	token, expiresAt, err := s.sessions.Issue(identity)
	if err != nil {
		return nil, storageError("issue session", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: identity}, nil
}
