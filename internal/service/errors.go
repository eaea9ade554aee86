package service

import (
	"errors"
	"fmt"
)

// 业务错误分类，api 层据此映射 HTTP 状态码。
var (
	// ErrValidation 输入不合法，用户可修正（400）。
	ErrValidation = errors.New("validation failed")
	// ErrTooLarge 上传超过大小上限（413），同时属于 ErrValidation。
	ErrTooLarge = fmt.Errorf("%w: upload exceeds size limit", ErrValidation)
	// ErrUnauthenticated 缺少有效会话（401）。
	ErrUnauthenticated = errors.New("authentication required")
	// ErrUnknownUser 会话有效但对应的用户不存在（401），同时属于 ErrUnauthenticated。
	ErrUnknownUser = fmt.Errorf("%w: user not found", ErrUnauthenticated)
	// ErrForbidden 已认证但无权操作（403）。
	ErrForbidden = errors.New("forbidden")
	// ErrAccessDenied 通过链接访问失败的统一结果，不区分链接不存在、不匹配或已过期（403）。
	ErrAccessDenied = errors.New("invalid or expired link")
	// ErrNotFound 资源不存在（404）。
	ErrNotFound = errors.New("not found")
	// ErrConflict 资源已存在（409）。
	ErrConflict = errors.New("already exists")
	// ErrInvalidCredentials 登录失败，不区分用户不存在与密码错误（401）。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStorage 存储或数据库故障，细节只写日志（500）。
	ErrStorage = errors.New("storage failure")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
