package repository

import "time"

// Role 是身份的角色。
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid 判断角色取值是否合法。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity 是已认证的调用者，由会话层解析得到。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsAdmin 为 nil 安全的管理员判断。
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// CanManage 判断身份是否可以修改 ownerID 名下的资源：本人或管理员。
func (i *Identity) CanManage(ownerID string) bool {
	if i == nil || i.ID == "" {
		return false
	}
	return i.IsAdmin() || i.ID == ownerID
}

// UserRecord 代表数据库中的用户。
type UserRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity 将用户记录投影为会话身份。
func (u *UserRecord) Identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
