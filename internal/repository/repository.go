package repository

import (
	"context"
	"time"
)

// FileOwner 是列表结果中附带的上传者信息。
type FileOwner struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// FileRecord 代表数据库中的文件元数据。
// StoragePath 只在服务端使用，从不序列化给客户端。
type FileRecord struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	StoragePath   string     `json:"-"`
	SizeBytes     int64      `json:"size"`
	OwnerID       string     `json:"userId"`
	CreatedAt     time.Time  `json:"createdAt"`
	DownloadCount int64      `json:"downloads"`
	Owner         *FileOwner `json:"user,omitempty"`
}

// LinkRecord 代表一个限时分享链接。
type LinkRecord struct {
	ID            string    `json:"id"`
	FileID        string    `json:"fileId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
	DownloadCount int64     `json:"downloads"`
}

// Scope 是传入仓储查询的授权谓词：要么限定到某个所有者，要么覆盖全部所有者。
// 两者都未设置时不匹配任何记录。
type Scope struct {
	OwnerID   string
	AllOwners bool
}

// ScopeFor 根据身份构造查询范围：管理员看到全部，普通用户只看到自己的文件。
func ScopeFor(identity *Identity) Scope {
	switch {
	case identity == nil || identity.ID == "":
		return Scope{}
	case identity.IsAdmin():
		return Scope{AllOwners: true}
	default:
		return Scope{OwnerID: identity.ID}
	}
}

// Empty 表示该范围不会匹配任何记录。
func (s Scope) Empty() bool {
	return !s.AllOwners && s.OwnerID == ""
}

// FileRepository 统一文件元数据持久层接口。
type FileRepository interface {
	CreateFile(ctx context.Context, record *FileRecord) error
	GetFile(ctx context.Context, id string) (*FileRecord, error)
	// ListFiles 按 created_at 倒序返回 scope 内的文件。
	ListFiles(ctx context.Context, scope Scope) ([]FileRecord, error)
	// IncrementFileDownloads 原子地将下载计数加一。
	IncrementFileDownloads(ctx context.Context, id string) error
	// DeleteFile 删除文件记录，关联的链接级联删除。
	DeleteFile(ctx context.Context, id string) error
	FileExistsByStoragePath(ctx context.Context, storagePath string) (bool, error)
}

// LinkRepository 管理分享链接。
type LinkRepository interface {
	CreateLink(ctx context.Context, record *LinkRecord) error
	GetLink(ctx context.Context, id string) (*LinkRecord, error)
	ListLinks(ctx context.Context, fileID string) ([]LinkRecord, error)
	// RecordLinkDownload 在同一事务内为链接和它指向的文件各加一次下载计数，
	// 任一记录不存在时两者都不变并返回 ErrNotFound。
	RecordLinkDownload(ctx context.Context, linkID, fileID string) error
	DeleteLink(ctx context.Context, id string) error
	// DeleteExpiredLinks 删除 expires_at 早于 before 的链接，返回删除数量。
	DeleteExpiredLinks(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository 管理用户身份。
type UserRepository interface {
	CreateUser(ctx context.Context, record *UserRecord) error
	GetUser(ctx context.Context, id string) (*UserRecord, error)
	// FindUserByIdentifier 通过邮箱或显示名查找用户。
	FindUserByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
}
