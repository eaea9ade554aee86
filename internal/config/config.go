package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 数据库驱动。
const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// 存储驱动。
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// DefaultMaxUploadBytes 单个上传文件的默认上限（10 GiB）。
const DefaultMaxUploadBytes int64 = 10 << 30

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	CORSAllowedOrigins []string
	MaxUploadBytes     int64

	// 数据库配置
	DBDriver   string // "postgres" 或 "sqlite"
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// 启动时自动执行迁移
	AutoMigrate bool

	// 会话配置
	SessionSecret string
	SessionTTL    time.Duration
	AuthJWKSURL   string   // 外部 IdP 的 JWKS 地址，可选
	AdminEmails   []string // 注册时自动授予 ADMIN 角色的邮箱

	// 存储配置
	StorageDriver string // "local" 或 "s3"
	StorageDir    string
	S3Endpoint    string // S3/MinIO 端点，不含协议
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool
	S3Prefix      string

	// 后台清理
	SweepSchedule string
	OrphanGrace   time.Duration
	LinkRetention time.Duration

	LogLevel string
	LogDev   bool
}

// Load 从环境变量加载配置，并提供默认值。工作目录下存在 .env 时先加载它。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", time.Hour)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", time.Hour)
	if err != nil {
		return nil, err
	}

	maxUpload, err := parseInt64Env("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := parseDurationEnv("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	orphanGrace, err := parseDurationEnv("ORPHAN_GRACE", time.Hour)
	if err != nil {
		return nil, err
	}

	// LINK_RETENTION=0 表示从不清理过期链接
	linkRetention, err := parseNonNegativeDurationEnv("LINK_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}

	cfg := &Config{
		HTTPPort:           envOrDefault("PORT", "8080"),
		HTTPReadTimeout:    readTimeout,
		HTTPWriteTimeout:   writeTimeout,
		CORSAllowedOrigins: corsOrigins,
		MaxUploadBytes:     maxUpload,
		DBDriver:           strings.ToLower(envOrDefault("DB_DRIVER", DBDriverPostgres)),
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "tmpshare"),
		DBPassword:         envOrDefault("DB_PASSWORD", "tmpshare"),
		DBName:             envOrDefault("DB_NAME", "tmpshare"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		SQLitePath:         envOrDefault("SQLITE_PATH", "./tmpshare.db"),
		AutoMigrate:        parseBoolEnv("AUTO_MIGRATE", true),
		SessionSecret:      envOrDefault("SESSION_SECRET", "dev-session-secret-change-me"),
		SessionTTL:         sessionTTL,
		AuthJWKSURL:        strings.TrimSpace(os.Getenv("AUTH_JWKS_URL")),
		AdminEmails:        parseList(strings.ToLower(os.Getenv("ADMIN_EMAILS"))),
		StorageDriver:      strings.ToLower(envOrDefault("STORAGE_DRIVER", StorageDriverLocal)),
		StorageDir:         envOrDefault("STORAGE_DIR", "./uploads"),
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "tmpshare"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3Prefix:           os.Getenv("S3_PREFIX"),
		SweepSchedule:      envOrDefault("SWEEP_SCHEDULE", "0 */30 * * * *"),
		OrphanGrace:        orphanGrace,
		LinkRetention:      linkRetention,
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogDev:             parseBoolEnv("LOG_DEV", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageDriver == StorageDriverLocal {
		if err := ensureDir(cfg.StorageDir); err != nil {
			return nil, fmt.Errorf("确保存储目录失败: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("不支持的 DB_DRIVER: %q", c.DBDriver)
	}
	switch c.StorageDriver {
	case StorageDriverLocal, StorageDriverS3:
	default:
		return fmt.Errorf("不支持的 STORAGE_DRIVER: %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("SESSION_SECRET 不能为空")
	}
	return nil
}

// IsAdminEmail 判断邮箱是否在管理员名单中（忽略大小写）。
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, err := parseNonNegativeDurationEnv(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseNonNegativeDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	return c.postgresURL("postgres")
}

// SQLiteDSN 生成 mattn/go-sqlite3 连接串，默认开启外键与忙等待。
func (c *Config) SQLiteDSN() string {
	return "file:" + c.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000"
}

// MigrationURL 生成 golang-migrate 使用的数据库地址。
func (c *Config) MigrationURL() string {
	if c.DBDriver == DBDriverSQLite {
		return "sqlite3://" + c.SQLitePath + "?_foreign_keys=on"
	}
	return c.postgresURL("pgx5")
}

func (c *Config) postgresURL(scheme string) string {
	u := &url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
