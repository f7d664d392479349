package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Catalog CatalogConfig
	Auth    AuthConfig
	Media   MediaConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	media, err := loadMediaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Backend: backend,
		Catalog: CatalogConfig{File: strings.TrimSpace(os.Getenv("PERSONA_CATALOG_FILE"))},
		Auth:    loadAuthConfig(),
		Media:   media,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述远端人设服务。
type BackendConfig struct {
	BaseURL   string
	PersonaID string
	// Timeout 为 0 表示不设超时。
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	timeout, err := parseOptionalDurationEnv("PERSONA_BACKEND_TIMEOUT")
	if err != nil {
		return BackendConfig{}, err
	}
	var d time.Duration
	if timeout != nil {
		if *timeout < 0 {
			return BackendConfig{}, fmt.Errorf("invalid PERSONA_BACKEND_TIMEOUT value: must not be negative")
		}
		d = *timeout
	}

	return BackendConfig{
		BaseURL:   getEnvOrDefault("PERSONA_BACKEND_URL", "http://localhost:8000"),
		PersonaID: getEnvOrDefault("PERSONA_BACKEND_ID", persona.DefaultBackendID),
		Timeout:   d,
	}, nil
}

// CatalogConfig 可选的人设目录文件，未设置时使用内置目录。
type CatalogConfig struct {
	File string
}

// Personas loads the catalog file when configured, the seeded catalog otherwise.
func (c CatalogConfig) Personas() ([]persona.Persona, error) {
	if c.File == "" {
		return persona.Seed(), nil
	}
	return persona.LoadFile(c.File)
}

// AuthConfig 固定的登录凭证。
type AuthConfig struct {
	UserEmail     string
	UserPassword  string
	AdminEmail    string
	AdminPassword string
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		UserEmail:     getEnvOrDefault("AUTH_USER_EMAIL", "mfw@gmail.com"),
		UserPassword:  getEnvOrDefault("AUTH_USER_PASSWORD", "mfw@123"),
		AdminEmail:    getEnvOrDefault("AUTH_ADMIN_EMAIL", "admin@mediafirewall.ai"),
		AdminPassword: getEnvOrDefault("AUTH_ADMIN_PASSWORD", "admin@123"),
	}
}

// MediaConfig 描述音视频播放相关配置。
type MediaConfig struct {
	VideoMaxBytes  int64
	VideoSyncDelay time.Duration
	PlayerCommand  string
	// BlobTTL bounds how long an unreleased media blob may live on the server.
	BlobTTL time.Duration
}

func loadMediaConfig() (MediaConfig, error) {
	maxBytes := persona.DefaultMaxVideoBytes
	if override, err := parseOptionalIntEnv("VIDEO_MAX_BYTES"); err != nil {
		return MediaConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			return MediaConfig{}, fmt.Errorf("invalid VIDEO_MAX_BYTES value: must be positive")
		}
		maxBytes = int64(*override)
	}

	delay := playback.DefaultVideoSyncDelay
	if override, err := parseOptionalDurationEnv("VIDEO_SYNC_DELAY"); err != nil {
		return MediaConfig{}, err
	} else if override != nil && *override > 0 {
		delay = *override
	}

	ttl := time.Hour
	if override, err := parseOptionalDurationEnv("MEDIA_BLOB_TTL"); err != nil {
		return MediaConfig{}, err
	} else if override != nil && *override > 0 {
		ttl = *override
	}

	return MediaConfig{
		VideoMaxBytes:  maxBytes,
		VideoSyncDelay: delay,
		PlayerCommand:  getEnvOrDefault("PLAYER_COMMAND", playback.DefaultPlayerCommand),
		BlobTTL:        ttl,
	}, nil
}

// LogConfig 日志级别与格式（console | json）。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalDurationEnv 支持 "30s" 这类写法，纯数字按秒处理。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
